package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/core/ports"
)

// PipelineObserver receives pipeline-level observability events. The
// zero implementation is a no-op; the metrics package provides the real
// one.
type PipelineObserver interface {
	ParseStage(stage string)
	PersistOutcome(sink string, status domain.SinkStatus)
	PhaseDuration(phase string, d time.Duration)
	TokensUsed(n int)
}

type noopObserver struct{}

func (noopObserver) ParseStage(string)                        {}
func (noopObserver) PersistOutcome(string, domain.SinkStatus) {}
func (noopObserver) PhaseDuration(string, time.Duration)      {}
func (noopObserver) TokensUsed(int)                           {}

// ChatConfig carries the orchestrator's tunables.
type ChatConfig struct {
	HistoryWindow int
	TokenFloor    int
	UsageType     string
}

func (c ChatConfig) normalize() ChatConfig {
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 10
	}
	if c.TokenFloor <= 0 {
		c.TokenFloor = 1000
	}
	if c.UsageType == "" {
		c.UsageType = "chatbot"
	}
	return c
}

// ChatUseCase is the end-to-end pipeline: auth probe, parallel history
// and context fetch, budget check, prompt composition, LLM call,
// structured-output extraction, and detached persistence.
type ChatUseCase struct {
	history   ports.HistoryStore
	retriever *Retriever
	reranker  *Reranker
	predictor ports.FilterPredictor
	chat      ports.ChatModel
	persister *PersistenceCoordinator

	cfg      ChatConfig
	logger   *slog.Logger
	observer PipelineObserver
}

func NewChatUseCase(
	history ports.HistoryStore,
	retriever *Retriever,
	reranker *Reranker,
	predictor ports.FilterPredictor,
	chat ports.ChatModel,
	persister *PersistenceCoordinator,
	cfg ChatConfig,
	logger *slog.Logger,
) *ChatUseCase {
	return &ChatUseCase{
		history:   history,
		retriever: retriever,
		reranker:  reranker,
		predictor: predictor,
		chat:      chat,
		persister: persister,
		cfg:       cfg.normalize(),
		logger:    logger,
		observer:  noopObserver{},
	}
}

// SetObserver wires the pipeline metrics sink. Safe to leave unset.
func (uc *ChatUseCase) SetObserver(obs PipelineObserver) {
	if obs != nil {
		uc.observer = obs
	}
}

func (uc *ChatUseCase) Ask(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", nil)
	}
	if req.Organization == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask: organization is required", nil)
	}

	var timings []domain.PhaseTiming
	phase := func(name string, start time.Time) {
		d := time.Since(start)
		uc.observer.PhaseDuration(name, d)
		timings = append(timings, domain.PhaseTiming{Phase: name, Millis: float64(d.Microseconds()) / 1000.0})
	}

	// Auth probe before any retrieval or LLM work. Unauthenticated and
	// under-budget callers cost nothing downstream.
	start := time.Now()
	probe := uc.history.Fetch(ctx, req.AuthToken, 1, 0)
	phase("auth_check", start)
	switch probe.Status {
	case domain.HistoryUnauthorized:
		return nil, domain.WrapError(domain.ErrUnauthorized, "history auth check", nil)
	case domain.HistoryFailed:
		return nil, mapHistoryFailure("history auth check", probe)
	}
	if probe.RemainingTokens < uc.cfg.TokenFloor {
		return nil, domain.WrapError(domain.ErrBudgetExceeded, "token budget check", nil)
	}

	// History window and the retrieval pipeline have no data
	// dependency; run them concurrently.
	questionType := ClassifyQuestion(question)
	start = time.Now()

	var (
		historyRes domain.HistoryResult
		candidates []domain.RetrievalCandidate
		filter     domain.RetrievalFilter
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		historyRes = uc.history.Fetch(ctx, req.AuthToken, uc.cfg.HistoryWindow, 0)
	}()

	filter = uc.predictFilter(ctx, question)
	raw := uc.retriever.Retrieve(ctx, req.Organization, question, questionType, filter)
	candidates = uc.reranker.Rerank(ctx, question, raw)
	<-done
	phase("parallel_fetch", start)

	var history []domain.ConversationTurn
	switch historyRes.Status {
	case domain.HistoryUnauthorized:
		return nil, domain.WrapError(domain.ErrUnauthorized, "history fetch", nil)
	case domain.HistoryOK:
		history = historyRes.Turns
	default:
		// A degraded history store only costs the conversation window.
		uc.logger.Warn("history_fetch_degraded", "status_code", historyRes.StatusCode, "message", historyRes.Message)
	}

	messages := buildMessages(
		buildSystemPrompt(questionType),
		history,
		formatContextBlocks(questionType, candidates),
		question,
	)

	start = time.Now()
	completion, err := uc.chat.Complete(ctx, messages)
	phase("llm_call", start)
	if err != nil {
		return nil, err
	}

	parsed, stage := ParseModelOutput(completion.Text)
	uc.observer.ParseStage(stage)
	if stage != StageStrict {
		uc.logger.Info("response_parse_recovered", "stage", stage, "question_type", string(questionType))
	}

	usedTokens := completion.UsedTokens + filter.UsedTokens
	uc.observer.TokensUsed(usedTokens)

	turn := domain.ConversationTurn{
		Prompt:     question,
		Response:   parsed.Answer,
		UsedTokens: usedTokens,
		CreatedAt:  time.Now().UTC(),
	}
	increments := readCountIncrements(parsed, candidates)

	// The answer is final; persistence runs detached so a slow or
	// failing sink cannot delay the response.
	persistCtx := context.WithoutCancel(ctx)
	go func() {
		outcomes := uc.persister.Persist(persistCtx, req.AuthToken, turn, increments, uc.cfg.UsageType)
		for _, outcome := range outcomes {
			uc.observer.PersistOutcome(outcome.Sink, outcome.Status)
		}
	}()

	return &domain.ChatResult{
		Question:     question,
		Answer:       parsed.Answer,
		UsedDocument: parsed.UsedDocument,
		Sources:      parsed.Sources,
		UsedTokens:   usedTokens,
		Timings:      timings,
	}, nil
}

// predictFilter narrows the organization fetch via one classification
// call. Prediction failure degrades to unfiltered, document-related
// retrieval instead of dropping context on the floor.
func (uc *ChatUseCase) predictFilter(ctx context.Context, question string) domain.RetrievalFilter {
	filter, err := uc.predictor.PredictFilter(ctx, question)
	if err != nil {
		uc.logger.Warn("filter_prediction_failed", "error", err)
		return domain.RetrievalFilter{DocumentRelated: true}
	}
	return filter
}

// readCountIncrements counts a read against each organization document
// that was in the final context, but only when the model reports it
// actually used supplied documents. Regulatory corpora are fixed
// content and are not counted.
func readCountIncrements(parsed domain.SynthesizedAnswer, candidates []domain.RetrievalCandidate) map[string]int {
	if !parsed.UsedDocument {
		return nil
	}
	increments := make(map[string]int)
	for _, c := range candidates {
		if c.Origin == domain.OriginOrganization {
			increments[c.Document.DocumentID]++
		}
	}
	if len(increments) == 0 {
		return nil
	}
	return increments
}

func mapHistoryFailure(operation string, res domain.HistoryResult) error {
	switch res.StatusCode {
	case 504:
		return domain.WrapError(domain.ErrTimeout, operation, nil)
	default:
		return domain.WrapError(domain.ErrUpstreamUnavailable, operation, nil)
	}
}
