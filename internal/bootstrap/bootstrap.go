package bootstrap

import (
	"log/slog"

	"github.com/nestorlabs/policybot/internal/config"
	"github.com/nestorlabs/policybot/internal/core/ports"
	"github.com/nestorlabs/policybot/internal/core/usecase"
	"github.com/nestorlabs/policybot/internal/infrastructure/backend"
	openaillm "github.com/nestorlabs/policybot/internal/infrastructure/llm/openai"
	"github.com/nestorlabs/policybot/internal/infrastructure/rerank/lexical"
	"github.com/nestorlabs/policybot/internal/infrastructure/resilience"
	"github.com/nestorlabs/policybot/internal/infrastructure/vector/qdrant"
	"github.com/nestorlabs/policybot/internal/observability/metrics"
)

// App wires the pipeline: OpenAI for generation, embedding and filter
// prediction, Qdrant for the corpora, the organization backend for
// history and accounting, and the lexical scorer for reranking.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	ChatUC  ports.ChatService
}

func New(cfg config.Config, logger *slog.Logger) *App {
	m := metrics.New("policybot")
	executor := resilience.NewExecutor(resilience.DefaultPolicy(), logger)

	llmClient := openaillm.New(openaillm.Config{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		ChatModel:   cfg.OpenAIChatModel,
		EmbedModel:  cfg.OpenAIEmbedModel,
		Temperature: cfg.OpenAITemperature,
		Timeout:     cfg.OpenAITimeout(),
	}, executor, logger)

	vectorStore := qdrant.New(cfg.QdrantURL, cfg.QdrantTimeout())
	backendClient := backend.New(backend.Config{
		HistoryURL:    cfg.BackendHistoryURL,
		ReadCountURL:  cfg.BackendReadCountURL,
		TokenUsageURL: cfg.BackendTokenUsageURL,
		Timeout:       cfg.BackendTimeout(),
	})

	retriever := usecase.NewRetriever(
		vectorStore,
		openaillm.NewEmbedder(llmClient),
		cfg.LawCollections,
		cfg.CandidateLimit,
		logger,
	)
	reranker := usecase.NewReranker(
		lexical.NewScorer(cfg.RerankWorkers),
		cfg.RerankCeiling,
		cfg.RerankTopK,
		logger,
	)
	reranker.SetFallbackObserver(m.RerankFallback)

	persister := usecase.NewPersistenceCoordinator(
		backendClient,
		backendClient,
		backendClient,
		cfg.PersistTimeout(),
		logger,
	)

	chatUC := usecase.NewChatUseCase(
		backendClient,
		retriever,
		reranker,
		openaillm.NewPredictor(llmClient),
		openaillm.NewGenerator(llmClient),
		persister,
		usecase.ChatConfig{
			HistoryWindow: cfg.HistoryWindow,
			TokenFloor:    cfg.TokenFloor,
			UsageType:     "chatbot",
		},
		logger,
	)
	chatUC.SetObserver(m)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		ChatUC:  chatUC,
	}
}
