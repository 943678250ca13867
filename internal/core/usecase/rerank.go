package usecase

import (
	"context"
	"log/slog"
	"sort"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/core/ports"
)

const rerankPairTextRunes = 1000

// Reranker runs a second-stage pairwise relevance pass over a bounded
// candidate set. Scoring failures never fail the request: the head of
// the original ordering is returned instead, with nil scores.
type Reranker struct {
	model   ports.RerankModel
	ceiling int
	topK    int
	logger  *slog.Logger

	onFallback func()
}

func NewReranker(model ports.RerankModel, ceiling, topK int, logger *slog.Logger) *Reranker {
	if ceiling <= 0 {
		ceiling = 20
	}
	if topK <= 0 {
		topK = 5
	}
	return &Reranker{model: model, ceiling: ceiling, topK: topK, logger: logger}
}

// SetFallbackObserver registers a hook fired whenever scoring degrades.
func (r *Reranker) SetFallbackObserver(fn func()) {
	r.onFallback = fn
}

func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RetrievalCandidate) []domain.RetrievalCandidate {
	if len(candidates) == 0 {
		return candidates
	}
	if len(candidates) > r.ceiling {
		candidates = candidates[:r.ceiling]
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = pairText(c.Document)
	}

	scores, err := r.model.Score(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		r.logger.Warn("rerank_degraded", "candidates", len(candidates), "error", err)
		if r.onFallback != nil {
			r.onFallback()
		}
		return headOf(candidates, r.topK)
	}

	ranked := make([]domain.RetrievalCandidate, len(candidates))
	copy(ranked, candidates)
	for i := range ranked {
		score := scores[i]
		ranked[i].RerankScore = &score
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].RerankScore > *ranked[j].RerankScore
	})
	return headOf(ranked, r.topK)
}

// pairText bounds scoring compute regardless of document size by
// truncating the salient fields to a fixed rune budget.
func pairText(doc domain.Document) string {
	text := doc.Title + ". " + doc.Text
	runes := []rune(text)
	if len(runes) > rerankPairTextRunes {
		runes = runes[:rerankPairTextRunes]
	}
	return string(runes)
}

func headOf(candidates []domain.RetrievalCandidate, k int) []domain.RetrievalCandidate {
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]domain.RetrievalCandidate, k)
	copy(out, candidates[:k])
	return out
}
