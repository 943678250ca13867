package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

type rerankModelFake struct {
	scores []float64
	err    error

	gotQuery string
	gotTexts []string
}

func (f *rerankModelFake) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	f.gotQuery = query
	f.gotTexts = texts
	if f.err != nil {
		return nil, f.err
	}
	return f.scores[:len(texts)], nil
}

func tenCandidates() []domain.RetrievalCandidate {
	out := make([]domain.RetrievalCandidate, 10)
	for i := range out {
		out[i] = domain.RetrievalCandidate{
			Document: domain.Document{DocumentID: string(rune('a' + i)), Title: "Doc", Text: "body"},
			Score:    1.0 - float64(i)*0.05,
		}
	}
	return out
}

func TestRerankReturnsTopKSortedDescending(t *testing.T) {
	model := &rerankModelFake{scores: []float64{0.1, 0.9, 0.3, 0.8, 0.2, 0.4, 0.5, 0.6, 0.7, 0.0}}
	r := NewReranker(model, 20, 3, discardLogger())

	ranked := r.Rerank(context.Background(), "query", tenCandidates())
	if len(ranked) != 3 {
		t.Fatalf("expected 3 results, got %d", len(ranked))
	}
	for i := 1; i < len(ranked); i++ {
		if *ranked[i-1].RerankScore < *ranked[i].RerankScore {
			t.Fatalf("results not sorted descending: %v then %v", *ranked[i-1].RerankScore, *ranked[i].RerankScore)
		}
	}
	if ranked[0].Document.DocumentID != "b" {
		t.Fatalf("expected highest-scored candidate first, got %s", ranked[0].Document.DocumentID)
	}
}

func TestRerankScoringFailureFallsBackToOriginalOrder(t *testing.T) {
	fallbacks := 0
	r := NewReranker(&rerankModelFake{err: errors.New("model crashed")}, 20, 3, discardLogger())
	r.SetFallbackObserver(func() { fallbacks++ })

	candidates := tenCandidates()
	ranked := r.Rerank(context.Background(), "query", candidates)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 fallback results, got %d", len(ranked))
	}
	for i := range ranked {
		if ranked[i].Document.DocumentID != candidates[i].Document.DocumentID {
			t.Fatalf("fallback must preserve original order at %d", i)
		}
		if ranked[i].RerankScore != nil {
			t.Fatalf("fallback results must carry nil rerank scores")
		}
	}
	if fallbacks != 1 {
		t.Fatalf("expected degradation observer fired once, got %d", fallbacks)
	}
}

func TestRerankCapsCandidateSetAndTruncatesPairText(t *testing.T) {
	model := &rerankModelFake{scores: make([]float64, 20)}
	r := NewReranker(model, 20, 5, discardLogger())

	candidates := make([]domain.RetrievalCandidate, 30)
	long := strings.Repeat("x", 5000)
	for i := range candidates {
		candidates[i] = domain.RetrievalCandidate{Document: domain.Document{Title: "T", Text: long}}
	}

	r.Rerank(context.Background(), "q", candidates)
	if len(model.gotTexts) != 20 {
		t.Fatalf("expected candidate set capped at 20, got %d", len(model.gotTexts))
	}
	for _, text := range model.gotTexts {
		if len([]rune(text)) > rerankPairTextRunes {
			t.Fatalf("pair text exceeds %d runes", rerankPairTextRunes)
		}
	}
}

func TestRerankEmptyInput(t *testing.T) {
	r := NewReranker(&rerankModelFake{}, 20, 3, discardLogger())
	if out := r.Rerank(context.Background(), "q", nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}
