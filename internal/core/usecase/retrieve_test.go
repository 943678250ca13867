package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

type embedderFake struct {
	err error
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type vectorFake struct {
	mu         sync.Mutex
	docs       map[string][]domain.Document
	failing    map[string]error
	searchedID map[string][]string
}

func newVectorFake() *vectorFake {
	return &vectorFake{
		docs:       make(map[string][]domain.Document),
		failing:    make(map[string]error),
		searchedID: make(map[string][]string),
	}
}

func (f *vectorFake) FetchAll(_ context.Context, collection string) ([]domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[collection]; err != nil {
		return nil, err
	}
	return f.docs[collection], nil
}

func (f *vectorFake) Search(_ context.Context, collection string, _ []float32, ids []string, limit int) ([]domain.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[collection]; err != nil {
		return nil, err
	}
	f.searchedID[collection] = ids

	allowed := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		allowed[id] = struct{}{}
	}
	var hits []domain.SearchHit
	for _, doc := range f.docs[collection] {
		if _, ok := allowed[doc.DocumentID]; !ok {
			continue
		}
		if len(hits) >= limit {
			break
		}
		hits = append(hits, domain.SearchHit{Document: doc, Score: 0.9})
	}
	return hits, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetrievePartialCollectionFailure(t *testing.T) {
	vector := newVectorFake()
	vector.docs["HomeCare"] = []domain.Document{
		{DocumentID: "p1", Title: "Privacy Policy", Version: "v1"},
	}
	vector.docs["AgedCareLaw"] = []domain.Document{
		{DocumentID: "l1", Title: "Aged Care Act", Version: "v1"},
	}
	vector.failing["QualityStandards"] = errors.New("collection does not exist")

	r := NewRetriever(vector, &embedderFake{}, []string{"AgedCareLaw", "QualityStandards"}, 4, discardLogger())
	candidates := r.Retrieve(context.Background(), "HomeCare", "privacy rules", domain.QuestionMixed, domain.RetrievalFilter{DocumentRelated: true})

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates from surviving collections, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.Collection == "QualityStandards" {
			t.Fatalf("failed collection must not contribute candidates")
		}
	}
}

func TestRetrieveRestrictsSearchToLatestVersions(t *testing.T) {
	vector := newVectorFake()
	vector.docs["HomeCare"] = []domain.Document{
		{DocumentID: "pp-v1", Title: "Privacy Policy", Version: "v1"},
		{DocumentID: "pp-v2", Title: "Privacy Policy", Version: "v2"},
	}

	r := NewRetriever(vector, &embedderFake{}, nil, 5, discardLogger())
	candidates := r.Retrieve(context.Background(), "HomeCare", "privacy", domain.QuestionPolicy, domain.RetrievalFilter{DocumentRelated: true})

	ids := vector.searchedID["HomeCare"]
	if len(ids) != 1 || ids[0] != "pp-v2" {
		t.Fatalf("expected search scoped to [pp-v2], got %v", ids)
	}
	if len(candidates) != 1 || candidates[0].Document.DocumentID != "pp-v2" {
		t.Fatalf("expected only the v2 candidate, got %+v", candidates)
	}
	if candidates[0].Origin != domain.OriginOrganization {
		t.Fatalf("expected organization provenance, got %s", candidates[0].Origin)
	}
}

func TestRetrieveLawQuestionSkipsOrganization(t *testing.T) {
	vector := newVectorFake()
	vector.docs["HomeCare"] = []domain.Document{{DocumentID: "p1", Title: "P", Version: "v1"}}
	vector.docs["AgedCareLaw"] = []domain.Document{{DocumentID: "l1", Title: "L", Version: "v1"}}

	r := NewRetriever(vector, &embedderFake{}, []string{"AgedCareLaw"}, 4, discardLogger())
	candidates := r.Retrieve(context.Background(), "HomeCare", "what does the act say", domain.QuestionLaw, domain.RetrievalFilter{DocumentRelated: true})

	if len(candidates) != 1 || candidates[0].Origin != domain.OriginRegulatory {
		t.Fatalf("expected a single regulatory candidate, got %+v", candidates)
	}
	if _, searched := vector.searchedID["HomeCare"]; searched {
		t.Fatalf("organization collection must not be searched for law questions")
	}
}

func TestRetrieveEmbedFailureDegradesToEmpty(t *testing.T) {
	r := NewRetriever(newVectorFake(), &embedderFake{err: errors.New("embed down")}, nil, 4, discardLogger())
	candidates := r.Retrieve(context.Background(), "HomeCare", "q", domain.QuestionMixed, domain.RetrievalFilter{DocumentRelated: true})
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates when embedding fails, got %d", len(candidates))
	}
}

func TestRetrieveCategoryFilterNarrowsOrganizationFetch(t *testing.T) {
	vector := newVectorFake()
	vector.docs["HomeCare"] = []domain.Document{
		{DocumentID: "a", Title: "A", Version: "v1", Category: "medication_management", DocumentType: "policy"},
		{DocumentID: "b", Title: "B", Version: "v1", Category: "privacy", DocumentType: "policy"},
	}

	r := NewRetriever(vector, &embedderFake{}, nil, 5, discardLogger())
	filter := domain.RetrievalFilter{Category: "privacy", DocumentType: "policy", DocumentRelated: true}
	candidates := r.Retrieve(context.Background(), "HomeCare", "privacy", domain.QuestionPolicy, filter)

	if len(candidates) != 1 || candidates[0].Document.DocumentID != "b" {
		t.Fatalf("expected only the matching-category candidate, got %+v", candidates)
	}
}
