package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/core/ports"
)

// Retriever runs version-aware similarity search across the
// organization collection and the fixed regulatory-law collections.
// Each collection is queried independently; a failing collection
// (including one that does not exist yet) is logged and skipped so the
// remaining collections still contribute candidates.
type Retriever struct {
	vector   ports.VectorStore
	embedder ports.Embedder
	logger   *slog.Logger

	lawCollections []string
	limit          int
}

func NewRetriever(vector ports.VectorStore, embedder ports.Embedder, lawCollections []string, perCollectionLimit int, logger *slog.Logger) *Retriever {
	if perCollectionLimit <= 0 {
		perCollectionLimit = 5
	}
	return &Retriever{
		vector:         vector,
		embedder:       embedder,
		logger:         logger,
		lawCollections: lawCollections,
		limit:          perCollectionLimit,
	}
}

// Retrieve fans out one query per relevant collection and merges the
// surviving candidates, provenance attached. Law questions skip the
// organization collection, policy questions skip the law corpora, and
// an organization fetch is also skipped when the filter predictor says
// the question is not document related. Retrieval never fails the
// request: on total degradation it returns no candidates and the answer
// falls back to general knowledge.
func (r *Retriever) Retrieve(ctx context.Context, organization, question string, questionType domain.QuestionType, filter domain.RetrievalFilter) []domain.RetrievalCandidate {
	queryVector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		r.logger.Warn("query_embed_failed", "error", err)
		return nil
	}

	type target struct {
		collection string
		origin     domain.Origin
		limit      int
	}

	var targets []target
	if questionType != domain.QuestionLaw && filter.DocumentRelated {
		targets = append(targets, target{collection: organization, origin: domain.OriginOrganization, limit: r.limit})
	}
	if questionType != domain.QuestionPolicy && len(r.lawCollections) > 0 {
		lawLimit := r.limit / len(r.lawCollections)
		if lawLimit < 1 {
			lawLimit = 1
		}
		for _, collection := range r.lawCollections {
			targets = append(targets, target{collection: collection, origin: domain.OriginRegulatory, limit: lawLimit})
		}
	}
	if len(targets) == 0 {
		return nil
	}

	results := make([][]domain.RetrievalCandidate, len(targets))
	var wg sync.WaitGroup
	for i, tgt := range targets {
		wg.Add(1)
		go func(i int, tgt target) {
			defer wg.Done()
			candidates, err := r.searchCollection(ctx, tgt.collection, tgt.origin, queryVector, tgt.limit, filter)
			if err != nil {
				r.logger.Warn("collection_search_failed",
					"collection", tgt.collection,
					"origin", string(tgt.origin),
					"error", err,
				)
				return
			}
			results[i] = candidates
		}(i, tgt)
	}
	wg.Wait()

	var merged []domain.RetrievalCandidate
	for _, candidates := range results {
		merged = append(merged, candidates...)
	}
	return merged
}

// searchCollection restricts the search space to the latest version of
// each logical document before running similarity search, so stale
// versions can never surface as candidates.
func (r *Retriever) searchCollection(ctx context.Context, collection string, origin domain.Origin, queryVector []float32, limit int, filter domain.RetrievalFilter) ([]domain.RetrievalCandidate, error) {
	docs, err := r.vector.FetchAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	if origin == domain.OriginOrganization {
		docs = applyFilter(docs, filter)
	}

	latest := latestPerTitle(docs)
	if len(latest) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(latest))
	for _, doc := range latest {
		ids = append(ids, doc.DocumentID)
	}

	hits, err := r.vector.Search(ctx, collection, queryVector, ids, limit)
	if err != nil {
		return nil, err
	}

	candidates := make([]domain.RetrievalCandidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, domain.RetrievalCandidate{
			Document:   hit.Document,
			Score:      hit.Score,
			Origin:     origin,
			Collection: collection,
		})
	}
	return candidates, nil
}

func applyFilter(docs []domain.Document, filter domain.RetrievalFilter) []domain.Document {
	if filter.Category == "" && filter.DocumentType == "" {
		return docs
	}
	out := make([]domain.Document, 0, len(docs))
	for _, doc := range docs {
		if filter.Category != "" && doc.Category != filter.Category {
			continue
		}
		if filter.DocumentType != "" && doc.DocumentType != filter.DocumentType {
			continue
		}
		out = append(out, doc)
	}
	return out
}
