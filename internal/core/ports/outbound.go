package ports

import (
	"context"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

// VectorStore reads documents from named collections and performs
// similarity search scoped to a document-id allowlist.
type VectorStore interface {
	FetchAll(ctx context.Context, collection string) ([]domain.Document, error)
	Search(ctx context.Context, collection string, queryVector []float32, documentIDs []string, limit int) ([]domain.SearchHit, error)
}

// Embedder builds the query vector for similarity search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// ChatModel invokes the LLM with an ordered role-tagged message list at
// a fixed low temperature. Transport failures come back as typed domain
// error kinds.
type ChatModel interface {
	Complete(ctx context.Context, messages []domain.ChatMessage) (domain.Completion, error)
}

// RerankModel scores (query, text) pairs in one batch; higher is more
// relevant. Implementations are constructed once and safe for concurrent
// use.
type RerankModel interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// FilterPredictor maps a question to the category and document type used
// to narrow the organization fetch.
type FilterPredictor interface {
	PredictFilter(ctx context.Context, question string) (domain.RetrievalFilter, error)
}

// HistoryStore reads and appends conversation turns. Fetch never
// returns an error; all outcomes are folded into HistoryResult.
type HistoryStore interface {
	Fetch(ctx context.Context, authToken string, limit, offset int) domain.HistoryResult
	Append(ctx context.Context, authToken string, turn domain.ConversationTurn) error
}

// ReadCountStore increments per-document read counters.
type ReadCountStore interface {
	Increment(ctx context.Context, authToken string, counts map[string]int) error
}

// TokenUsageStore records consumed LLM tokens for billing.
type TokenUsageStore interface {
	Record(ctx context.Context, authToken string, usageType string, tokens int) error
}
