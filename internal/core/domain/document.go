package domain

import "time"

// Origin tags where a retrieval candidate came from so downstream logic
// can apply different trust and citation rules per source.
type Origin string

const (
	OriginOrganization Origin = "organization"
	OriginRegulatory   Origin = "regulatory"
)

// Document is a stored policy or law chunk. Ingestion owns and mutates
// documents; this pipeline only reads them.
type Document struct {
	DocumentID   string    `json:"document_id"`
	Title        string    `json:"title"`
	Version      string    `json:"version"`
	Category     string    `json:"category,omitempty"`
	DocumentType string    `json:"document_type,omitempty"`
	Text         string    `json:"text"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchHit is a document plus its vector similarity score, as returned
// by the vector store.
type SearchHit struct {
	Document Document
	Score    float64
}

// RetrievalCandidate is a SearchHit with provenance attached, optionally
// carrying a rerank score after the second-stage pass. RerankScore stays
// nil when reranking was skipped or degraded.
type RetrievalCandidate struct {
	Document    Document
	Score       float64
	RerankScore *float64
	Origin      Origin
	Collection  string
}

// RetrievalFilter narrows the organization fetch to a predicted category
// and document type. A zero filter means no narrowing. UsedTokens carries
// the cost of the prediction call so the orchestrator can bill it.
type RetrievalFilter struct {
	Category        string
	DocumentType    string
	DocumentRelated bool
	UsedTokens      int
}
