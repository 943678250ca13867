package ports

import (
	"context"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

// ChatService is the inbound contract for the retrieval-augmented chat
// pipeline.
type ChatService interface {
	Ask(ctx context.Context, req domain.ChatRequest) (*domain.ChatResult, error)
}
