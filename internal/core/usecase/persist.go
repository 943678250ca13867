package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/core/ports"
)

const (
	sinkHistory    = "history"
	sinkReadCounts = "read_counts"
	sinkTokenUsage = "token_usage"
)

// PersistenceCoordinator fans the post-answer side effects out to their
// stores. The three writes run concurrently, each on its own deadline;
// one sink's failure never cancels or delays the others, and no outcome
// reaches the user-visible response.
type PersistenceCoordinator struct {
	history    ports.HistoryStore
	readCounts ports.ReadCountStore
	tokenUsage ports.TokenUsageStore
	timeout    time.Duration
	logger     *slog.Logger
}

func NewPersistenceCoordinator(
	history ports.HistoryStore,
	readCounts ports.ReadCountStore,
	tokenUsage ports.TokenUsageStore,
	timeout time.Duration,
	logger *slog.Logger,
) *PersistenceCoordinator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PersistenceCoordinator{
		history:    history,
		readCounts: readCounts,
		tokenUsage: tokenUsage,
		timeout:    timeout,
		logger:     logger,
	}
}

// Persist writes the turn, the read-count increments and the token
// usage record. An empty increment map short-circuits that sink to a
// skipped outcome without a call. The aggregate is returned for logging
// and metrics only.
func (p *PersistenceCoordinator) Persist(
	ctx context.Context,
	authToken string,
	turn domain.ConversationTurn,
	increments map[string]int,
	usageType string,
) []domain.SinkOutcome {
	outcomes := make([]domain.SinkOutcome, 3)
	var wg sync.WaitGroup

	run := func(slot int, sink string, fn func(context.Context) error) {
		defer wg.Done()
		writeCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()
		if err := fn(writeCtx); err != nil {
			outcomes[slot] = domain.SinkOutcome{Sink: sink, Status: domain.SinkFailed, Error: err.Error()}
			return
		}
		outcomes[slot] = domain.SinkOutcome{Sink: sink, Status: domain.SinkSuccess}
	}

	wg.Add(1)
	go run(0, sinkHistory, func(ctx context.Context) error {
		return p.history.Append(ctx, authToken, turn)
	})

	wg.Add(1)
	if len(increments) == 0 {
		outcomes[1] = domain.SinkOutcome{Sink: sinkReadCounts, Status: domain.SinkSkipped}
		wg.Done()
	} else {
		go run(1, sinkReadCounts, func(ctx context.Context) error {
			return p.readCounts.Increment(ctx, authToken, increments)
		})
	}

	wg.Add(1)
	go run(2, sinkTokenUsage, func(ctx context.Context) error {
		return p.tokenUsage.Record(ctx, authToken, usageType, turn.UsedTokens)
	})

	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.Status == domain.SinkFailed {
			p.logger.Warn("persistence_sink_failed", "sink", outcome.Sink, "error", outcome.Error)
		}
	}
	return outcomes
}
