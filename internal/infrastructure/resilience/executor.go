package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Verdict tells the executor how to treat one failure: whether another
// attempt is worth making, and whether the breaker should count it.
type Verdict struct {
	Retry bool
	Trip  bool
}

type Classifier func(err error) Verdict

// Executor runs upstream calls under a retry schedule and one circuit
// breaker per dependency name.
type Executor struct {
	policy Policy
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

func NewExecutor(policy Policy, logger *slog.Logger) *Executor {
	return &Executor{
		policy:   policy.withDefaults(),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker[any]),
	}
}

func (e *Executor) Do(ctx context.Context, dependency string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: nil call for %q", dependency)
	}
	dep := strings.TrimSpace(dependency)
	if dep == "" {
		dep = "unknown"
	}
	if classify == nil {
		classify = func(error) Verdict { return Verdict{Trip: true} }
	}

	if !e.policy.BreakerEnabled {
		return e.withRetries(ctx, dep, fn, classify)
	}
	breaker := e.breakerFor(dep, classify)
	_, err := breaker.Execute(func() (any, error) {
		return nil, e.withRetries(ctx, dep, fn, classify)
	})
	return err
}

func (e *Executor) withRetries(ctx context.Context, dependency string, fn func(context.Context) error, classify Classifier) error {
	delay := e.policy.BaseDelay
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !classify(err).Retry || attempt == e.policy.MaxAttempts {
			return err
		}

		if delay > e.policy.MaxDelay {
			delay = e.policy.MaxDelay
		}
		e.logger.Warn("upstream_retry",
			"dependency", dependency,
			"attempt", attempt,
			"max_attempts", e.policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * e.policy.BackoffFactor)
	}
}

func (e *Executor) breakerFor(dependency string, classify Classifier) *gobreaker.CircuitBreaker[any] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if breaker, ok := e.breakers[dependency]; ok {
		return breaker
	}
	settings := gobreaker.Settings{
		Name:        dependency,
		MaxRequests: e.policy.BreakerHalfOpenCalls,
		Timeout:     e.policy.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.policy.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.policy.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).Trip
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn("circuit_breaker_state_change", "dependency", name, "from", from.String(), "to", to.String())
		},
	}
	breaker := gobreaker.NewCircuitBreaker[any](settings)
	e.breakers[dependency] = breaker
	return breaker
}

// IsCircuitOpen reports whether the error came from a breaker shedding
// the call instead of the upstream itself.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
