package resilience

import "time"

// Policy bundles the retry schedule and the circuit breaker thresholds
// applied to one class of upstream calls.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64

	BreakerEnabled       bool
	BreakerMinRequests   uint32
	BreakerFailureRatio  float64
	BreakerOpenTimeout   time.Duration
	BreakerHalfOpenCalls uint32
}

// DefaultPolicy suits the LLM and backend HTTP dependencies: a short
// retry ladder so a request never stalls for long, and a breaker that
// sheds load once an upstream is clearly down.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     150 * time.Millisecond,
		MaxDelay:      1200 * time.Millisecond,
		BackoffFactor: 2.0,

		BreakerEnabled:       true,
		BreakerMinRequests:   8,
		BreakerFailureRatio:  0.5,
		BreakerOpenTimeout:   20 * time.Second,
		BreakerHalfOpenCalls: 2,
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.BackoffFactor < 1.0 {
		p.BackoffFactor = def.BackoffFactor
	}

	if p.BreakerMinRequests == 0 {
		p.BreakerMinRequests = def.BreakerMinRequests
	}
	if p.BreakerFailureRatio <= 0 || p.BreakerFailureRatio > 1 {
		p.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if p.BreakerOpenTimeout <= 0 {
		p.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if p.BreakerHalfOpenCalls == 0 {
		p.BreakerHalfOpenCalls = def.BreakerHalfOpenCalls
	}
	return p
}
