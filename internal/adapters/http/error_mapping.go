package httpadapter

import (
	"net/http"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage keeps upstream details out of responses. The log line
// carries the full error.
func clientMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "organization and question are required"
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return "token budget exhausted"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "you are unauthorized to access this resource"
	case domain.IsKind(err, domain.ErrRateLimited):
		return "too many requests, slow down and retry"
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return "a required service is unavailable, try again later"
	case domain.IsKind(err, domain.ErrTimeout):
		return "request to an upstream service timed out"
	default:
		return "internal server error"
	}
}

func errorOutcome(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrBudgetExceeded):
		return "budget_exceeded"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "unauthorized"
	case domain.IsKind(err, domain.ErrRateLimited):
		return "rate_limited"
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case domain.IsKind(err, domain.ErrTimeout):
		return "timeout"
	default:
		return "internal_error"
	}
}
