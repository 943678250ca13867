package openai

import (
	"context"
	"errors"
	"net"
	"net/http"

	openaigo "github.com/openai/openai-go"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/infrastructure/resilience"
)

func classifyAPIError(err error) resilience.Verdict {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{}
	}
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests,
			http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return resilience.Verdict{Retry: true, Trip: true}
		default:
			return resilience.Verdict{}
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retry: true, Trip: true}
	}
	return resilience.Verdict{Trip: true}
}

func wrapAPIError(operation string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return domain.WrapError(domain.ErrTimeout, operation, err)
	case resilience.IsCircuitOpen(err):
		return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	var apiErr *openaigo.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return domain.WrapError(domain.ErrRateLimited, operation, err)
		}
		return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.WrapError(domain.ErrTimeout, operation, err)
		}
		return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
	}
	return domain.WrapError(domain.ErrUpstreamUnavailable, operation, err)
}
