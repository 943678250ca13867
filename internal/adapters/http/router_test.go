package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/observability/metrics"
)

type chatServiceFake struct {
	result *domain.ChatResult
	err    error
	got    domain.ChatRequest
}

func (f *chatServiceFake) Ask(_ context.Context, req domain.ChatRequest) (*domain.ChatResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testRouter(svc *chatServiceFake, cfg RouterConfig) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(svc, metrics.New("policybot-test"), logger, cfg).Handler()
}

func postChat(handler http.Handler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestAskChatSuccessEnvelope(t *testing.T) {
	svc := &chatServiceFake{result: &domain.ChatResult{
		Question:     "what is the leave policy",
		Answer:       "Staff accrue four weeks of annual leave.",
		UsedDocument: true,
		Sources:      []domain.Source{{Title: "Leave Policy", Quote: "four weeks"}},
		UsedTokens:   220,
	}}
	handler := testRouter(svc, RouterConfig{})

	res := postChat(handler, "tok", `{"organization":"HomeCare","question":"what is the leave policy"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "success" || body["answer"] != "Staff accrue four weeks of annual leave." {
		t.Fatalf("unexpected body %v", body)
	}
	if body["used_tokens"] != float64(220) || body["used_document"] != true {
		t.Fatalf("unexpected accounting fields %v", body)
	}
	if svc.got.AuthToken != "tok" || svc.got.Organization != "HomeCare" {
		t.Fatalf("request not forwarded, got %+v", svc.got)
	}
	if res.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAskChatRequiresBearerToken(t *testing.T) {
	handler := testRouter(&chatServiceFake{}, RouterConfig{})
	res := postChat(handler, "", `{"organization":"HomeCare","question":"q"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", res.Code)
	}
}

func TestAskChatErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.WrapError(domain.ErrInvalidInput, "ask", nil), http.StatusBadRequest},
		{"budget exceeded", domain.WrapError(domain.ErrBudgetExceeded, "budget", nil), http.StatusBadRequest},
		{"unauthorized", domain.WrapError(domain.ErrUnauthorized, "history", nil), http.StatusUnauthorized},
		{"rate limited", domain.WrapError(domain.ErrRateLimited, "llm", nil), http.StatusTooManyRequests},
		{"upstream", domain.WrapError(domain.ErrUpstreamUnavailable, "llm", nil), http.StatusServiceUnavailable},
		{"timeout", domain.WrapError(domain.ErrTimeout, "history", nil), http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := testRouter(&chatServiceFake{err: tc.err}, RouterConfig{})
			res := postChat(handler, "tok", `{"organization":"HomeCare","question":"q"}`)
			if res.Code != tc.want {
				t.Fatalf("status = %d, want %d", res.Code, tc.want)
			}
			var body map[string]string
			if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body["status"] != "error" || body["message"] == "" {
				t.Fatalf("expected error envelope, got %v", body)
			}
		})
	}
}

func TestAskChatRejectsInvalidJSON(t *testing.T) {
	handler := testRouter(&chatServiceFake{}, RouterConfig{})
	res := postChat(handler, "tok", `{not json`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestAskChatMethodNotAllowed(t *testing.T) {
	handler := testRouter(&chatServiceFake{}, RouterConfig{})
	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", res.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler := testRouter(&chatServiceFake{}, RouterConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	handler := testRouter(&chatServiceFake{}, RouterConfig{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if !strings.Contains(res.Body.String(), "nestor_http_in_flight_requests") {
		t.Fatalf("expected registered metrics in exposition")
	}
}
