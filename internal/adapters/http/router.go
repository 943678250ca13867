package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/core/ports"
	"github.com/nestorlabs/policybot/internal/observability/metrics"
)

type RouterConfig struct {
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	OverloadWait   time.Duration
}

type Router struct {
	chat    ports.ChatService
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     RouterConfig
}

func NewRouter(chat ports.ChatService, m *metrics.Metrics, logger *slog.Logger, cfg RouterConfig) *Router {
	if cfg.OverloadWait <= 0 {
		cfg.OverloadWait = 100 * time.Millisecond
	}
	return &Router{
		chat:    chat,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.Handle("/metrics", rt.metrics.Handler())
	mux.HandleFunc("/v1/chat", rt.askChat)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.MaxInFlight, rt.cfg.OverloadWait)
	handler = rateLimitMiddleware(handler, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	handler = rt.metrics.Middleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) askChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorEnvelope("method not allowed"))
		return
	}

	authToken := bearerToken(r)
	if authToken == "" {
		rt.metrics.RecordChatOutcome("unauthorized")
		writeJSON(w, http.StatusUnauthorized, errorEnvelope("a bearer token is required"))
		return
	}

	var req struct {
		Organization string `json:"organization"`
		Question     string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rt.metrics.RecordChatOutcome("invalid_input")
		writeJSON(w, http.StatusBadRequest, errorEnvelope("invalid json body"))
		return
	}

	result, err := rt.chat.Ask(r.Context(), domain.ChatRequest{
		Organization: req.Organization,
		Question:     req.Question,
		AuthToken:    authToken,
	})
	if err != nil {
		status := mapErrorToHTTPStatus(err)
		rt.metrics.RecordChatOutcome(errorOutcome(err))
		rt.logger.Error("chat_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"organization", req.Organization,
			"status", status,
			"error", err,
		)
		writeJSON(w, status, errorEnvelope(clientMessage(err)))
		return
	}

	rt.metrics.RecordChatOutcome("success")
	rt.metrics.RecordCitedSources(len(result.Sources))

	sources := result.Sources
	if sources == nil {
		sources = []domain.Source{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "success",
		"question":      result.Question,
		"answer":        result.Answer,
		"used_document": result.UsedDocument,
		"sources":       sources,
		"used_tokens":   result.UsedTokens,
		"timings":       result.Timings,
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func errorEnvelope(message string) map[string]string {
	return map[string]string{
		"status":  "error",
		"message": message,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
