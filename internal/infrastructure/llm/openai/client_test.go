package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
	"github.com/nestorlabs/policybot/internal/infrastructure/resilience"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Policy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}, testLogger())
}

func testClient(baseURL string) *Client {
	return New(Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		ChatModel:   "gpt-4o",
		EmbedModel:  "text-embedding-3-small",
		Temperature: 0.3,
		Timeout:     5 * time.Second,
	}, testExecutor(), testLogger())
}

func chatCompletionBody(content string, totalTokens int) string {
	resp := map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": totalTokens},
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func TestGeneratorCompleteMapsRolesAndUsage(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody("The policy requires annual training.", 42)))
	}))
	defer server.Close()

	gen := NewGenerator(testClient(server.URL))
	out, err := gen.Complete(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "You are an assistant."},
		{Role: domain.RoleUser, Content: "What training is required?"},
		{Role: domain.RoleAssistant, Content: "Could you clarify the role?"},
		{Role: domain.RoleUser, Content: "For support workers."},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out.Text != "The policy requires annual training." || out.UsedTokens != 42 {
		t.Fatalf("unexpected completion %+v", out)
	}

	messages, _ := gotBody["messages"].([]any)
	if len(messages) != 4 {
		t.Fatalf("expected 4 messages forwarded, got %d", len(messages))
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" {
		t.Fatalf("expected system role first, got %v", first["role"])
	}
	if temp, _ := gotBody["temperature"].(float64); temp != 0.3 {
		t.Fatalf("expected temperature 0.3, got %v", gotBody["temperature"])
	}
}

func TestGeneratorRetriesTransientServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody("ok", 5)))
	}))
	defer server.Close()

	gen := NewGenerator(testClient(server.URL))
	out, err := gen.Complete(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out.Text != "ok" {
		t.Fatalf("unexpected completion text %q", out.Text)
	}
	if got := atomic.LoadInt32(&calls); got < 2 {
		t.Fatalf("expected a retry after 500, got %d calls", got)
	}
}

func TestGeneratorMapsRateLimitToDomainKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	gen := NewGenerator(testClient(server.URL))
	_, err := gen.Complete(context.Background(), []domain.ChatMessage{{Role: domain.RoleUser, Content: "q"}})
	if !domain.IsKind(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited kind, got %v", err)
	}
}

func TestEmbedQueryConvertsVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.25, -0.5, 1.0]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer server.Close()

	emb := NewEmbedder(testClient(server.URL))
	vector, err := emb.EmbedQuery(context.Background(), "medication policy")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	want := []float32{0.25, -0.5, 1.0}
	if len(vector) != len(want) {
		t.Fatalf("vector length = %d, want %d", len(vector), len(want))
	}
	for i := range want {
		if vector[i] != want[i] {
			t.Fatalf("vector[%d] = %v, want %v", i, vector[i], want[i])
		}
	}
}

func TestPredictFilterParsesTaxonomy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody(
			"```json\n{\"category\": \"medication_management\", \"document_type\": \"policy\"}\n```", 17)))
	}))
	defer server.Close()

	p := NewPredictor(testClient(server.URL))
	filter, err := p.PredictFilter(context.Background(), "How do we store schedule 8 medications?")
	if err != nil {
		t.Fatalf("PredictFilter() error = %v", err)
	}
	if filter.Category != "medication_management" || filter.DocumentType != "policy" {
		t.Fatalf("unexpected filter %+v", filter)
	}
	if !filter.DocumentRelated {
		t.Fatalf("expected a document-related prediction")
	}
	if filter.UsedTokens != 17 {
		t.Fatalf("expected classification tokens accounted, got %d", filter.UsedTokens)
	}
}

func TestPredictFilterOthersMeansNotDocumentRelated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatCompletionBody(`{"category": "others", "document_type": "others"}`, 9)))
	}))
	defer server.Close()

	p := NewPredictor(testClient(server.URL))
	filter, err := p.PredictFilter(context.Background(), "What is the weather like?")
	if err != nil {
		t.Fatalf("PredictFilter() error = %v", err)
	}
	if filter.DocumentRelated {
		t.Fatalf("others/others must mean not document related")
	}
	if filter.Category != "" || filter.DocumentType != "" {
		t.Fatalf("expected empty filter fields, got %+v", filter)
	}
}
