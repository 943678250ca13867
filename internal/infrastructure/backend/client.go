package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

type Config struct {
	HistoryURL    string
	ReadCountURL  string
	TokenUsageURL string
	Timeout       time.Duration
}

// Client talks to the organization backend that owns conversation
// history, document read counts, and token accounting. All calls are
// authenticated with the caller's bearer token, never a service
// credential.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type historyEntry struct {
	Prompt     string `json:"prompt"`
	Response   string `json:"response"`
	UsedTokens int    `json:"used_tokens"`
	CreatedAt  string `json:"created_at"`
}

// Fetch returns a typed outcome instead of an error: the caller decides
// whether a degraded history store is fatal.
func (c *Client) Fetch(ctx context.Context, authToken string, limit, offset int) domain.HistoryResult {
	reqURL := fmt.Sprintf("%s?limit=%s&offset=%s",
		c.cfg.HistoryURL, strconv.Itoa(limit), strconv.Itoa(offset))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return domain.HistoryResult{Status: domain.HistoryFailed, StatusCode: 500, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportFailure(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return c.decodeHistory(resp.Body, limit)
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.HistoryResult{
			Status:     domain.HistoryUnauthorized,
			StatusCode: http.StatusUnauthorized,
			Message:    "you are unauthorized to access this resource",
		}
	default:
		return domain.HistoryResult{
			Status:     domain.HistoryFailed,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.Body, resp.StatusCode),
		}
	}
}

func (c *Client) decodeHistory(body io.Reader, limit int) domain.HistoryResult {
	var payload struct {
		Data struct {
			Histories       []historyEntry `json:"histories"`
			RemainingTokens int            `json:"remaining_tokens"`
		} `json:"data"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return domain.HistoryResult{Status: domain.HistoryFailed, StatusCode: 200, Message: "malformed history payload: " + err.Error()}
	}

	entries := payload.Data.Histories
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	turns := make([]domain.ConversationTurn, 0, len(entries))
	for _, e := range entries {
		turn := domain.ConversationTurn{
			Prompt:     e.Prompt,
			Response:   e.Response,
			UsedTokens: e.UsedTokens,
		}
		if ts, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
			turn.CreatedAt = ts
		}
		turns = append(turns, turn)
	}
	sort.SliceStable(turns, func(i, j int) bool {
		return turns[i].CreatedAt.Before(turns[j].CreatedAt)
	})

	return domain.HistoryResult{
		Status:          domain.HistoryOK,
		StatusCode:      http.StatusOK,
		RemainingTokens: payload.Data.RemainingTokens,
		Turns:           turns,
	}
}

func (c *Client) Append(ctx context.Context, authToken string, turn domain.ConversationTurn) error {
	payload := map[string]any{
		"prompt":      turn.Prompt,
		"response":    turn.Response,
		"used_tokens": turn.UsedTokens,
	}
	return c.post(ctx, c.cfg.HistoryURL, authToken, payload, "save history")
}

func (c *Client) Increment(ctx context.Context, authToken string, counts map[string]int) error {
	if len(counts) == 0 {
		return nil
	}
	type readCount struct {
		DocumentID string `json:"document_id"`
		Count      int    `json:"count"`
	}
	documents := make([]readCount, 0, len(counts))
	for id, n := range counts {
		documents = append(documents, readCount{DocumentID: id, Count: n})
	}
	sort.Slice(documents, func(i, j int) bool { return documents[i].DocumentID < documents[j].DocumentID })

	return c.post(ctx, c.cfg.ReadCountURL, authToken, map[string]any{"documents": documents}, "save read counts")
}

func (c *Client) Record(ctx context.Context, authToken, usageType string, tokens int) error {
	payload := map[string]any{
		"type":  usageType,
		"token": tokens,
	}
	return c.post(ctx, c.cfg.TokenUsageURL, authToken, payload, "save token usage")
}

func (c *Client) post(ctx context.Context, postURL, authToken string, payload any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: %s", operation, errorMessage(resp.Body, resp.StatusCode))
	}
	return nil
}

// errorMessage prefers the backend's own message/detail fields over the
// bare status code.
func errorMessage(body io.Reader, statusCode int) string {
	fallback := fmt.Sprintf("request failed with status %d", statusCode)
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return fallback
	}
	var payload struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fallback
	}
	if payload.Message != "" {
		return payload.Message
	}
	if payload.Detail != "" {
		return payload.Detail
	}
	return fallback
}

func transportFailure(err error) domain.HistoryResult {
	if isTimeout(err) {
		return domain.HistoryResult{
			Status:     domain.HistoryFailed,
			StatusCode: http.StatusGatewayTimeout,
			Message:    "request timed out",
		}
	}
	return domain.HistoryResult{
		Status:     domain.HistoryFailed,
		StatusCode: http.StatusServiceUnavailable,
		Message:    "failed to connect to backend",
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
