package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

const scrollPageSize = 256

// Client reads policy and regulation corpora from a Qdrant instance
// over its REST API. Collections are chosen per call: one per
// organization plus the shared legislation collections.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type scrollPoint struct {
	Payload map[string]any `json:"payload"`
}

// FetchAll scrolls the full collection payload by payload. Vectors are
// not requested; version resolution only needs metadata and text.
func (c *Client) FetchAll(ctx context.Context, collection string) ([]domain.Document, error) {
	var (
		docs   []domain.Document
		offset any
	)
	for {
		reqBody := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			reqBody["offset"] = offset
		}

		var page struct {
			Result struct {
				Points         []scrollPoint `json:"points"`
				NextPageOffset any           `json:"next_page_offset"`
			} `json:"result"`
		}
		url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, collection)
		if err := c.postJSON(ctx, url, reqBody, &page); err != nil {
			return nil, fmt.Errorf("scroll %s: %w", collection, err)
		}

		for _, p := range page.Result.Points {
			docs = append(docs, documentFromPayload(p.Payload))
		}
		if page.Result.NextPageOffset == nil || len(page.Result.Points) == 0 {
			break
		}
		offset = page.Result.NextPageOffset
	}
	return docs, nil
}

// Search runs a vector query over the collection, restricted to the
// given document IDs when any are supplied.
func (c *Client) Search(ctx context.Context, collection string, queryVector []float32, documentIDs []string, limit int) ([]domain.SearchHit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}
	if len(documentIDs) > 0 {
		reqBody["filter"] = map[string]any{
			"must": []map[string]any{
				{
					"key": "document_id",
					"match": map[string]any{
						"any": documentIDs,
					},
				},
			},
		}
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, collection)
	if err := c.postJSON(ctx, url, reqBody, &searchResp); err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	hits := make([]domain.SearchHit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		hits = append(hits, domain.SearchHit{
			Document: documentFromPayload(r.Payload),
			Score:    r.Score,
		})
	}
	return hits, nil
}

func (c *Client) postJSON(ctx context.Context, url string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if m := strings.TrimSpace(string(msg)); m != "" {
			return fmt.Errorf("qdrant status %s: %s", resp.Status, m)
		}
		return fmt.Errorf("qdrant status %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func documentFromPayload(payload map[string]any) domain.Document {
	doc := domain.Document{
		DocumentID:   getStringPayload(payload, "document_id"),
		Title:        getStringPayload(payload, "title"),
		Version:      getStringPayload(payload, "version"),
		Category:     getStringPayload(payload, "category"),
		DocumentType: getStringPayload(payload, "document_type"),
		Text:         getStringPayload(payload, "text"),
	}
	if raw := getStringPayload(payload, "created_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			doc.CreatedAt = ts
		}
	}
	return doc
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}
