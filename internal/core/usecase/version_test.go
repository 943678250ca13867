package usecase

import (
	"testing"
	"time"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

func TestParseVersionNumber(t *testing.T) {
	cases := map[string]int{
		"v1":    1,
		"v3":    3,
		"2":     2,
		"v12":   12,
		"final": 1,
		"":      1,
		"v0":    1,
		"v-2":   1,
	}
	for in, want := range cases {
		if got := parseVersionNumber(in); got != want {
			t.Errorf("parseVersionNumber(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestLatestPerTitlePicksMaxVersion(t *testing.T) {
	docs := []domain.Document{
		{DocumentID: "a1", Title: "A", Version: "v1"},
		{DocumentID: "a3", Title: "A", Version: "v3"},
		{DocumentID: "a2", Title: "A", Version: "v2"},
		{DocumentID: "b1", Title: "B", Version: "final"},
	}

	latest := latestPerTitle(docs)
	if len(latest) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(latest))
	}
	if latest[0].DocumentID != "a3" {
		t.Fatalf("expected a3 (v3) for title A, got %s", latest[0].DocumentID)
	}
	if latest[1].DocumentID != "b1" {
		t.Fatalf("expected b1 for title B, got %s", latest[1].DocumentID)
	}
}

func TestLatestPerTitleTieBreak(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)

	docs := []domain.Document{
		{DocumentID: "x2", Title: "X", Version: "v2", CreatedAt: older},
		{DocumentID: "x1", Title: "X", Version: "v2", CreatedAt: newer},
	}

	latest := latestPerTitle(docs)
	if len(latest) != 1 {
		t.Fatalf("expected 1 document, got %d", len(latest))
	}
	if latest[0].DocumentID != "x1" {
		t.Fatalf("expected later created_at to win, got %s", latest[0].DocumentID)
	}

	// Same version, same timestamp: smaller document_id wins regardless
	// of input order.
	docs = []domain.Document{
		{DocumentID: "y2", Title: "Y", Version: "v1", CreatedAt: older},
		{DocumentID: "y1", Title: "Y", Version: "v1", CreatedAt: older},
	}
	latest = latestPerTitle(docs)
	if latest[0].DocumentID != "y1" {
		t.Fatalf("expected y1 on full tie, got %s", latest[0].DocumentID)
	}
}

func TestLatestPerTitleEmptyInput(t *testing.T) {
	if out := latestPerTitle(nil); len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}
