package usecase

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

// parseVersionNumber converts a version string like "v2" or "2" to its
// numeric form. Malformed or missing versions count as 1.
func parseVersionNumber(v string) int {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "v")
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// latestPerTitle groups documents by exact title and keeps exactly one
// document per title: the one with the maximum parsed version. Ties on
// the version number go to the later created_at, then to the smaller
// document_id, so the pick is deterministic for any input ordering.
// Empty input yields empty output.
func latestPerTitle(docs []domain.Document) []domain.Document {
	if len(docs) == 0 {
		return nil
	}

	best := make(map[string]domain.Document, len(docs))
	for _, doc := range docs {
		current, ok := best[doc.Title]
		if !ok || newerDocument(doc, current) {
			best[doc.Title] = doc
		}
	}

	out := make([]domain.Document, 0, len(best))
	for _, doc := range best {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Title < out[j].Title
	})
	return out
}

func newerDocument(a, b domain.Document) bool {
	av, bv := parseVersionNumber(a.Version), parseVersionNumber(b.Version)
	if av != bv {
		return av > bv
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.DocumentID < b.DocumentID
}
