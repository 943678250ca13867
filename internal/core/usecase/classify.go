package usecase

import (
	"strings"
	"unicode"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

var lawKeywords = map[string]struct{}{
	"law":         {},
	"laws":        {},
	"act":         {},
	"acts":        {},
	"legislation": {},
	"legal":       {},
	"regulation":  {},
	"regulations": {},
	"regulatory":  {},
	"statute":     {},
	"statutory":   {},
}

var policyKeywords = map[string]struct{}{
	"policy":     {},
	"policies":   {},
	"procedure":  {},
	"procedures": {},
	"guideline":  {},
	"guidelines": {},
	"protocol":   {},
	"protocols":  {},
	"handbook":   {},
	"sop":        {},
}

// ClassifyQuestion is the single question-type classification step. It
// replaces per-call-site keyword scans with one function over a closed
// enum; a question mentioning only legal terms is Law, only policy terms
// is Policy, and everything else (both or neither) is Mixed.
func ClassifyQuestion(question string) domain.QuestionType {
	law, policy := false, false
	for _, token := range tokenizeLower(question) {
		if _, ok := lawKeywords[token]; ok {
			law = true
		}
		if _, ok := policyKeywords[token]; ok {
			policy = true
		}
	}

	switch {
	case law && !policy:
		return domain.QuestionLaw
	case policy && !law:
		return domain.QuestionPolicy
	default:
		return domain.QuestionMixed
	}
}

func tokenizeLower(s string) []string {
	if s == "" {
		return nil
	}
	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}
