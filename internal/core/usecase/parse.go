package usecase

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"

	"github.com/nestorlabs/policybot/internal/core/domain"
)

// Parse stages, in fallback order. The winning stage is reported for
// observability; "fallback" means the raw text was returned verbatim.
const (
	StageStrict        = "strict"
	StageFenceStrip    = "fence_strip"
	StageControlEscape = "control_escape"
	StageRegex         = "regex"
	StageLiteralClean  = "literal_clean"
	StageManualScan    = "manual_scan"
	StageFallback      = "fallback"
)

var (
	fenceRe       = regexp.MustCompile("(?m)^```(?:json)?|```$")
	answerPairRe  = regexp.MustCompile(`"answer"\s*:\s*"((?:[^"\\]|\\.)*)"\s*,\s*"used_document"\s*:\s*(true|false)`)
	literalSwap   = strings.NewReplacer("True", "true", "False", "false", "None", "null", "'", `"`)
	answerEscapes = strings.NewReplacer(`\"`, `"`, `\n`, "\n", `\r`, "\r", `\t`, "\t")
)

// ParseModelOutput extracts a structured answer from free-form LLM text.
// The model is instructed to return strict JSON but routinely wraps it
// in markdown fences, leaves literal newlines inside string values,
// HTML-escapes quotes, or nests a second JSON object inside the answer
// field. The fallback chain is ordered; the first stage to succeed wins
// and the function never fails because the terminal stage returns the
// raw text as the answer.
func ParseModelOutput(raw string) (domain.SynthesizedAnswer, string) {
	text := html.UnescapeString(strings.TrimSpace(raw))

	if out, ok := strictParse(text); ok {
		return unwrapNested(out), StageStrict
	}

	cleaned := strings.TrimSpace(fenceRe.ReplaceAllString(text, ""))
	if cleaned != text {
		if out, ok := strictParse(cleaned); ok {
			return unwrapNested(out), StageFenceStrip
		}
	}

	if !looksLikeJSON(cleaned) {
		return domain.SynthesizedAnswer{Answer: cleaned}, StageFallback
	}

	if escaped := escapeControlsInStrings(cleaned); escaped != cleaned {
		if out, ok := strictParse(escaped); ok {
			return unwrapNested(out), StageControlEscape
		}
	}

	if m := answerPairRe.FindStringSubmatch(cleaned); m != nil {
		return unwrapNested(domain.SynthesizedAnswer{
			Answer:       answerEscapes.Replace(m[1]),
			UsedDocument: m[2] == "true",
		}), StageRegex
	}

	if out, ok := strictParse(escapeControlsInStrings(literalSwap.Replace(cleaned))); ok {
		return unwrapNested(out), StageLiteralClean
	}

	if out, ok := manualScan(cleaned); ok {
		return unwrapNested(out), StageManualScan
	}

	return domain.SynthesizedAnswer{Answer: cleaned}, StageFallback
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

type modelEnvelope struct {
	Answer       any             `json:"answer"`
	UsedDocument any             `json:"used_document"`
	Sources      []domain.Source `json:"sources"`
}

func strictParse(text string) (domain.SynthesizedAnswer, bool) {
	if !looksLikeJSON(text) {
		return domain.SynthesizedAnswer{}, false
	}
	var env modelEnvelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return domain.SynthesizedAnswer{}, false
	}
	answer, ok := coerceAnswer(env.Answer)
	if !ok {
		return domain.SynthesizedAnswer{}, false
	}
	return domain.SynthesizedAnswer{
		Answer:       answer,
		UsedDocument: coerceBool(env.UsedDocument),
		Sources:      env.Sources,
	}, true
}

func coerceAnswer(v any) (string, bool) {
	switch a := v.(type) {
	case string:
		return a, true
	case nil:
		return "", false
	default:
		// The model sometimes emits the answer as a nested object
		// instead of a string; keep its inner answer when present.
		if m, ok := a.(map[string]any); ok {
			if inner, ok := m["answer"].(string); ok {
				return inner, true
			}
		}
		return "", false
	}
}

func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	default:
		return false
	}
}

// unwrapNested promotes the inner values when the answer field itself
// contains a JSON object with its own answer/used_document keys, an
// observed model bug.
func unwrapNested(out domain.SynthesizedAnswer) domain.SynthesizedAnswer {
	trimmed := strings.TrimSpace(out.Answer)
	if !strings.HasPrefix(trimmed, "{") {
		return out
	}
	var env modelEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return out
	}
	inner, ok := env.Answer.(string)
	if !ok {
		return out
	}
	out.Answer = inner
	if env.UsedDocument != nil {
		out.UsedDocument = coerceBool(env.UsedDocument)
	}
	if len(env.Sources) > 0 && len(out.Sources) == 0 {
		out.Sources = env.Sources
	}
	return out
}

// escapeControlsInStrings re-escapes literal control characters that
// appear inside JSON string values, leaving structural whitespace
// between tokens untouched.
func escapeControlsInStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	inString := false
	escaped := false
	for _, r := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			case r == '\n':
				b.WriteString(`\n`)
				continue
			case r == '\r':
				b.WriteString(`\r`)
				continue
			case r == '\t':
				b.WriteString(`\t`)
				continue
			}
		} else if r == '"' {
			inString = true
		}
		b.WriteRune(r)
	}
	return b.String()
}

// manualScan slices the text between the answer key and the last
// used_document key when every structured attempt has failed.
func manualScan(s string) (domain.SynthesizedAnswer, bool) {
	answerIdx := strings.Index(s, `"answer"`)
	usedIdx := strings.LastIndex(s, `"used_document"`)
	if answerIdx < 0 || usedIdx <= answerIdx {
		return domain.SynthesizedAnswer{}, false
	}

	segment := s[answerIdx:usedIdx]
	colon := strings.Index(segment, ":")
	if colon < 0 {
		return domain.SynthesizedAnswer{}, false
	}
	answer := strings.TrimSpace(segment[colon+1:])
	answer = strings.TrimRight(answer, " \t\n\r")
	answer = strings.TrimSuffix(answer, ",")
	answer = strings.Trim(answer, `"`)
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return domain.SynthesizedAnswer{}, false
	}

	used := strings.Contains(strings.ToLower(s[usedIdx:]), "true")
	return domain.SynthesizedAnswer{Answer: answer, UsedDocument: used}, true
}
