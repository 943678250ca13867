package domain

// QuestionType is the closed classification of an incoming question. It
// decides which context block is authoritative in the prompt. Switches
// over it must be exhaustive.
type QuestionType string

const (
	QuestionLaw    QuestionType = "law"
	QuestionPolicy QuestionType = "policy"
	QuestionMixed  QuestionType = "mixed"
)

// ChatMessage is one role-tagged message in the LLM conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Completion is the raw LLM output plus its token cost.
type Completion struct {
	Text       string
	UsedTokens int
}

// Source is one citation the model attached to its answer.
type Source struct {
	Title   string `json:"title"`
	Section string `json:"section,omitempty"`
	Quote   string `json:"quote,omitempty"`
	Meta    string `json:"meta,omitempty"`
}

// SynthesizedAnswer is the structured result extracted from the LLM
// text. Exactly one is produced per request; it is never persisted.
type SynthesizedAnswer struct {
	Answer       string   `json:"answer"`
	UsedDocument bool     `json:"used_document"`
	Sources      []Source `json:"sources,omitempty"`
}

// ChatRequest is the inbound chat operation input.
type ChatRequest struct {
	Organization string
	Question     string
	AuthToken    string
}

// PhaseTiming records how long one pipeline phase took, for the
// observability breakdown in the response.
type PhaseTiming struct {
	Phase  string  `json:"phase"`
	Millis float64 `json:"ms"`
}

// ChatResult is the finalized answer returned to the caller.
type ChatResult struct {
	Question     string        `json:"question"`
	Answer       string        `json:"answer"`
	UsedDocument bool          `json:"used_document"`
	Sources      []Source      `json:"sources,omitempty"`
	UsedTokens   int           `json:"used_tokens"`
	Timings      []PhaseTiming `json:"timings,omitempty"`
}

type SinkStatus string

const (
	SinkSuccess SinkStatus = "success"
	SinkFailed  SinkStatus = "failed"
	SinkSkipped SinkStatus = "skipped"
)

// SinkOutcome is the per-write result of the post-answer persistence
// fan-out. Outcomes are logged, never surfaced to the caller.
type SinkOutcome struct {
	Sink   string
	Status SinkStatus
	Error  string
}
