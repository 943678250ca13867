package domain

import "time"

// ConversationTurn is one completed prompt/response exchange. Turns are
// append-only; the read window is bounded to the most recent N.
type ConversationTurn struct {
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	UsedTokens int       `json:"used_tokens"`
	CreatedAt  time.Time `json:"created_at"`
}

type HistoryStatus string

const (
	HistoryOK           HistoryStatus = "ok"
	HistoryUnauthorized HistoryStatus = "unauthorized"
	HistoryFailed       HistoryStatus = "failed"
)

// HistoryResult is the typed outcome of a history fetch. The store never
// returns an error; transport and HTTP failures are folded into Status,
// StatusCode and Message.
type HistoryResult struct {
	Status          HistoryStatus
	StatusCode      int
	Message         string
	RemainingTokens int
	Turns           []ConversationTurn
}
