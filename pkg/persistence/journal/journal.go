package journal

import "context"

// Entry is one recorded snapshot. The journal is a diagnostic record of
// what each request streamed; it is never loaded back into a session.
type Entry struct {
	ConvID      string `json:"conv_id" yaml:"conv_id"`
	RequestID   string `json:"request_id" yaml:"request_id"`
	Seq         int    `json:"seq" yaml:"seq"`
	Trigger     string `json:"trigger" yaml:"trigger"`
	Outcome     string `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Terminal    bool   `json:"terminal" yaml:"terminal"`
	CreatedAtMs int64  `json:"created_at_ms" yaml:"created_at_ms"`
	ContentHash string `json:"content_hash" yaml:"content_hash"`
	Payload     string `json:"payload" yaml:"payload"`
}

// Query filters entries. At least one of ConvID or RequestID is required
// unless Recent is set.
type Query struct {
	ConvID       string
	RequestID    string
	TerminalOnly bool
	SinceMs      int64
	Limit        int
	Recent       bool
}

// ConversationSummary describes one conversation in the journal.
type ConversationSummary struct {
	ConvID        string `json:"conv_id"`
	Requests      int    `json:"requests"`
	Snapshots     int    `json:"snapshots"`
	FirstSeenMs   int64  `json:"first_seen_ms"`
	LastSeenMs    int64  `json:"last_seen_ms"`
	LastOutcome   string `json:"last_outcome,omitempty"`
	FailedOutcome int    `json:"failed_outcomes"`
}

// Store persists snapshot entries for inspection.
type Store interface {
	Save(ctx context.Context, e Entry) error
	List(ctx context.Context, q Query) ([]Entry, error)
	Conversations(ctx context.Context, limit int) ([]ConversationSummary, error)
	Close() error
}

const defaultListLimit = 200
