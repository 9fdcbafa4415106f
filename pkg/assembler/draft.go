package assembler

import (
	"bytes"
	"encoding/json"

	"github.com/go-go-golems/houser/pkg/events"
)

// DraftAnswer accumulates one in-flight answer. Only the Stream owning it
// mutates it; callers see Snapshot copies.
type DraftAnswer struct {
	TextContent              string                `json:"text_content"`
	ResultItems              []events.Listing      `json:"result_items,omitempty"`
	IsFallback               bool                  `json:"is_fallback,omitempty"`
	Stats                    json.RawMessage       `json:"stats,omitempty"`
	StatsSummary             string                `json:"stats_summary,omitempty"`
	KeyHighlights            *events.KeyHighlights `json:"key_highlights,omitempty"`
	AnswerKind               string                `json:"answer_kind"`
	Table                    *events.Table         `json:"table,omitempty"`
	Status                   string                `json:"status,omitempty"`
	IsTerminal               bool                  `json:"is_terminal"`
	ConversationallyComplete bool                  `json:"conversationally_complete,omitempty"`
	Failure                  error                 `json:"-"`
}

func newDraft() DraftAnswer {
	return DraftAnswer{AnswerKind: events.AnswerKindSearch}
}

// Clone deep-copies the draft. Failure values are immutable and shared.
func (d DraftAnswer) Clone() DraftAnswer {
	out := d
	out.ResultItems = events.CloneListings(d.ResultItems)
	if d.Stats != nil {
		out.Stats = bytes.Clone(d.Stats)
	}
	if d.KeyHighlights != nil {
		h := *d.KeyHighlights
		out.KeyHighlights = &h
	}
	out.Table = d.Table.Clone()
	return out
}

// Snapshot is an immutable view of the draft after one transition.
type Snapshot struct {
	Seq       int              `json:"seq"`
	RequestID string           `json:"request_id,omitempty"`
	Trigger   events.EventType `json:"trigger,omitempty"`
	// Outcome is set on the terminal snapshot only.
	Outcome OutcomeKind `json:"outcome,omitempty"`
	DraftAnswer
}

// FailureMessage is the display text for Failure, or "".
func (s Snapshot) FailureMessage() string { return FailureMessage(s.Failure) }

type snapshotJSON struct {
	Seq       int              `json:"seq"`
	RequestID string           `json:"request_id,omitempty"`
	Trigger   events.EventType `json:"trigger,omitempty"`
	Outcome   OutcomeKind      `json:"outcome,omitempty"`
	DraftAnswer
	Failure string `json:"failure,omitempty"`
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Seq:         s.Seq,
		RequestID:   s.RequestID,
		Trigger:     s.Trigger,
		Outcome:     s.Outcome,
		DraftAnswer: s.DraftAnswer,
	}
	if s.Failure != nil {
		out.Failure = s.Failure.Error()
	}
	return json.Marshal(out)
}
