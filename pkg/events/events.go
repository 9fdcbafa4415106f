package events

import (
	"encoding/json"
	"maps"
	"slices"
)

// EventType names the kind of a decoded stream record.
type EventType string

const (
	EventTypeIntent         EventType = "intent"
	EventTypeResults        EventType = "results"
	EventTypeSearchStats    EventType = "search_stats"
	EventTypeKeyHighlights  EventType = "key_highlights"
	EventTypeTextChunk      EventType = "text_chunk"
	EventTypeLegacyResponse EventType = "legacy_response"
	EventTypeFinal          EventType = "final"
	EventTypeError          EventType = "error"
	EventTypeUnknown        EventType = "unknown"
)

// Event is the closed set of records the chat stream can carry.
// Only types declared in this package implement it.
type Event interface {
	Type() EventType
	isEvent()
}

// EventImpl carries what every event shares. Payload is the JSON object the
// event was decoded from, kept for journaling and replay diagnostics.
type EventImpl struct {
	Payload json.RawMessage `json:"-"`
}

func (e *EventImpl) isEvent() {}

// Raw returns the undecoded JSON object.
func (e *EventImpl) Raw() json.RawMessage { return e.Payload }

// EventIntent announces the filters the backend extracted from the message.
type EventIntent struct {
	EventImpl
	Filters    map[string]any `json:"filters"`
	Processing bool           `json:"processing,omitempty"`
}

func (e *EventIntent) Type() EventType { return EventTypeIntent }

var _ Event = &EventIntent{}

// EventResults carries the complete current result set.
type EventResults struct {
	EventImpl
	Results    []Listing `json:"results"`
	IsFallback bool      `json:"isFallback,omitempty"`
}

func (e *EventResults) Type() EventType { return EventTypeResults }

var _ Event = &EventResults{}

// EventSearchStats carries backend statistics about the search and a prose summary.
type EventSearchStats struct {
	EventImpl
	Stats   json.RawMessage `json:"stats,omitempty"`
	Summary string          `json:"summary,omitempty"`
}

func (e *EventSearchStats) Type() EventType { return EventTypeSearchStats }

var _ Event = &EventSearchStats{}

type EventKeyHighlights struct {
	EventImpl
	Highlights KeyHighlights `json:"highlights"`
}

func (e *EventKeyHighlights) Type() EventType { return EventTypeKeyHighlights }

var _ Event = &EventKeyHighlights{}

type EventTextChunk struct {
	EventImpl
	Content string `json:"content"`
}

func (e *EventTextChunk) Type() EventType { return EventTypeTextChunk }

var _ Event = &EventTextChunk{}

// EventLegacyResponse is a whole answer delivered in one record, the shape
// older backends used before typed streaming. AnswerType is the record's own
// `type` (search, info, stats, clarification, ...).
type EventLegacyResponse struct {
	EventImpl
	Response   string          `json:"response"`
	AnswerType string          `json:"type"`
	Stats      json.RawMessage `json:"stats,omitempty"`
	Results    []Listing       `json:"results,omitempty"`
	Table      *Table          `json:"-"`
}

func (e *EventLegacyResponse) Type() EventType { return EventTypeLegacyResponse }

// IsSearch reports whether more result streaming should be expected.
func (e *EventLegacyResponse) IsSearch() bool { return e.AnswerType == AnswerKindSearch }

var _ Event = &EventLegacyResponse{}

type EventFinal struct {
	EventImpl
	Table *Table `json:"-"`
}

func (e *EventFinal) Type() EventType { return EventTypeFinal }

var _ Event = &EventFinal{}

// EventError is a failure reported by the server inside the stream.
type EventError struct {
	EventImpl
	Reason string `json:"reason"`
}

func (e *EventError) Type() EventType { return EventTypeError }

var _ Event = &EventError{}

// EventUnknown is any well-formed record whose type is not recognized.
type EventUnknown struct {
	EventImpl
	RawType string `json:"type"`
}

func (e *EventUnknown) Type() EventType { return EventTypeUnknown }

var _ Event = &EventUnknown{}

// AnswerKindSearch is the default kind of an answer.
const AnswerKindSearch = "search"

// KeyHighlights summarizes a result set.
type KeyHighlights struct {
	Count        int   `json:"count" yaml:"count"`
	AvgPrice     Price `json:"avg_price" yaml:"avg_price"`
	LowestPrice  Price `json:"lowest_price" yaml:"lowest_price"`
	HighestPrice Price `json:"highest_price" yaml:"highest_price"`
}

// Table is an optional comparison table attached to an answer.
type Table struct {
	Title   string           `json:"title,omitempty" yaml:"title,omitempty"`
	Columns []string         `json:"columns,omitempty" yaml:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// Clone returns a copy that shares nothing mutable with t.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	out := &Table{Title: t.Title, Columns: slices.Clone(t.Columns)}
	if t.Rows != nil {
		out.Rows = make([]map[string]any, len(t.Rows))
		for i, r := range t.Rows {
			out.Rows[i] = maps.Clone(r)
		}
	}
	return out
}

// ColumnNames returns Columns, or the sorted keys of the first row when none were sent.
func (t *Table) ColumnNames() []string {
	if t == nil {
		return nil
	}
	if len(t.Columns) > 0 {
		return t.Columns
	}
	if len(t.Rows) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(t.Rows[0]))
}
