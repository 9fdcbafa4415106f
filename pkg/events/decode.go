package events

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// envelope holds the fields used to pick an event type.
type envelope struct {
	Type     string          `json:"type"`
	Response json.RawMessage `json:"response"`
	Reason   json.RawMessage `json:"reason"`
	Message  json.RawMessage `json:"message"`
}

// tableFields are the optional table keys carried by final and legacy records.
type tableFields struct {
	TableData    []map[string]any `json:"tableData"`
	TableTitle   string           `json:"tableTitle"`
	TableColumns []string         `json:"tableColumns"`
}

func (t tableFields) table() *Table {
	if len(t.TableData) == 0 {
		return nil
	}
	return &Table{Title: t.TableTitle, Columns: t.TableColumns, Rows: t.TableData}
}

// NewEventFromJSON decodes one stream record. The `type` field selects the
// event; records without a streaming type but with a `response` field are
// legacy whole-answer records. Well-formed records of any other shape decode
// to *EventUnknown. An error is returned only for input that is not a JSON
// object or whose fields do not match their event's shape.
func NewEventFromJSON(b []byte) (Event, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, errors.New("event payload is not a JSON object")
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, "decode event envelope")
	}
	raw := json.RawMessage(bytes.Clone(b))
	impl := EventImpl{Payload: raw}

	switch EventType(env.Type) {
	case EventTypeIntent:
		ev := &EventIntent{EventImpl: impl}
		return decodeInto(b, ev, env.Type)
	case EventTypeResults:
		ev := &EventResults{EventImpl: impl}
		return decodeInto(b, ev, env.Type)
	case EventTypeSearchStats:
		ev := &EventSearchStats{EventImpl: impl}
		return decodeInto(b, ev, env.Type)
	case EventTypeKeyHighlights:
		ev := &EventKeyHighlights{EventImpl: impl}
		return decodeInto(b, ev, env.Type)
	case EventTypeTextChunk:
		ev := &EventTextChunk{EventImpl: impl}
		return decodeInto(b, ev, env.Type)
	case EventTypeFinal:
		var tf tableFields
		if err := json.Unmarshal(b, &tf); err != nil {
			return nil, errors.Wrap(err, "decode final event")
		}
		return &EventFinal{EventImpl: impl, Table: tf.table()}, nil
	case EventTypeError:
		return &EventError{EventImpl: impl, Reason: errorReason(env)}, nil
	case EventTypeLegacyResponse:
		return decodeLegacy(b, impl, "")
	}

	if len(env.Response) > 0 && !bytes.Equal(env.Response, []byte("null")) {
		return decodeLegacy(b, impl, env.Type)
	}
	return &EventUnknown{EventImpl: impl, RawType: env.Type}, nil
}

func decodeInto(b []byte, ev Event, typ string) (Event, error) {
	if err := json.Unmarshal(b, ev); err != nil {
		return nil, errors.Wrapf(err, "decode %s event", typ)
	}
	return ev, nil
}

func decodeLegacy(b []byte, impl EventImpl, typ string) (Event, error) {
	var body struct {
		Response FlexString      `json:"response"`
		Stats    json.RawMessage `json:"stats"`
		Results  []Listing       `json:"results"`
		tableFields
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, errors.Wrap(err, "decode legacy response")
	}
	if strings.TrimSpace(typ) == "" {
		typ = "info"
	}
	ev := &EventLegacyResponse{
		EventImpl:  impl,
		Response:   string(body.Response),
		AnswerType: typ,
		Results:    body.Results,
		Table:      body.table(),
	}
	if len(body.Stats) > 0 && !bytes.Equal(body.Stats, []byte("null")) {
		ev.Stats = body.Stats
	}
	return ev, nil
}

// errorReason prefers `reason`, then `response`, then `message`.
func errorReason(env envelope) string {
	for _, raw := range []json.RawMessage{env.Reason, env.Response, env.Message} {
		if len(raw) == 0 {
			continue
		}
		var s FlexString
		if err := json.Unmarshal(raw, &s); err == nil && strings.TrimSpace(string(s)) != "" {
			return string(s)
		}
		if !bytes.Equal(raw, []byte("null")) {
			return string(raw)
		}
	}
	return "unknown server error"
}
