package session

import (
	"maps"

	"github.com/pkg/errors"
	"github.com/tiktoken-go/tokenizer"
)

// RequestContext is the `context` object sent with every chat request.
type RequestContext struct {
	Filters            map[string]any `json:"filters"`
	History            []Turn         `json:"history"`
	LastResultsSummary string         `json:"lastResultsSummary"`
	SeenIDs            []string       `json:"seen_ids"`
	Page               int            `json:"page"`
	UserName           string         `json:"user_name,omitempty"`
}

// TokenCounter counts tokens in a string.
type TokenCounter interface {
	Count(s string) (int, error)
}

// Window limits the history sent with a request. Zero values disable the
// corresponding limit.
type Window struct {
	MaxTurns    int
	TokenBudget int
	Counter     TokenCounter
}

// DefaultWindow matches the number of turns the backend reads.
var DefaultWindow = Window{MaxTurns: 6}

// Request projects the context into its wire form.
func (c *Context) Request(w Window) (RequestContext, error) {
	history, err := w.Trim(c.History)
	if err != nil {
		return RequestContext{}, err
	}
	filters := maps.Clone(c.ActiveFilters)
	if filters == nil {
		filters = map[string]any{}
	}
	page := c.Page
	if page <= 0 {
		page = 1
	}
	return RequestContext{
		Filters:            filters,
		History:            history,
		LastResultsSummary: c.LastResultsDigest,
		SeenIDs:            c.SeenIDList(),
		Page:               page,
		UserName:           c.UserName,
	}, nil
}

// Trim keeps the newest turns that fit MaxTurns and TokenBudget.
func (w Window) Trim(history []Turn) ([]Turn, error) {
	if w.MaxTurns > 0 && len(history) > w.MaxTurns {
		history = history[len(history)-w.MaxTurns:]
	}
	out := make([]Turn, len(history))
	copy(out, history)
	if w.TokenBudget <= 0 || w.Counter == nil {
		return out, nil
	}

	total := 0
	start := len(out)
	for i := len(out) - 1; i >= 0; i-- {
		n, err := w.Counter.Count(out[i].Content)
		if err != nil {
			return nil, errors.Wrap(err, "count history tokens")
		}
		if total+n > w.TokenBudget {
			break
		}
		total += n
		start = i
	}
	return out[start:], nil
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	codec tokenizer.Codec
}

var _ TokenCounter = &TiktokenCounter{}

// NewTiktokenCounter loads the cl100k_base encoding.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	codec, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "load cl100k_base encoding")
	}
	return &TiktokenCounter{codec: codec}, nil
}

func (t *TiktokenCounter) Count(s string) (int, error) {
	ids, _, err := t.codec.Encode(s)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}
