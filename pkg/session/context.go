package session

import (
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DigestSize is how many results feed LastResultsDigest.
const DigestSize = 5

// Turn is one prior message in the conversation.
type Turn struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}

// Context is the memory a conversation carries between requests. It has a
// single writer: the stream assembler during a request, the conversation
// owner between requests. It is not safe for concurrent use.
type Context struct {
	ID                string
	ActiveFilters     map[string]any
	LastResultsDigest string
	SeenIDs           map[string]struct{}
	History           []Turn
	Page              int
	UserName          string
}

func New() *Context {
	return &Context{
		ID:      uuid.NewString(),
		SeenIDs: map[string]struct{}{},
		Page:    1,
	}
}

// ApplyIntent replaces the active filters. The previous filters are dropped
// entirely, never merged.
func (c *Context) ApplyIntent(filters map[string]any) {
	c.ActiveFilters = maps.Clone(filters)
}

// ApplyFinal folds a finished result set into the context: the digest is
// recomputed from the top results and their ids join SeenIDs. An empty set
// leaves both untouched so the digest keeps describing the last non-empty
// results.
func (c *Context) ApplyFinal(items []events.Listing) {
	if len(items) == 0 {
		return
	}
	c.LastResultsDigest = Digest(items)
	if c.SeenIDs == nil {
		c.SeenIDs = map[string]struct{}{}
	}
	for _, it := range items {
		id := strings.TrimSpace(it.ID.String())
		if id == "" {
			continue
		}
		c.SeenIDs[id] = struct{}{}
	}
}

var namePattern = regexp.MustCompile(`(?i)\bmy name is\s+([\p{L}][\p{L}'-]*)`)

// AppendTurn records a message. A user turn of the form "my name is X"
// also sets UserName.
func (c *Context) AppendTurn(role, content string) {
	c.History = append(c.History, Turn{Role: role, Content: content})
	if role != RoleUser {
		return
	}
	if m := namePattern.FindStringSubmatch(content); m != nil {
		c.UserName = m[1]
	}
}

// Reset clears everything and starts a new conversation id.
func (c *Context) Reset() {
	*c = *New()
}

func (c *Context) HasSeen(id string) bool {
	_, ok := c.SeenIDs[id]
	return ok
}

// SeenIDList returns the seen ids sorted.
func (c *Context) SeenIDList() []string {
	out := slices.Sorted(maps.Keys(c.SeenIDs))
	if out == nil {
		out = []string{}
	}
	return out
}

// Clone returns a deep copy.
func (c *Context) Clone() *Context {
	out := *c
	out.ActiveFilters = maps.Clone(c.ActiveFilters)
	out.SeenIDs = maps.Clone(c.SeenIDs)
	out.History = slices.Clone(c.History)
	return &out
}

// Digest summarizes up to DigestSize results as "Title (AED 1,250,000)"
// joined by ", ". An empty set digests to "".
func Digest(items []events.Listing) string {
	n := min(len(items), DigestSize)
	parts := make([]string, 0, n)
	for _, it := range items[:n] {
		parts = append(parts, it.Title+" (AED "+it.Price.Grouped()+")")
	}
	return strings.Join(parts, ", ")
}
