package journal

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryStore is a size-limited Store. It mirrors the ordering of the
// SQLite store so both behave the same in tests and in `--journal memory`.
type InMemoryStore struct {
	mu         sync.Mutex
	maxEntries int
	entries    []Entry
}

var _ Store = &InMemoryStore{}

// NewInMemoryStore keeps at most maxEntries entries, dropping the oldest.
func NewInMemoryStore(maxEntries int) *InMemoryStore {
	if maxEntries <= 0 {
		maxEntries = 5000
	}
	return &InMemoryStore{maxEntries: maxEntries}
}

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Save(_ context.Context, e Entry) error {
	if s == nil {
		return errors.New("in-memory journal: nil store")
	}
	if err := validateEntry(&e); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		cur := s.entries[i]
		if cur.ConvID == e.ConvID && cur.RequestID == e.RequestID && cur.Seq == e.Seq {
			e.CreatedAtMs = cur.CreatedAtMs
			s.entries[i] = e
			return nil
		}
	}
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.maxEntries; over > 0 {
		s.entries = append([]Entry(nil), s.entries[over:]...)
	}
	return nil
}

func (s *InMemoryStore) List(_ context.Context, q Query) ([]Entry, error) {
	if s == nil {
		return nil, errors.New("in-memory journal: nil store")
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	convID := strings.TrimSpace(q.ConvID)
	requestID := strings.TrimSpace(q.RequestID)

	s.mu.Lock()
	out := []Entry{}
	for _, e := range s.entries {
		if convID != "" && e.ConvID != convID {
			continue
		}
		if requestID != "" && e.RequestID != requestID {
			continue
		}
		if q.TerminalOnly && !e.Terminal {
			continue
		}
		if q.SinceMs > 0 && e.CreatedAtMs < q.SinceMs {
			continue
		}
		out = append(out, e)
	}
	s.mu.Unlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) Conversations(_ context.Context, limit int) ([]ConversationSummary, error) {
	if s == nil {
		return nil, errors.New("in-memory journal: nil store")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.Lock()
	entries := append([]Entry(nil), s.entries...)
	s.mu.Unlock()
	sortNewestFirst(entries)

	byConv := map[string]*ConversationSummary{}
	requests := map[string]map[string]struct{}{}
	order := []string{}
	for _, e := range entries {
		cs, ok := byConv[e.ConvID]
		if !ok {
			cs = &ConversationSummary{ConvID: e.ConvID, FirstSeenMs: e.CreatedAtMs, LastSeenMs: e.CreatedAtMs}
			byConv[e.ConvID] = cs
			requests[e.ConvID] = map[string]struct{}{}
			order = append(order, e.ConvID)
		}
		cs.Snapshots++
		requests[e.ConvID][e.RequestID] = struct{}{}
		cs.FirstSeenMs = min(cs.FirstSeenMs, e.CreatedAtMs)
		cs.LastSeenMs = max(cs.LastSeenMs, e.CreatedAtMs)
		if e.Terminal {
			if cs.LastOutcome == "" {
				cs.LastOutcome = e.Outcome
			}
			if e.Outcome == "server_error" || e.Outcome == "transport_error" {
				cs.FailedOutcome++
			}
		}
	}

	out := make([]ConversationSummary, 0, len(order))
	for _, id := range order {
		cs := byConv[id]
		cs.Requests = len(requests[id])
		out = append(out, *cs)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtMs != entries[j].CreatedAtMs {
			return entries[i].CreatedAtMs > entries[j].CreatedAtMs
		}
		return entries[i].Seq > entries[j].Seq
	})
}
