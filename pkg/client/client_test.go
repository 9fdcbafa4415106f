package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/go-go-golems/houser/pkg/frame"
	"github.com/go-go-golems/houser/pkg/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithOpenRetries(2, time.Second)}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func collectEvents(t *testing.T, s *ChatStream) []events.Event {
	t.Helper()
	d := frame.NewDecoder(s.Source)
	var out []events.Event
	for ev, err := range d.All(context.Background()) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func TestOpenChat_StreamsEvents(t *testing.T) {
	var got ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NotEmpty(t, r.Header.Get(RequestIDHeader))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, line := range []string{
			`{"type":"intent","filters":{"area":"Marina"}}`,
			`{"type":"text_chunk","content":"Hi"}`,
			`{"type":"final","done":true}`,
		} {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", line)
			fl.Flush()
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	sess := session.New()
	sess.ApplyIntent(map[string]any{"city": "Dubai"})
	sess.AppendTurn(session.RoleUser, "earlier")
	rc, err := sess.Request(session.DefaultWindow)
	require.NoError(t, err)

	s, err := c.OpenChat(context.Background(), ChatRequest{Message: "2BR in Marina", Context: rc})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NotEmpty(t, s.RequestID)

	evs := collectEvents(t, s)
	require.Len(t, evs, 3)
	require.Equal(t, "2BR in Marina", got.Message)
	require.Equal(t, "Dubai", got.Context.Filters["city"])
	require.Len(t, got.Context.History, 1)
	require.Equal(t, 1, got.Context.Page)
}

func TestOpenChat_JSONAnswerBecomesOneEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{\n  \"response\": \"Please provide a message.\",\n  \"type\": \"info\"\n}")
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv).OpenChat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	evs := collectEvents(t, s)
	require.Len(t, evs, 1)
	legacy := evs[0].(*events.EventLegacyResponse)
	require.Equal(t, "info", legacy.AnswerType)
	require.Equal(t, "Please provide a message.", legacy.Response)
}

func TestOpenChat_EmptyMessage(t *testing.T) {
	c, err := New("http://localhost:1")
	require.NoError(t, err)
	_, err = c.OpenChat(context.Background(), ChatRequest{Message: "  "})
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestOpenChat_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"type\":\"final\"}\n\n")
	}))
	defer srv.Close()

	s, err := newTestClient(t, srv).OpenChat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.Len(t, collectEvents(t, s), 1)
	require.EqualValues(t, 2, calls.Load())
}

func TestOpenChat_ClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).OpenChat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	var se *HTTPStatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadRequest, se.StatusCode)
	require.Contains(t, se.Body, "bad request")
	require.EqualValues(t, 1, calls.Load())
}

func TestSearch_CachesResponses(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req SearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "villa", req.Query)
		require.Equal(t, 1, req.Page)
		require.Equal(t, DefaultPageSize, req.PageSize)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"summary":"1 villa","results":[{"id":1,"title":"V","price":"3,000,000"}],"sources":[],"page":1,"pageSize":10,"hasMore":false,"cached":false}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	req := SearchRequest{Query: "villa", Filters: map[string]any{"city": "Dubai", "beds": 3}}
	first, err := c.Search(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Cached)
	require.Equal(t, events.NewPrice(3000000), first.Results[0].Price)

	second, err := c.Search(context.Background(), SearchRequest{Query: "villa", Filters: map[string]any{"beds": 3, "city": "Dubai"}})
	require.NoError(t, err)
	require.True(t, second.Cached)
	require.EqualValues(t, 1, calls.Load())

	_, err = c.Search(context.Background(), SearchRequest{})
	require.Error(t, err)
}

func TestStatsHelloClearCache(t *testing.T) {
	var searches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/stats":
			_, _ = io.WriteString(w, `{"area":"Marina","counts":{"total":3,"active":2},"prices":{"min":1,"max":3,"avg":2,"total_value":6}}`)
		case "/api/hello":
			_, _ = fmt.Fprintf(w, `{"message":"Hello, %s!"}`, r.URL.Query().Get("q"))
		case "/api/clear-cache":
			require.Equal(t, http.MethodPost, r.Method)
			_, _ = io.WriteString(w, `{"status":"success","message":"Cache cleared successfully"}`)
		case "/api/search":
			searches.Add(1)
			_, _ = io.WriteString(w, `{"summary":"","results":[]}`)
		case "/api/intent":
			_, _ = io.WriteString(w, `{"isRealEstate":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	ctx := context.Background()

	ms, err := c.Stats(ctx, StatsRequest{Area: "Marina"})
	require.NoError(t, err)
	require.Equal(t, 3, ms.Counts.Total)

	msg, err := c.Hello(ctx, "Layla")
	require.NoError(t, err)
	require.Equal(t, "Hello, Layla!", msg)

	ok, err := c.IsRealEstate(ctx, "flat in JLT")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = c.Search(ctx, SearchRequest{Query: "x"})
	require.NoError(t, err)
	_, err = c.Search(ctx, SearchRequest{Query: "x"})
	require.NoError(t, err)
	require.EqualValues(t, 1, searches.Load())

	msg, err = c.ClearCache(ctx)
	require.NoError(t, err)
	require.Equal(t, "Cache cleared successfully", msg)

	_, err = c.Search(ctx, SearchRequest{Query: "x"})
	require.NoError(t, err)
	require.EqualValues(t, 2, searches.Load())
}

func TestNewValidatesBaseURL(t *testing.T) {
	_, err := New("ftp://example.com")
	require.Error(t, err)
	c, err := New("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.BaseURL())
}
