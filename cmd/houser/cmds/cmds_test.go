package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/go-go-golems/houser/pkg/config"
	"github.com/go-go-golems/houser/pkg/persistence/journal"
	"github.com/go-go-golems/houser/pkg/render"
	"github.com/go-go-golems/houser/pkg/ui"
	"github.com/stretchr/testify/require"
)

const transcript = "data: {\"type\":\"intent\",\"filters\":{\"area\":\"Dubai Marina\"}}\n\n" +
	"data: {\"type\":\"results\",\"results\":[{\"id\":7,\"title\":\"Marina Gate\",\"location\":\"Dubai Marina\",\"price\":1250000,\"beds\":2}]}\n\n" +
	"data: {\"type\":\"text_chunk\",\"content\":\"Found one \"}\n\n" +
	"data: {\"type\":\"text_chunk\",\"content\":\"match.\"}\n\n" +
	"data: {\"type\":\"final\",\"done\":true}\n\n"

func plainRenderer(t *testing.T) *render.Renderer {
	t.Helper()
	r, err := render.NewRenderer(render.WithStyle(render.StylePlain))
	require.NoError(t, err)
	return r
}

func TestParseFilters(t *testing.T) {
	f, err := parseFilters([]string{"bedrooms=2", "max_price=1500000.5", "furnished=true", "area=Dubai Marina"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"bedrooms":  int64(2),
		"max_price": 1500000.5,
		"furnished": true,
		"area":      "Dubai Marina",
	}, f)

	_, err = parseFilters([]string{"nope"})
	require.Error(t, err)

	f, err = parseFilters(nil)
	require.NoError(t, err)
	require.Nil(t, f)
}

func TestAnswerPrinterStreamsTextOnce(t *testing.T) {
	var out, status bytes.Buffer
	p := newAnswerPrinter(&out, &status, plainRenderer(t))

	p.OnSnapshot(assembler.Snapshot{DraftAnswer: assembler.DraftAnswer{Status: "Searching for properties in JLT..."}})
	p.OnSnapshot(assembler.Snapshot{DraftAnswer: assembler.DraftAnswer{Status: "Searching for properties in JLT...", TextContent: "Hel"}})
	p.OnSnapshot(assembler.Snapshot{DraftAnswer: assembler.DraftAnswer{TextContent: "Hello"}})
	require.NoError(t, p.Finish(assembler.Outcome{
		Kind:     assembler.OutcomeFinal,
		Snapshot: assembler.Snapshot{DraftAnswer: assembler.DraftAnswer{TextContent: "Hello", IsTerminal: true}},
	}))

	require.Equal(t, "Hello\n", out.String())
	require.Equal(t, 1, strings.Count(status.String(), "Searching for properties in JLT..."))
}

func TestReplayTranscriptIsChunkInvariant(t *testing.T) {
	var texts []string
	for _, size := range []int{0, 1, 3, 17} {
		var out bytes.Buffer
		p := newAnswerPrinter(&out, nil, plainRenderer(t))
		o, stats, err := replay(context.Background(), strings.NewReader(transcript), &out, p, replayOptions{chunkSize: size})
		require.NoError(t, err)
		require.Equal(t, assembler.OutcomeFinal, o.Kind)
		require.Equal(t, 5, stats.Events)
		require.NoError(t, p.Finish(o))
		texts = append(texts, out.String())
	}
	for _, s := range texts[1:] {
		require.Equal(t, texts[0], s)
	}
	require.Contains(t, texts[0], "Found one match.")
	require.Contains(t, texts[0], "Marina Gate – Dubai Marina – AED 1,250,000 – 2BR")
}

func TestReplayJSONPrintsEverySnapshot(t *testing.T) {
	var out bytes.Buffer
	o, _, err := replay(context.Background(), strings.NewReader(transcript), &out, nil, replayOptions{asJSON: true})
	require.NoError(t, err)
	require.True(t, o.Success())

	dec := json.NewDecoder(&out)
	n := 0
	var last map[string]any
	for dec.More() {
		require.NoError(t, dec.Decode(&last))
		n++
	}
	require.Equal(t, 4, n)
	require.Equal(t, "final", last["outcome"])
}

func TestOutcomeError(t *testing.T) {
	require.NoError(t, outcomeError(assembler.Outcome{Kind: assembler.OutcomeSilentCompletion}))
	err := outcomeError(assembler.Outcome{
		Kind: assembler.OutcomeServerError,
		Snapshot: assembler.Snapshot{DraftAnswer: assembler.DraftAnswer{
			Failure: &assembler.ServerReportedError{Reason: "quota"},
		}},
	})
	require.EqualError(t, err, "request failed: Error: quota")
}

func newChatServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = fmt.Fprint(w, transcript)
		case "/api/clear-cache":
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprint(w, `{"status":"ok","message":"Cache cleared"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRuntimeRecordsToJournal(t *testing.T) {
	srv := newChatServer(t)
	s := config.DefaultSettings()
	s.BaseURL = srv.URL
	s.JournalPath = filepath.Join(t.TempDir(), "journal.db")

	rt, err := NewRuntime(s)
	require.NoError(t, err)

	var out bytes.Buffer
	p := newAnswerPrinter(&out, nil, plainRenderer(t))
	require.NoError(t, askAndPrint(context.Background(), rt.Conversation, "2BR in Dubai Marina", p))
	require.Contains(t, out.String(), "Found one match.")

	convID := rt.Conversation.Session().ID
	require.NoError(t, rt.Close())

	store, err := OpenJournal(s.JournalPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	entries, err := store.List(context.Background(), journal.Query{ConvID: convID, TerminalOnly: true})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "final", entries[0].Outcome)
}

func TestREPLHandlesCommandsAndQuestions(t *testing.T) {
	srv := newChatServer(t)
	s := config.DefaultSettings()
	s.BaseURL = srv.URL
	rt, err := NewRuntime(s)
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	var copied string
	var out bytes.Buffer
	r := &repl{
		conv:    rt.Conversation,
		in:      strings.NewReader("/copy\n2BR in Dubai Marina\n/copy\n/new\n/quit\n"),
		out:     &out,
		printer: newAnswerPrinter(&out, nil, plainRenderer(t)),
		copyFn: func(s string) error {
			copied = s
			return nil
		},
	}
	require.NoError(t, r.Run(context.Background()))

	text := out.String()
	require.Contains(t, text, "Nothing to copy yet.")
	require.Contains(t, text, "Found one match.")
	require.Contains(t, text, "Copied last answer.")
	require.Equal(t, 2, strings.Count(text, ui.Greeting))
	require.True(t, strings.HasPrefix(copied, "Found one match."))
	require.Empty(t, rt.Conversation.Session().History)
}
