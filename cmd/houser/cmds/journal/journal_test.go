package journal

import (
	"bytes"
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	persist "github.com/go-go-golems/houser/pkg/persistence/journal"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *persist.InMemoryStore {
	t.Helper()
	store := persist.NewInMemoryStore(0)
	ctx := context.Background()
	entries := []persist.Entry{
		{ConvID: "conv-a", RequestID: "req-1", Seq: 1, Trigger: "results", CreatedAtMs: 1000, Payload: "text_content: \"\"\n"},
		{ConvID: "conv-a", RequestID: "req-1", Seq: 2, Trigger: "final", Outcome: "final", Terminal: true, CreatedAtMs: 1001, Payload: "text_content: done\n"},
		{ConvID: "conv-b", RequestID: "req-2", Seq: 1, Trigger: "error", Outcome: "server_error", Terminal: true, CreatedAtMs: 2000, Payload: "failure: quota\n"},
	}
	for _, e := range entries {
		require.NoError(t, store.Save(ctx, e))
	}
	return store
}

func TestRunListConversations(t *testing.T) {
	store := seedStore(t)
	var out bytes.Buffer
	require.NoError(t, runList(context.Background(), store, &out, listOptions{limit: 10}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "CONVERSATION"))
	require.True(t, strings.HasPrefix(lines[1], "conv-b"))
	require.Contains(t, lines[1], "server_error")
	require.True(t, strings.HasPrefix(lines[2], "conv-a"))
}

func TestRunListEntries(t *testing.T) {
	store := seedStore(t)
	var out bytes.Buffer
	require.NoError(t, runList(context.Background(), store, &out, listOptions{convID: "conv-a", terminalOnly: true}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "req-1")
	require.Contains(t, lines[1], "final")

	out.Reset()
	require.NoError(t, runList(context.Background(), store, &out, listOptions{convID: "conv-a", payload: true}))
	require.Contains(t, out.String(), "--- # req-1 #2 final\ntext_content: done\n")
	require.Contains(t, out.String(), "--- # req-1 #1 results\n")
}

func TestLoadRecent(t *testing.T) {
	_, err := loadRecent(context.Background(), persist.NewInMemoryStore(0), "", 10)
	require.Error(t, err)

	entries, err := loadRecent(context.Background(), seedStore(t), "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "conv-b", entries[0].ConvID)

	entries, err = loadRecent(context.Background(), seedStore(t), "conv-a", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestBrowserModalOpensAndCloses(t *testing.T) {
	entries, err := loadRecent(context.Background(), seedStore(t), "", 10)
	require.NoError(t, err)

	var m tea.Model = newBrowserModel(entries)
	require.Equal(t, "Loading...", m.View())

	m, _ = m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	bm := m.(browserModel)
	require.True(t, bm.ready)
	require.NotNil(t, bm.selected)
	require.Equal(t, "conv-b", bm.selected.ConvID)

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	bm = m.(browserModel)
	require.Equal(t, modalMode, bm.mode)
	require.Contains(t, m.View(), "failure: quota")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.Equal(t, normalMode, m.(browserModel).mode)
}

func TestEntryItemTitle(t *testing.T) {
	item := entryItem{Entry: persist.Entry{RequestID: "0123456789abcdef", Seq: 3, Trigger: "final", Outcome: "final"}}
	require.Equal(t, "01234567 #3 final [final]", item.Title())
	require.Equal(t, "-", formatMs(0))
}
