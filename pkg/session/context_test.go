package session

import (
	"strings"
	"testing"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/stretchr/testify/require"
)

func listing(id, title string, price float64) events.Listing {
	return events.Listing{ID: events.FlexString(id), Title: title, Price: events.NewPrice(price)}
}

func TestApplyIntentReplaces(t *testing.T) {
	c := New()
	c.ApplyIntent(map[string]any{"area": "Marina", "beds": 2})
	c.ApplyIntent(map[string]any{"city": "Dubai"})
	require.Equal(t, map[string]any{"city": "Dubai"}, c.ActiveFilters)

	in := map[string]any{"area": "JLT"}
	c.ApplyIntent(in)
	in["area"] = "changed"
	require.Equal(t, "JLT", c.ActiveFilters["area"])
}

func TestApplyFinalDigestAndSeen(t *testing.T) {
	c := New()
	items := []events.Listing{
		listing("1", "A", 1250000),
		listing("2", "B", 900),
		listing("3", "C", 1),
		listing("4", "D", 2),
		listing("5", "E", 3),
		listing("6", "F", 4),
	}
	c.ApplyFinal(items)
	require.Equal(t, "A (AED 1,250,000), B (AED 900), C (AED 1), D (AED 2), E (AED 3)", c.LastResultsDigest)
	require.Len(t, c.SeenIDs, 6)

	c.ApplyFinal([]events.Listing{listing("7", "G", 10)})
	require.Equal(t, "G (AED 10)", c.LastResultsDigest)
	require.Len(t, c.SeenIDs, 7)
	require.True(t, c.HasSeen("1"))

	c.ApplyFinal(nil)
	require.Equal(t, "G (AED 10)", c.LastResultsDigest)
	require.Len(t, c.SeenIDs, 7)

	fresh := New()
	fresh.ApplyFinal(nil)
	require.Equal(t, "", fresh.LastResultsDigest)
	require.Empty(t, fresh.SeenIDs)
}

func TestDigestMissingPrice(t *testing.T) {
	require.Equal(t, "X (AED N/A)", Digest([]events.Listing{{ID: "1", Title: "X"}}))
	require.Equal(t, "", Digest(nil))
}

func TestAppendTurnDetectsName(t *testing.T) {
	c := New()
	c.AppendTurn(RoleUser, "Hi, my name is Layla and I want a flat")
	require.Equal(t, "Layla", c.UserName)
	c.AppendTurn(RoleAssistant, "my name is Bot")
	require.Equal(t, "Layla", c.UserName)
	require.Len(t, c.History, 2)
}

func TestResetClearsEverything(t *testing.T) {
	c := New()
	id := c.ID
	c.ApplyIntent(map[string]any{"area": "Marina"})
	c.ApplyFinal([]events.Listing{listing("1", "A", 1)})
	c.AppendTurn(RoleUser, "hello")
	c.Page = 3

	c.Reset()
	require.NotEqual(t, id, c.ID)
	require.Nil(t, c.ActiveFilters)
	require.Empty(t, c.LastResultsDigest)
	require.Empty(t, c.SeenIDs)
	require.Empty(t, c.History)
	require.Equal(t, 1, c.Page)
}

func TestCloneIsIndependent(t *testing.T) {
	c := New()
	c.ApplyIntent(map[string]any{"area": "Marina"})
	c.ApplyFinal([]events.Listing{listing("1", "A", 1)})
	c.AppendTurn(RoleUser, "hi")

	cp := c.Clone()
	cp.ActiveFilters["area"] = "JBR"
	cp.SeenIDs["9"] = struct{}{}
	cp.History[0].Content = "changed"

	require.Equal(t, "Marina", c.ActiveFilters["area"])
	require.False(t, c.HasSeen("9"))
	require.Equal(t, "hi", c.History[0].Content)
}

type wordCounter struct{}

func (wordCounter) Count(s string) (int, error) { return len(strings.Fields(s)), nil }

func TestRequestWindow(t *testing.T) {
	c := New()
	for i := 0; i < 10; i++ {
		c.AppendTurn(RoleUser, strings.Repeat("w ", i+1))
	}
	c.ApplyIntent(map[string]any{"area": "Marina"})
	c.ApplyFinal([]events.Listing{listing("b", "B", 5), listing("a", "A", 1)})

	req, err := c.Request(DefaultWindow)
	require.NoError(t, err)
	require.Len(t, req.History, 6)
	require.Equal(t, strings.Repeat("w ", 5), req.History[0].Content)
	require.Equal(t, []string{"a", "b"}, req.SeenIDs)
	require.Equal(t, "Marina", req.Filters["area"])
	require.Equal(t, 1, req.Page)

	req, err = c.Request(Window{MaxTurns: 6, TokenBudget: 19, Counter: wordCounter{}})
	require.NoError(t, err)
	// newest turns hold 10 and 9 words
	require.Len(t, req.History, 2)
}

func TestRequestEmptyContext(t *testing.T) {
	req, err := New().Request(Window{})
	require.NoError(t, err)
	require.NotNil(t, req.Filters)
	require.Empty(t, req.History)
	require.Empty(t, req.SeenIDs)
}
