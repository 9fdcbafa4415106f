package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEventFromJSON_StreamingTypes(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want EventType
	}{
		{"intent", `{"type":"intent","filters":{"area":"Marina"},"processing":true}`, EventTypeIntent},
		{"results", `{"type":"results","results":[{"id":1,"title":"A","price":100}]}`, EventTypeResults},
		{"search stats", `{"type":"search_stats","stats":{"total":3},"summary":"3 found"}`, EventTypeSearchStats},
		{"highlights", `{"type":"key_highlights","highlights":{"count":2,"avg_price":150}}`, EventTypeKeyHighlights},
		{"text", `{"type":"text_chunk","content":"Hi"}`, EventTypeTextChunk},
		{"final", `{"type":"final","done":true}`, EventTypeFinal},
		{"error", `{"type":"error","reason":"boom"}`, EventTypeError},
		{"legacy", `{"response":"hello","type":"info"}`, EventTypeLegacyResponse},
		{"legacy without type", `{"response":"hello"}`, EventTypeLegacyResponse},
		{"unknown", `{"type":"ping"}`, EventTypeUnknown},
		{"no type", `{"foo":1}`, EventTypeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := NewEventFromJSON([]byte(tc.in))
			require.NoError(t, err)
			require.Equal(t, tc.want, ev.Type())
		})
	}
}

func TestNewEventFromJSON_Fields(t *testing.T) {
	ev, err := NewEventFromJSON([]byte(`{"type":"intent","filters":{"area":"Marina","beds":2}}`))
	require.NoError(t, err)
	intent := ev.(*EventIntent)
	require.Equal(t, "Marina", intent.Filters["area"])
	require.EqualValues(t, 2, intent.Filters["beds"])

	ev, err = NewEventFromJSON([]byte(`{"type":"results","isFallback":true,"results":[{"id":"p-1","title":"Villa","price":"AED 1,250,000","beds":"Studio"},{"id":7,"price":null,"beds":3}]}`))
	require.NoError(t, err)
	res := ev.(*EventResults)
	require.True(t, res.IsFallback)
	require.Len(t, res.Results, 2)
	require.Equal(t, FlexString("p-1"), res.Results[0].ID)
	require.Equal(t, NewPrice(1250000), res.Results[0].Price)
	require.Equal(t, "Studio", res.Results[0].BedsLabel())
	require.Equal(t, FlexString("7"), res.Results[1].ID)
	require.False(t, res.Results[1].Price.Valid)
	require.Equal(t, "3BR", res.Results[1].BedsLabel())

	ev, err = NewEventFromJSON([]byte(`{"type":"final","tableTitle":"Compare","tableData":[{"a":1}]}`))
	require.NoError(t, err)
	final := ev.(*EventFinal)
	require.NotNil(t, final.Table)
	require.Equal(t, "Compare", final.Table.Title)
	require.Equal(t, []string{"a"}, final.Table.ColumnNames())
}

func TestNewEventFromJSON_ErrorReasonFallbacks(t *testing.T) {
	ev, err := NewEventFromJSON([]byte(`{"type":"error","response":"Error generating response: boom"}`))
	require.NoError(t, err)
	require.Equal(t, "Error generating response: boom", ev.(*EventError).Reason)

	ev, err = NewEventFromJSON([]byte(`{"type":"error","message":"nope"}`))
	require.NoError(t, err)
	require.Equal(t, "nope", ev.(*EventError).Reason)

	ev, err = NewEventFromJSON([]byte(`{"type":"error"}`))
	require.NoError(t, err)
	require.Equal(t, "unknown server error", ev.(*EventError).Reason)
}

func TestNewEventFromJSON_LegacyStats(t *testing.T) {
	ev, err := NewEventFromJSON([]byte(`{"type":"stats","response":"Market summary","stats":{"area":"Marina"},"tableData":[{"name":"Dubai"}],"tableTitle":"Cities"}`))
	require.NoError(t, err)
	legacy := ev.(*EventLegacyResponse)
	require.Equal(t, "stats", legacy.AnswerType)
	require.False(t, legacy.IsSearch())
	require.JSONEq(t, `{"area":"Marina"}`, string(legacy.Stats))
	require.NotNil(t, legacy.Table)
	require.Equal(t, "Cities", legacy.Table.Title)

	ev, err = NewEventFromJSON([]byte(`{"response":"x"}`))
	require.NoError(t, err)
	require.Equal(t, "info", ev.(*EventLegacyResponse).AnswerType)
}

func TestNewEventFromJSON_Malformed(t *testing.T) {
	for _, in := range []string{``, `not json`, `[1,2]`, `"str"`, `{"type":"text_chunk","content":`, `{"type":"results","results":"nope"}`} {
		_, err := NewEventFromJSON([]byte(in))
		require.Error(t, err, in)
	}
}

func TestEventPayloadIsKept(t *testing.T) {
	in := `{"type":"text_chunk","content":"Hi"}`
	ev, err := NewEventFromJSON([]byte(in))
	require.NoError(t, err)
	require.JSONEq(t, in, string(ev.(*EventTextChunk).Raw()))
}

func TestListingKeyFeaturesAcceptListOrString(t *testing.T) {
	ev, err := NewEventFromJSON([]byte(`{"type":"results","results":[
		{"id":1,"key_features":["Sea view","Balcony","Gym"]},
		{"id":"b2","beds":0,"key_features":"Pool; Maid room / Parking"}
	]}`))
	require.NoError(t, err)
	res := ev.(*EventResults).Results
	require.Len(t, res, 2)
	require.Equal(t, Features{"Sea view", "Balcony", "Gym"}, res[0].KeyFeatures)
	require.Equal(t, Features{"Pool", "Maid room", "Parking"}, res[1].KeyFeatures)
	require.Equal(t, "Studio", res[1].BedsLabel())
	require.Equal(t, FlexString("1"), res[0].ID)
}
