package frame

import (
	"context"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const sampleStream = "data: {\"type\":\"intent\",\"filters\":{\"area\":\"Marina\"}}\n\n" +
	"data: {\"type\":\"text_chunk\",\"content\":\"Hello \"}\n\n" +
	"data: {\"type\":\"results\",\"results\":[{\"id\":1,\"title\":\"A\",\"price\":100}]}\n\n" +
	"data: {\"type\":\"text_chunk\",\"content\":\"world\"}\n\n" +
	"data: {\"type\":\"final\",\"done\":true}\n\n"

func collect(t *testing.T, d *Decoder) []events.Event {
	t.Helper()
	var out []events.Event
	for ev, err := range d.All(context.Background()) {
		require.NoError(t, err)
		out = append(out, ev)
	}
	return out
}

func types(evs []events.Event) []events.EventType {
	out := make([]events.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type())
	}
	return out
}

func TestDecoder_WholeStream(t *testing.T) {
	d := NewDecoder(NewSliceSource(sampleStream))
	evs := collect(t, d)
	require.Equal(t, []events.EventType{
		events.EventTypeIntent,
		events.EventTypeTextChunk,
		events.EventTypeResults,
		events.EventTypeTextChunk,
		events.EventTypeFinal,
	}, types(evs))
	st := d.Stats()
	require.Equal(t, 5, st.Events)
	require.Equal(t, 5, st.Ignored)
	require.Equal(t, 0, st.Dropped)
}

func TestDecoder_ChunkBoundaryInvariance(t *testing.T) {
	want := types(collect(t, NewDecoder(NewSliceSource(sampleStream))))

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		src := &SliceSource{}
		data := []byte(sampleStream)
		for len(data) > 0 {
			n := rng.Intn(len(data)) + 1
			if rng.Intn(4) == 0 {
				src.Chunks = append(src.Chunks, []byte{})
			}
			src.Chunks = append(src.Chunks, data[:n])
			data = data[n:]
		}
		require.Equal(t, want, types(collect(t, NewDecoder(src))))
	}

	for size := 1; size <= 16; size++ {
		src := &SliceSource{Chunks: Split([]byte(sampleStream), size)}
		require.Equal(t, want, types(collect(t, NewDecoder(src))), "chunk size %d", size)
	}
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	line := "data: {\"type\":\"text_chunk\",\"content\":\"Marina 2BR\"}\n"
	for i := 0; i <= len(line); i++ {
		d := NewDecoder(NewSliceSource(line[:i], line[i:]))
		evs := collect(t, d)
		require.Len(t, evs, 1, "split at %d", i)
		require.Equal(t, "Marina 2BR", evs[0].(*events.EventTextChunk).Content, "split at %d", i)
	}
}

func TestDecoder_SplitAtMarkerBoundary(t *testing.T) {
	d := NewDecoder(NewSliceSource("data: ", "{\"type\":\"final\"}\n"))
	evs := collect(t, d)
	require.Equal(t, []events.EventType{events.EventTypeFinal}, types(evs))

	d = NewDecoder(NewSliceSource("da", "ta", ": {\"type\":\"fin", "al\"}", "\n"))
	evs = collect(t, d)
	require.Equal(t, []events.EventType{events.EventTypeFinal}, types(evs))
}

func TestDecoder_ManyLinesInOneChunk(t *testing.T) {
	chunk := strings.Repeat("data: {\"type\":\"text_chunk\",\"content\":\"x\"}\n", 10)
	evs := collect(t, NewDecoder(NewSliceSource(chunk)))
	require.Len(t, evs, 10)
}

func TestDecoder_CRLF(t *testing.T) {
	evs := collect(t, NewDecoder(NewSliceSource("data: {\"type\":\"text_chunk\",\"content\":\"a\"}\r\n\r\n")))
	require.Len(t, evs, 1)
	require.Equal(t, "a", evs[0].(*events.EventTextChunk).Content)
}

func TestDecoder_DiscardsUnterminatedTail(t *testing.T) {
	d := NewDecoder(NewSliceSource(
		"data: {\"type\":\"text_chunk\",\"content\":\"a\"}\n",
		"data: {\"type\":\"final\"}",
	))
	evs := collect(t, d)
	require.Equal(t, []events.EventType{events.EventTypeTextChunk}, types(evs))
	_, err := d.Next(context.Background())
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoder_SkipsMalformedLines(t *testing.T) {
	var decodeErrs []*DecodeError
	d := NewDecoder(NewSliceSource(
		"data: {not json}\n",
		": keep-alive comment\n",
		"event: message\n",
		"data: {\"type\":\"text_chunk\",\"content\":\"ok\"}\n",
		"data: [1,2]\n",
	), WithDecodeErrorHandler(func(e *DecodeError) { decodeErrs = append(decodeErrs, e) }))
	evs := collect(t, d)
	require.Equal(t, []events.EventType{events.EventTypeTextChunk}, types(evs))
	require.Len(t, decodeErrs, 2)
	require.Equal(t, 1, decodeErrs[0].Line)
	require.Equal(t, "{not json}", decodeErrs[0].Data)
	require.Equal(t, 2, d.Stats().Dropped)
}

func TestDecoder_UnknownTypeIsEmitted(t *testing.T) {
	evs := collect(t, NewDecoder(NewSliceSource("data: {\"type\":\"heartbeat\"}\n")))
	require.Len(t, evs, 1)
	require.Equal(t, events.EventTypeUnknown, evs[0].Type())
}

func TestDecoder_TransportErrorAfterEvents(t *testing.T) {
	boom := errors.New("connection reset")
	src := NewSliceSource("data: {\"type\":\"text_chunk\",\"content\":\"a\"}\ndata: {\"ty")
	src.Err = boom
	d := NewDecoder(src)

	ev, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.EventTypeTextChunk, ev.Type())

	_, err = d.Next(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = d.Next(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestDecoder_AllYieldsTransportError(t *testing.T) {
	src := NewSliceSource("data: {\"type\":\"final\"}\n")
	src.Err = io.ErrUnexpectedEOF
	d := NewDecoder(src)
	var gotErr error
	n := 0
	for ev, err := range d.All(context.Background()) {
		if err != nil {
			gotErr = err
			continue
		}
		require.NotNil(t, ev)
		n++
	}
	require.Equal(t, 1, n)
	require.ErrorIs(t, gotErr, io.ErrUnexpectedEOF)
}

func TestDecoder_LineTooLong(t *testing.T) {
	d := NewDecoder(NewSliceSource(
		"data: {\"type\":\"final\"}\n",
		"data: "+strings.Repeat("x", 64),
	), WithMaxLineBytes(32))
	ev, err := d.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, events.EventTypeFinal, ev.Type())
	_, err = d.Next(context.Background())
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestDecoder_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDecoder(NewSliceSource(sampleStream))
	_, err := d.Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestReaderSource(t *testing.T) {
	src := NewReaderSource(io.NopCloser(strings.NewReader(sampleStream)), 7)
	d := NewDecoder(src)
	evs := collect(t, d)
	require.Len(t, evs, 5)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

type errAfterReader struct {
	data []byte
	err  error
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	if len(r.data) == 0 {
		return n, r.err
	}
	return n, nil
}

func TestReaderSource_DataWithError(t *testing.T) {
	src := NewReaderSource(&errAfterReader{data: []byte("data: {\"type\":\"final\"}\n"), err: io.ErrUnexpectedEOF}, 0)
	chunk, err := src.Next(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, chunk)
	_, err = src.Next(context.Background())
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
