package frame

import (
	"bytes"
	"context"
	"io"
	"iter"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DataPrefix marks a line that carries an event.
const DataPrefix = "data: "

// DefaultMaxLineBytes bounds the unterminated tail kept between chunks.
const DefaultMaxLineBytes = 4 << 20

// ErrLineTooLong is returned when a line grows past the configured limit
// without a terminator.
var ErrLineTooLong = errors.New("frame: line exceeds maximum length")

// DecodeError describes a data line that could not be decoded. It is
// reported to the error handler and logged, never returned from Next.
type DecodeError struct {
	Line int
	Data string
	Err  error
}

func (e *DecodeError) Error() string {
	return errors.Wrapf(e.Err, "frame: line %d", e.Line).Error()
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Stats counts what the decoder has seen so far.
type Stats struct {
	Bytes   int64 `json:"bytes"`
	Lines   int   `json:"lines"`
	Events  int   `json:"events"`
	Dropped int   `json:"dropped"`
	Ignored int   `json:"ignored"`
}

// Decoder turns chunks into events. Lines are terminated by "\n" (a
// trailing "\r" is stripped); only lines starting with DataPrefix are
// decoded. An unterminated line at end of stream is discarded.
type Decoder struct {
	src     ChunkSource
	pending []byte
	queue   []events.Event
	err     error

	maxLine int
	onError func(*DecodeError)
	logger  zerolog.Logger
	stats   Stats
}

type Option func(*Decoder)

func WithMaxLineBytes(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxLine = n
		}
	}
}

// WithDecodeErrorHandler observes lines that failed to decode.
func WithDecodeErrorHandler(f func(*DecodeError)) Option {
	return func(d *Decoder) { d.onError = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

func NewDecoder(src ChunkSource, opts ...Option) *Decoder {
	d := &Decoder{
		src:     src,
		maxLine: DefaultMaxLineBytes,
		logger:  log.Logger.With().Str("component", "frame").Logger(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Next returns the next event. It returns io.EOF once the source ended
// cleanly and every complete line was consumed. Other errors come from the
// source (or ErrLineTooLong) and are sticky.
func (d *Decoder) Next(ctx context.Context) (events.Event, error) {
	for {
		if len(d.queue) > 0 {
			ev := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			return ev, nil
		}
		if d.err != nil {
			return nil, d.err
		}

		chunk, err := d.src.Next(ctx)
		if len(chunk) > 0 {
			d.feed(chunk)
		}
		if err != nil && d.err == nil {
			if errors.Is(err, io.EOF) {
				if len(d.pending) > 0 {
					d.logger.Debug().Int("bytes", len(d.pending)).Msg("discarding unterminated trailing line")
					d.pending = nil
				}
				d.logger.Debug().
					Int64("bytes", d.stats.Bytes).
					Int("lines", d.stats.Lines).
					Int("events", d.stats.Events).
					Int("dropped", d.stats.Dropped).
					Msg("stream ended")
				d.err = io.EOF
			} else {
				d.err = err
			}
		}
	}
}

// All ranges over the remaining events. Iteration stops after a clean end
// of stream; any other error is yielded once as the final pair.
func (d *Decoder) All(ctx context.Context) iter.Seq2[events.Event, error] {
	return func(yield func(events.Event, error) bool) {
		for {
			ev, err := d.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}

// Close releases the source when it supports closing.
func (d *Decoder) Close() error {
	if c, ok := d.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Decoder) Stats() Stats { return d.stats }

func (d *Decoder) feed(chunk []byte) {
	d.stats.Bytes += int64(len(chunk))
	d.pending = append(d.pending, chunk...)
	for {
		i := bytes.IndexByte(d.pending, '\n')
		if i < 0 {
			break
		}
		line := d.pending[:i]
		d.pending = d.pending[i+1:]
		d.handleLine(bytes.TrimSuffix(line, []byte("\r")))
	}
	if len(d.pending) == 0 {
		d.pending = nil
	} else {
		// detach the tail from the consumed prefix
		d.pending = bytes.Clone(d.pending)
	}
	if len(d.pending) > d.maxLine {
		d.logger.Warn().Int("bytes", len(d.pending)).Int("max", d.maxLine).Msg("unterminated line too long")
		d.pending = nil
		d.err = errors.Wrapf(ErrLineTooLong, "max %d bytes", d.maxLine)
	}
}

func (d *Decoder) handleLine(line []byte) {
	d.stats.Lines++
	if !bytes.HasPrefix(line, []byte(DataPrefix)) {
		d.stats.Ignored++
		return
	}
	payload := line[len(DataPrefix):]
	ev, err := events.NewEventFromJSON(payload)
	if err != nil {
		d.stats.Dropped++
		de := &DecodeError{Line: d.stats.Lines, Data: string(payload), Err: err}
		d.logger.Warn().Err(err).Int("line", de.Line).Msg("failed to decode event")
		if d.onError != nil {
			d.onError(de)
		}
		return
	}
	d.stats.Events++
	d.queue = append(d.queue, ev)
}
