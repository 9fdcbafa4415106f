package assembler

import (
	"context"
	"io"
	"iter"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/go-go-golems/houser/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EventSource is the decoded event sequence of one response.
type EventSource interface {
	Next(ctx context.Context) (events.Event, error)
}

// Stream applies the events of one request to a DraftAnswer and the
// conversation's session context, yielding a snapshot after every
// observable change. It is a finite, non-restartable sequence and must be
// driven from a single goroutine; cancel the context passed to Next to
// abandon it from elsewhere.
type Stream struct {
	src       EventSource
	sess      *session.Context
	draft     DraftAnswer
	requestID string
	observers []func(Snapshot)
	logger    zerolog.Logger

	seq      int
	last     Snapshot
	outcome  Outcome
	done     bool
	released bool
}

type Option func(*Stream)

func WithRequestID(id string) Option {
	return func(s *Stream) { s.requestID = id }
}

// WithObserver registers a function called synchronously with every
// snapshot, before Next returns it.
func WithObserver(f func(Snapshot)) Option {
	return func(s *Stream) {
		if f != nil {
			s.observers = append(s.observers, f)
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// New starts a stream over src. sess is mutated in place at the intent and
// final transitions; a nil sess gets a fresh context.
func New(src EventSource, sess *session.Context, opts ...Option) *Stream {
	if sess == nil {
		sess = session.New()
	}
	s := &Stream{
		src:    src,
		sess:   sess,
		draft:  newDraft(),
		logger: log.Logger.With().Str("component", "assembler").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.requestID != "" {
		s.logger = s.logger.With().Str("request_id", s.requestID).Logger()
	}
	return s
}

// Next returns the next snapshot. After the terminal snapshot it returns
// io.EOF. If ctx is canceled first, the stream is abandoned and an error
// matching ErrAbandoned is returned.
func (s *Stream) Next(ctx context.Context) (Snapshot, error) {
	if s.done {
		if s.outcome.Kind == OutcomeAbandoned {
			return Snapshot{}, &AbandonedError{Cause: s.outcome.Err}
		}
		return Snapshot{}, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, s.abandon(err)
		}
		ev, err := s.src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, s.abandon(ctx.Err())
			}
			if errors.Is(err, io.EOF) {
				return s.terminate(OutcomeSilentCompletion, nil, ""), nil
			}
			return s.terminate(OutcomeTransportError, &TransportError{Op: "read stream", Err: err}, ""), nil
		}
		// the source may hand out a buffered event after cancellation
		if err := ctx.Err(); err != nil {
			return Snapshot{}, s.abandon(err)
		}
		if snap, ok := s.apply(ev); ok {
			return snap, nil
		}
	}
}

// All ranges over the remaining snapshots. A terminal failure is carried in
// the last snapshot; the error slot is only used for abandonment.
func (s *Stream) All(ctx context.Context) iter.Seq2[Snapshot, error] {
	return func(yield func(Snapshot, error) bool) {
		for {
			snap, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Snapshot{}, err)
				return
			}
			if !yield(snap, nil) {
				return
			}
		}
	}
}

// Drain consumes the stream, calling fn for each snapshot, and returns
// the outcome.
func (s *Stream) Drain(ctx context.Context, fn func(Snapshot)) (Outcome, error) {
	for snap, err := range s.All(ctx) {
		if err != nil {
			return s.outcome, err
		}
		if fn != nil {
			fn(snap)
		}
	}
	return s.outcome, nil
}

// Outcome is pending until the stream reached a terminal state.
func (s *Stream) Outcome() Outcome { return s.outcome }

// Session returns the context this stream writes to.
func (s *Stream) Session() *session.Context { return s.sess }

// Close abandons the stream if it has not finished and releases the
// source. Calling it more than once is fine.
func (s *Stream) Close() error {
	if !s.done {
		_ = s.abandon(nil)
		return nil
	}
	return s.release()
}

func (s *Stream) apply(ev events.Event) (Snapshot, bool) {
	switch e := ev.(type) {
	case *events.EventIntent:
		s.sess.ApplyIntent(e.Filters)
		s.draft.Status = searchingStatus(e.Filters)
		s.logger.Debug().Interface("filters", e.Filters).Msg("intent")
		return Snapshot{}, false

	case *events.EventResults:
		s.draft.ResultItems = events.CloneListings(e.Results)
		s.draft.IsFallback = e.IsFallback
		return s.emit(e.Type(), OutcomePending), true

	case *events.EventSearchStats:
		s.draft.Stats = e.Stats
		s.draft.StatsSummary = e.Summary
		return s.emit(e.Type(), OutcomePending), true

	case *events.EventKeyHighlights:
		h := e.Highlights
		s.draft.KeyHighlights = &h
		return s.emit(e.Type(), OutcomePending), true

	case *events.EventTextChunk:
		s.draft.TextContent += e.Content
		return s.emit(e.Type(), OutcomePending), true

	case *events.EventLegacyResponse:
		s.draft.TextContent = e.Response
		s.draft.AnswerKind = e.AnswerType
		if e.Stats != nil {
			s.draft.Stats = e.Stats
		}
		if len(e.Results) > 0 {
			s.draft.ResultItems = events.CloneListings(e.Results)
		}
		if e.Table != nil {
			s.draft.Table = e.Table.Clone()
		}
		if !e.IsSearch() {
			s.draft.ConversationallyComplete = true
			s.draft.Status = ""
		}
		return s.emit(e.Type(), OutcomePending), true

	case *events.EventFinal:
		if e.Table != nil {
			s.draft.Table = e.Table.Clone()
		}
		s.sess.ApplyFinal(s.draft.ResultItems)
		return s.terminate(OutcomeFinal, nil, e.Type()), true

	case *events.EventError:
		return s.terminate(OutcomeServerError, &ServerReportedError{Reason: e.Reason}, e.Type()), true

	case *events.EventUnknown:
		s.logger.Debug().Str("type", e.RawType).Msg("ignoring unknown event")
		return Snapshot{}, false

	default:
		s.logger.Debug().Str("type", string(ev.Type())).Msg("ignoring unhandled event")
		return Snapshot{}, false
	}
}

func (s *Stream) emit(trigger events.EventType, kind OutcomeKind) Snapshot {
	s.seq++
	snap := Snapshot{
		Seq:         s.seq,
		RequestID:   s.requestID,
		Trigger:     trigger,
		Outcome:     kind,
		DraftAnswer: s.draft.Clone(),
	}
	s.last = snap
	for _, f := range s.observers {
		f(snap)
	}
	return snap
}

func (s *Stream) terminate(kind OutcomeKind, failure error, trigger events.EventType) Snapshot {
	s.draft.IsTerminal = true
	s.draft.Status = ""
	if failure != nil {
		s.draft.Failure = failure
	}
	snap := s.emit(trigger, kind)
	s.outcome = Outcome{Kind: kind, Err: failure, Snapshot: snap}
	s.done = true
	if err := s.release(); err != nil {
		s.logger.Debug().Err(err).Msg("release stream")
	}

	ev := s.logger.Info()
	if failure != nil {
		ev = s.logger.Warn().Err(failure)
	}
	ev.Str("outcome", string(kind)).
		Int("snapshots", s.seq).
		Int("results", len(s.draft.ResultItems)).
		Int("text_len", len(s.draft.TextContent)).
		Msg("stream finished")
	return snap
}

func (s *Stream) abandon(cause error) error {
	if !s.done {
		s.done = true
		s.outcome = Outcome{Kind: OutcomeAbandoned, Err: cause, Snapshot: s.last}
		if err := s.release(); err != nil {
			s.logger.Debug().Err(err).Msg("release stream")
		}
		s.logger.Info().AnErr("cause", cause).Int("snapshots", s.seq).Msg("stream abandoned")
	}
	return &AbandonedError{Cause: s.outcome.Err}
}

func (s *Stream) release() error {
	if s.released {
		return nil
	}
	s.released = true
	if c, ok := s.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func searchingStatus(filters map[string]any) string {
	where := "UAE"
	for _, k := range []string{"area", "city"} {
		if v, ok := filters[k].(string); ok && v != "" {
			where = v
			break
		}
	}
	return "Searching for properties in " + where + "..."
}
