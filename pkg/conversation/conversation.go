package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/houser/pkg/assembler"
	"github.com/go-go-golems/houser/pkg/client"
	"github.com/go-go-golems/houser/pkg/events"
	"github.com/go-go-golems/houser/pkg/frame"
	"github.com/go-go-golems/houser/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const sinkBuffer = 64

// ErrRequestInFlight is returned when a second request is started before
// the first one finished.
var ErrRequestInFlight = errors.New("a request is already in flight for this conversation")

// Backend is the part of the HTTP client a conversation needs.
type Backend interface {
	OpenChat(ctx context.Context, req client.ChatRequest) (*client.ChatStream, error)
	ClearCache(ctx context.Context) (string, error)
}

var _ Backend = &client.Client{}

// Sink receives every snapshot of every request, in order, from a separate
// goroutine fed through a bounded buffer. A sink slower than the stream
// applies backpressure once the buffer is full; snapshots are never
// dropped. Errors are logged and never affect the request.
type Sink interface {
	Record(ctx context.Context, convID string, snap assembler.Snapshot) error
}

type SinkFunc func(ctx context.Context, convID string, snap assembler.Snapshot) error

func (f SinkFunc) Record(ctx context.Context, convID string, snap assembler.Snapshot) error {
	return f(ctx, convID, snap)
}

// Conversation owns the session context and serializes requests against it.
type Conversation struct {
	backend Backend
	sess    *session.Context
	window  session.Window
	sinks   []Sink
	decOpts []frame.Option
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight bool
	cancel   context.CancelFunc
}

type Option func(*Conversation)

func WithWindow(w session.Window) Option {
	return func(c *Conversation) { c.window = w }
}

func WithSink(s Sink) Option {
	return func(c *Conversation) {
		if s != nil {
			c.sinks = append(c.sinks, s)
		}
	}
}

func WithDecoderOptions(opts ...frame.Option) Option {
	return func(c *Conversation) { c.decOpts = append(c.decOpts, opts...) }
}

func New(backend Backend, opts ...Option) *Conversation {
	c := &Conversation{
		backend: backend,
		sess:    session.New(),
		window:  session.DefaultWindow,
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = log.Logger.With().Str("component", "conversation").Str("conv_id", c.sess.ID).Logger()
	return c
}

// Session returns a copy of the session context. Call it between
// requests; the stream writes to the context while a request runs.
func (c *Conversation) Session() *session.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Clone()
}

// Ask sends message and streams the answer, calling onSnapshot for each
// snapshot from the calling goroutine. The user turn is recorded before the
// request, the assistant turn after the terminal snapshot.
func (c *Conversation) Ask(ctx context.Context, message string, onSnapshot func(assembler.Snapshot)) (assembler.Outcome, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return assembler.Outcome{}, client.ErrEmptyMessage
	}
	ctx, err := c.begin(ctx)
	if err != nil {
		return assembler.Outcome{}, err
	}
	defer c.end()

	rc, err := c.sess.Request(c.window)
	if err != nil {
		return assembler.Outcome{}, err
	}
	c.sess.AppendTurn(session.RoleUser, message)

	var (
		src       assembler.EventSource
		requestID string
	)
	cs, err := c.backend.OpenChat(ctx, client.ChatRequest{Message: message, Context: rc})
	if err != nil {
		src = failedSource{err: err}
	} else {
		requestID = cs.RequestID
		src = closingDecoder{Decoder: frame.NewDecoder(cs.Source, c.decOpts...), closer: cs}
	}

	logger := c.logger.With().Str("request_id", requestID).Logger()
	snaps := make(chan assembler.Snapshot, sinkBuffer)
	stream := assembler.New(src, c.sess,
		assembler.WithRequestID(requestID),
		assembler.WithLogger(logger.With().Str("component", "assembler").Logger()),
	)

	// sinks keep recording after the request is abandoned
	sinkCtx := context.WithoutCancel(ctx)
	var outcome assembler.Outcome
	var eg errgroup.Group
	eg.Go(func() error {
		defer close(snaps)
		var drainErr error
		outcome, drainErr = stream.Drain(ctx, func(s assembler.Snapshot) {
			if onSnapshot != nil {
				onSnapshot(s)
			}
			if len(c.sinks) > 0 {
				snaps <- s
			}
		})
		return drainErr
	})
	eg.Go(func() error {
		for s := range snaps {
			c.record(sinkCtx, s)
		}
		return nil
	})
	drainErr := eg.Wait()

	c.appendAssistantTurn(outcome)
	logger.Info().Str("outcome", string(outcome.Kind)).Msg("request finished")
	if drainErr != nil {
		return outcome, drainErr
	}
	return outcome, nil
}

// Cancel abandons the in-flight request, if any.
func (c *Conversation) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Busy reports whether a request is in flight.
func (c *Conversation) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// NewChat clears the server cache and resets the session. A failing
// clear-cache call is logged and otherwise ignored.
func (c *Conversation) NewChat(ctx context.Context) error {
	c.mu.Lock()
	if c.inFlight {
		c.mu.Unlock()
		return ErrRequestInFlight
	}
	c.sess.Reset()
	c.logger = log.Logger.With().Str("component", "conversation").Str("conv_id", c.sess.ID).Logger()
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if msg, err := c.backend.ClearCache(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("clear cache failed")
	} else {
		c.logger.Debug().Str("message", msg).Msg("server cache cleared")
	}
	return nil
}

func (c *Conversation) begin(ctx context.Context) (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return nil, ErrRequestInFlight
	}
	c.inFlight = true
	ctx, c.cancel = context.WithCancel(ctx)
	return ctx, nil
}

func (c *Conversation) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.inFlight = false
}

func (c *Conversation) record(ctx context.Context, s assembler.Snapshot) {
	for _, sink := range c.sinks {
		if err := sink.Record(ctx, c.sess.ID, s); err != nil {
			c.logger.Warn().Err(err).Int("seq", s.Seq).Msg("snapshot sink failed")
		}
	}
}

func (c *Conversation) appendAssistantTurn(o assembler.Outcome) {
	snap := o.Snapshot
	text := strings.TrimSpace(snap.TextContent)
	if msg := snap.FailureMessage(); msg != "" {
		if text != "" {
			text += "\n\n"
		}
		text += msg
	}
	if text == "" && len(snap.ResultItems) > 0 {
		text = session.Digest(snap.ResultItems)
	}
	if text == "" {
		return
	}
	c.sess.AppendTurn(session.RoleAssistant, text)
}

// failedSource reports an open failure as the stream's only outcome.
type failedSource struct {
	err error
}

func (f failedSource) Next(ctx context.Context) (events.Event, error) {
	return nil, errors.Wrap(f.err, "open stream")
}

// closingDecoder releases the HTTP body when the assembler releases the
// decoder.
type closingDecoder struct {
	*frame.Decoder
	closer interface{ Close() error }
}

func (d closingDecoder) Close() error {
	return d.closer.Close()
}
