package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-go-golems/houser/pkg/frame"
	"github.com/go-go-golems/houser/pkg/session"
	"github.com/pkg/errors"
)

// ErrEmptyMessage is returned for blank chat messages.
var ErrEmptyMessage = errors.New("message is empty")

// maxJSONAnswer bounds a non-streamed chat answer.
const maxJSONAnswer = 1 << 20

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string                 `json:"message"`
	Context session.RequestContext `json:"context"`
}

// ChatStream is an open chat response. Source yields the raw body; close
// it to release the connection.
type ChatStream struct {
	RequestID string
	Source    *frame.ReaderSource
}

func (s *ChatStream) Close() error {
	if s == nil || s.Source == nil {
		return nil
	}
	return s.Source.Close()
}

// OpenChat starts a streamed answer. Reading the stream is bounded only by
// ctx. Backends that answer with a single JSON document instead of an
// event stream are adapted so the document arrives as one data line.
func (c *Client) OpenChat(ctx context.Context, req ChatRequest) (*ChatStream, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}
	resp, requestID, err := c.open(ctx, http.MethodPost, c.endpoint("/api/chat", nil), req, "text/event-stream")
	if err != nil {
		return nil, errors.Wrap(err, "open chat stream")
	}

	body := resp.Body
	if isJSON(resp.Header.Get("Content-Type")) {
		body, err = jsonAsEventLine(resp.Body)
		if err != nil {
			return nil, err
		}
	}
	return &ChatStream{
		RequestID: requestID,
		Source:    frame.NewReaderSource(body, 0),
	}, nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func jsonAsEventLine(body io.ReadCloser) (io.ReadCloser, error) {
	defer func() { _ = body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(body, maxJSONAnswer))
	if err != nil {
		return nil, errors.Wrap(err, "read chat answer")
	}
	var buf bytes.Buffer
	buf.WriteString(frame.DataPrefix)
	if err := json.Compact(&buf, raw); err != nil {
		return nil, errors.Wrap(err, "chat answer is not valid JSON")
	}
	buf.WriteString("\n")
	return io.NopCloser(&buf), nil
}
