package frame

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// ChunkSource yields raw chunks of the response body in arrival order.
// Next returns io.EOF after a clean end of stream. Any other error is a
// transport failure and is passed through untouched.
type ChunkSource interface {
	Next(ctx context.Context) ([]byte, error)
}

const defaultReadSize = 4096

// ReaderSource adapts an io.Reader such as an HTTP response body.
type ReaderSource struct {
	r       io.Reader
	buf     []byte
	pending error

	closeOnce sync.Once
	closeErr  error
}

var _ ChunkSource = &ReaderSource{}

// NewReaderSource reads up to size bytes per chunk. size <= 0 uses 4 KiB.
func NewReaderSource(r io.Reader, size int) *ReaderSource {
	if size <= 0 {
		size = defaultReadSize
	}
	return &ReaderSource{r: r, buf: make([]byte, size)}
}

func (s *ReaderSource) Next(ctx context.Context) ([]byte, error) {
	if s.pending != nil {
		return nil, s.pending
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for {
		n, err := s.r.Read(s.buf)
		if n > 0 {
			// hand back the data now, report err on the next call
			s.pending = err
			return bytes.Clone(s.buf[:n]), nil
		}
		if err != nil {
			s.pending = err
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

// Close closes the underlying reader when it is an io.Closer. Safe to call
// more than once.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() {
		if c, ok := s.r.(io.Closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}

// SliceSource replays fixed chunks, then returns Err (io.EOF when nil).
type SliceSource struct {
	Chunks [][]byte
	Err    error

	idx    int
	closed bool
}

var _ ChunkSource = &SliceSource{}

// NewSliceSource builds a source from string chunks.
func NewSliceSource(chunks ...string) *SliceSource {
	out := &SliceSource{}
	for _, c := range chunks {
		out.Chunks = append(out.Chunks, []byte(c))
	}
	return out
}

func (s *SliceSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.idx < len(s.Chunks) {
		c := s.Chunks[s.idx]
		s.idx++
		return c, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}

func (s *SliceSource) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *SliceSource) Closed() bool { return s.closed }

// Split cuts data into chunks of at most size bytes.
func Split(data []byte, size int) [][]byte {
	if size <= 0 || len(data) == 0 {
		if len(data) == 0 {
			return nil
		}
		return [][]byte{data}
	}
	out := make([][]byte, 0, len(data)/size+1)
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	return append(out, data)
}
