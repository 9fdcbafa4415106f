package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultRequestTimeout = 30 * time.Second
	DefaultOpenRetries    = 3
	DefaultCacheTTL       = 5 * time.Minute

	// RequestIDHeader is sent with every request for log correlation.
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 4 << 10
)

// HTTPStatusError is a non-2xx response.
type HTTPStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

// Temporary reports whether retrying could help.
func (e *HTTPStatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the property search backend.
type Client struct {
	baseURL        *url.URL
	http           *http.Client
	requestTimeout time.Duration
	openRetries    int
	openMaxElapsed time.Duration
	cache          *cache.Cache
	logger         zerolog.Logger
}

type Option func(*Client) error

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) error {
		if h == nil {
			return errors.New("http client is nil")
		}
		c.http = h
		return nil
	}
}

// WithRequestTimeout bounds non-streaming calls. Chat streams are only
// bounded by their context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) error {
		c.requestTimeout = d
		return nil
	}
}

// WithOpenRetries sets how often opening a request is retried on network
// errors and 5xx responses. maxElapsed <= 0 keeps the backoff default.
func WithOpenRetries(n int, maxElapsed time.Duration) Option {
	return func(c *Client) error {
		if n < 0 {
			return errors.Errorf("invalid retry count %d", n)
		}
		c.openRetries = n
		c.openMaxElapsed = maxElapsed
		return nil
	}
}

// WithCacheTTL sets how long search and stats responses are cached.
// ttl <= 0 disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		if ttl <= 0 {
			c.cache = nil
			return nil
		}
		c.cache = cache.New(ttl, 2*ttl)
		return nil
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

func New(baseURL string, options ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		baseURL:        u,
		http:           &http.Client{},
		requestTimeout: DefaultRequestTimeout,
		openRetries:    DefaultOpenRetries,
		cache:          cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		logger:         log.Logger.With().Str("component", "client").Logger(),
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "apply client option")
		}
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL.String() }

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// open sends a request, retrying transient failures until a 2xx response
// arrives. The caller owns the returned body.
func (c *Client) open(ctx context.Context, method, target string, body any, accept string) (*http.Response, string, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, "", errors.Wrap(err, "encode request body")
		}
		payload = b
	}
	requestID := uuid.NewString()
	logger := c.logger.With().Str("request_id", requestID).Str("method", method).Str("url", target).Logger()

	var resp *http.Response
	attempt := 0
	op := func() error {
		attempt++
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "build request"))
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		req.Header.Set(RequestIDHeader, requestID)

		r, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		if r.StatusCode < 200 || r.StatusCode > 299 {
			b, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
			_ = r.Body.Close()
			se := &HTTPStatusError{Method: method, URL: target, StatusCode: r.StatusCode, Body: string(b)}
			if se.Temporary() {
				return se
			}
			return backoff.Permanent(se)
		}
		resp = r
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 200 * time.Millisecond
	if c.openMaxElapsed > 0 {
		eb.MaxElapsedTime = c.openMaxElapsed
	}
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.openRetries)), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("request failed, retrying")
	})
	if err != nil {
		return nil, requestID, err
	}
	logger.Debug().Int("status", resp.StatusCode).Int("attempts", attempt).Msg("request opened")
	return resp, requestID, nil
}

// doJSON performs a non-streaming call and decodes the response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}
	resp, _, err := c.open(ctx, method, c.endpoint(path, query), body, "application/json")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode %s response", path)
	}
	return nil
}
