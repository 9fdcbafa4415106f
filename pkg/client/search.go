package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-go-golems/houser/pkg/events"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

const DefaultPageSize = 10

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query    string         `json:"q"`
	Filters  map[string]any `json:"filters,omitempty"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

type Source struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	URL   string `json:"url,omitempty" yaml:"url,omitempty"`
}

// SearchResponse is the non-streaming search document.
type SearchResponse struct {
	Summary  string           `json:"summary" yaml:"summary"`
	Message  string           `json:"message,omitempty" yaml:"message,omitempty"`
	Results  []events.Listing `json:"results" yaml:"results"`
	Sources  []Source         `json:"sources,omitempty" yaml:"sources,omitempty"`
	Filters  map[string]any   `json:"filters,omitempty" yaml:"filters,omitempty"`
	Page     int              `json:"page" yaml:"page"`
	PageSize int              `json:"pageSize" yaml:"page_size"`
	HasMore  bool             `json:"hasMore" yaml:"has_more"`
	Cached   bool             `json:"cached" yaml:"cached"`
}

// Search runs a one-shot query. Identical queries are served from the
// local cache until it expires.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" && len(req.Filters) == 0 {
		return nil, errors.New("search needs a query or filters")
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = DefaultPageSize
	}

	key, err := cacheKey("search", req)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if x, ok := c.cache.Get(key); ok {
			c.logger.Debug().Str("key", key).Msg("search cache hit")
			resp := *x.(*SearchResponse)
			resp.Cached = true
			return &resp, nil
		}
	}

	var out SearchResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/search", nil, req, &out); err != nil {
		return nil, errors.Wrap(err, "search")
	}
	if c.cache != nil {
		c.cache.Set(key, &out, cache.DefaultExpiration)
	}
	return &out, nil
}

// StatsRequest is the body of POST /api/stats.
type StatsRequest struct {
	Area string `json:"area,omitempty"`
	City string `json:"city,omitempty"`
}

func (c *Client) Stats(ctx context.Context, req StatsRequest) (*events.MarketStats, error) {
	key, err := cacheKey("stats", req)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if x, ok := c.cache.Get(key); ok {
			ms := *x.(*events.MarketStats)
			return &ms, nil
		}
	}
	var out events.MarketStats
	if err := c.doJSON(ctx, http.MethodPost, "/api/stats", nil, req, &out); err != nil {
		return nil, errors.Wrap(err, "stats")
	}
	if c.cache != nil {
		c.cache.Set(key, &out, cache.DefaultExpiration)
	}
	return &out, nil
}

// Hello fetches the greeting for a visitor name (may be empty).
func (c *Client) Hello(ctx context.Context, name string) (string, error) {
	q := url.Values{}
	if strings.TrimSpace(name) != "" {
		q.Set("q", name)
	}
	var out struct {
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/hello", q, nil, &out); err != nil {
		return "", errors.Wrap(err, "hello")
	}
	return out.Message, nil
}

// IsRealEstate asks the backend whether a query is about property.
func (c *Client) IsRealEstate(ctx context.Context, query string) (bool, error) {
	var out struct {
		IsRealEstate bool `json:"isRealEstate"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/intent", nil, map[string]string{"q": query}, &out); err != nil {
		return false, errors.Wrap(err, "intent")
	}
	return out.IsRealEstate, nil
}

// ClearCache asks the backend to drop its caches and drops the local one.
func (c *Client) ClearCache(ctx context.Context) (string, error) {
	if c.cache != nil {
		c.cache.Flush()
	}
	var out struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/clear-cache", nil, struct{}{}, &out); err != nil {
		return "", errors.Wrap(err, "clear cache")
	}
	return out.Message, nil
}

// cacheKey is the prefix plus canonical JSON of the request; map keys are
// sorted by encoding/json.
func cacheKey(prefix string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "build cache key")
	}
	return prefix + ":" + string(b), nil
}
