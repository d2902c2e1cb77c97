// Package solr provides a thin pass-through client for a Solr search core.
package solr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/params"
)

// Result holds a raw Solr response ready for pass-through to the caller.
type Result struct {
	Body        []byte
	ContentType string
}

// Client queries a single Solr core over HTTP. It also acts as the search
// availability gate: when no base URL is configured the gate reports search
// as unavailable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
}

// Option is a functional option for the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for queries.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a Solr client. An empty baseURL yields a client whose
// Available method always returns false.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "solr",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 &&
				float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
	})
	return c
}

// Available reports whether the search subsystem is configured. Backend
// outages are the breaker's concern and surface from Search as errors, so a
// transient failure never turns search requests into access denials.
func (c *Client) Available() bool {
	return c.baseURL != ""
}

// Search forwards the given parameters to the Solr select handler verbatim
// and returns the raw response.
func (c *Client) Search(ctx context.Context, values params.Values) (*Result, error) {
	if c.baseURL == "" {
		return nil, apierr.New(http.StatusServiceUnavailable, "search is not configured")
	}

	query := url.Values{}
	for key, vals := range values {
		for _, val := range vals {
			query.Add(key, val)
		}
	}
	if query.Get("wt") == "" {
		query.Set("wt", "json")
	}

	res, err := c.breaker.Execute(func() (any, error) {
		return c.query(ctx, query)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apierr.Wrap(http.StatusServiceUnavailable, "search temporarily unavailable", err)
		}
		return nil, err
	}
	return res.(*Result), nil
}

func (c *Client) query(ctx context.Context, query url.Values) (*Result, error) {
	u := fmt.Sprintf("%s/select?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apierr.Wrap(http.StatusInternalServerError, "failed to build search request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(http.StatusBadGateway, "search backend unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierr.Wrap(http.StatusBadGateway, "failed to read search response", err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("search backend returned error",
			observability.Int("status", resp.StatusCode),
		)
		return nil, apierr.Newf(resp.StatusCode, "search failed with status %d", resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/json"
	}
	return &Result{Body: body, ContentType: ct}, nil
}
