package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/observability"
)

// Client is a Repository backed by a remote repository service over HTTP.
// Calls go through a circuit breaker so a dead backend fails fast instead of
// holding request goroutines on dial timeouts.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     observability.Logger
}

// ClientOption is a functional option for the repository client.
type ClientOption func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(logger observability.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a repository client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, opts ...ClientOption) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("repository base URL is required")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "repository",
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("repository circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers mean the backend is healthy.
			if err == nil {
				return true
			}
			status := apierr.StatusOf(err)
			return status >= 400 && status < 500
		},
	})

	return c, nil
}

// GetObject returns the object with the given pid.
func (c *Client) GetObject(ctx context.Context, pid string) (*Object, error) {
	var obj Object
	if err := c.do(ctx, http.MethodGet, c.objectPath(pid), nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// listPage is the wire form of a listing response.
type listPage struct {
	Total   int       `json:"total"`
	Objects []*Object `json:"objects"`
}

// ListObjects returns a page of objects and the total count.
func (c *Client) ListObjects(ctx context.Context, offset, limit int) ([]*Object, int, error) {
	q := url.Values{}
	q.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var page listPage
	if err := c.do(ctx, http.MethodGet, "/objects?"+q.Encode(), nil, &page); err != nil {
		return nil, 0, err
	}
	return page.Objects, page.Total, nil
}

// CreateObject stores a new object.
func (c *Client) CreateObject(ctx context.Context, obj *Object) (*Object, error) {
	var created Object
	if err := c.do(ctx, http.MethodPost, "/objects", obj, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateObject applies the update to an existing object.
func (c *Client) UpdateObject(ctx context.Context, pid string, upd ObjectUpdate) (*Object, error) {
	var updated Object
	if err := c.do(ctx, http.MethodPut, c.objectPath(pid), upd, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteObject purges an object.
func (c *Client) DeleteObject(ctx context.Context, pid string) error {
	return c.do(ctx, http.MethodDelete, c.objectPath(pid), nil, nil)
}

// datastreamEnvelope is the wire form of datastream create/update requests.
type datastreamEnvelope struct {
	Datastream *Datastream      `json:"datastream,omitempty"`
	Update     DatastreamUpdate `json:"update,omitempty"`
	Content    []byte           `json:"content,omitempty"`
}

// AddDatastream attaches a datastream to an object.
func (c *Client) AddDatastream(ctx context.Context, pid string, ds *Datastream, content []byte) (*Datastream, error) {
	body := datastreamEnvelope{Datastream: ds, Content: content}
	var created Datastream
	if err := c.do(ctx, http.MethodPost, c.objectPath(pid)+"/datastreams", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateDatastream applies property and content updates to a datastream.
func (c *Client) UpdateDatastream(ctx context.Context, pid, dsid string, upd DatastreamUpdate, content []byte) (*Datastream, error) {
	body := datastreamEnvelope{Update: upd, Content: content}
	var updated Datastream
	if err := c.do(ctx, http.MethodPut, c.datastreamPath(pid, dsid), body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteDatastream purges a datastream.
func (c *Client) DeleteDatastream(ctx context.Context, pid, dsid string) error {
	return c.do(ctx, http.MethodDelete, c.datastreamPath(pid, dsid), nil, nil)
}

// DatastreamContent returns the raw bytes and mime type of a datastream.
func (c *Client) DatastreamContent(ctx context.Context, pid, dsid string) ([]byte, string, error) {
	var data []byte
	var mime string
	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.datastreamPath(pid, dsid)+"/content", nil)
		if err != nil {
			return nil, apierr.Wrap(http.StatusInternalServerError, "building repository request", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apierr.Wrap(http.StatusServiceUnavailable, "repository unavailable", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, c.statusError(resp)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, apierr.Wrap(http.StatusBadGateway, "reading repository response", err)
		}
		mime = resp.Header.Get("Content-Type")
		return nil, nil
	})
	if err != nil {
		return nil, "", c.breakerError(err)
	}
	return data, mime, nil
}

// AddRelationship asserts a triple on an object.
func (c *Client) AddRelationship(ctx context.Context, pid string, rel Relationship) error {
	return c.do(ctx, http.MethodPost, c.objectPath(pid)+"/relationships", rel, nil)
}

// purgeResult is the wire form of a relationship purge response.
type purgeResult struct {
	Removed int `json:"removed"`
}

// PurgeRelationships removes triples matching the pattern.
func (c *Client) PurgeRelationships(ctx context.Context, pid string, match Relationship) (int, error) {
	q := url.Values{}
	if match.Predicate != "" {
		q.Set("predicate", match.Predicate)
	}
	if match.Object != "" {
		q.Set("object", match.Object)
	}
	path := c.objectPath(pid) + "/relationships"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var result purgeResult
	if err := c.do(ctx, http.MethodDelete, path, nil, &result); err != nil {
		return 0, err
	}
	return result.Removed, nil
}

// do performs a JSON round trip through the circuit breaker.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			encoded, err := json.Marshal(body)
			if err != nil {
				return nil, apierr.Wrap(http.StatusInternalServerError, "encoding repository request", err)
			}
			reader = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, apierr.Wrap(http.StatusInternalServerError, "building repository request", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, apierr.Wrap(http.StatusServiceUnavailable, "repository unavailable", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, c.statusError(resp)
		}
		if out == nil {
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, apierr.Wrap(http.StatusBadGateway, "decoding repository response", err)
		}
		return nil, nil
	})
	return c.breakerError(err)
}

// statusError converts a non-2xx repository answer into an apierr carrying
// the backend's status code.
func (c *Client) statusError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Message string `json:"message"`
	}
	message := fmt.Sprintf("repository returned status %d", resp.StatusCode)
	if err := json.Unmarshal(payload, &envelope); err == nil && envelope.Message != "" {
		message = envelope.Message
	}
	return apierr.New(resp.StatusCode, message)
}

// breakerError maps circuit breaker rejections to 503.
func (c *Client) breakerError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apierr.Wrap(http.StatusServiceUnavailable, "repository unavailable", err)
	}
	return err
}

// objectPath returns the URL path addressing an object.
func (c *Client) objectPath(pid string) string {
	return "/objects/" + url.PathEscape(pid)
}

// datastreamPath returns the URL path addressing a datastream.
func (c *Client) datastreamPath(pid, dsid string) string {
	return c.objectPath(pid) + "/datastreams/" + url.PathEscape(dsid)
}

// Ensure Client implements Repository.
var _ Repository = (*Client)(nil)
