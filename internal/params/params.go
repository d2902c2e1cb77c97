// Package params extracts request parameters from the source appropriate to
// the HTTP method.
package params

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dorepo/restgw/internal/apierr"
)

// Values holds extracted request parameters. Scalar lookups return the first
// value when a key was supplied more than once.
type Values map[string][]string

// Get returns the first value for key, or the empty string.
func (v Values) Get(key string) string {
	if vs, ok := v[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has reports whether the key was supplied at all.
func (v Values) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// All returns every value supplied for key, in order.
func (v Values) All(key string) []string {
	return v[key]
}

// Extractor reads request parameters once per request. The raw body is
// consumed at most a single time and the decoded result is memoized, so
// repeated extraction is idempotent.
type Extractor struct {
	req *http.Request

	bodyRead bool
	body     Values
	bodyErr  error
}

// NewExtractor creates an extractor bound to a single request.
func NewExtractor(req *http.Request) *Extractor {
	return &Extractor{req: req}
}

// Extract returns the request parameters from the method-appropriate source:
// the query string for GET, form fields (falling back to the raw body) for
// POST, and the raw body for PUT and DELETE. Other methods are rejected.
func (e *Extractor) Extract() (Values, error) {
	switch e.req.Method {
	case http.MethodGet:
		return Values(e.req.URL.Query()), nil
	case http.MethodPost:
		switch formContentType(e.req) {
		case "application/x-www-form-urlencoded":
			if err := e.req.ParseForm(); err != nil {
				return nil, apierr.Wrap(http.StatusBadRequest, "malformed form body", err)
			}
			return Values(e.req.PostForm), nil
		case "multipart/form-data":
			if err := e.req.ParseMultipartForm(maxFormMemory); err != nil {
				return nil, apierr.Wrap(http.StatusBadRequest, "malformed multipart body", err)
			}
			return Values(e.req.PostForm), nil
		}
		return e.rawBody()
	case http.MethodPut, http.MethodDelete:
		return e.rawBody()
	default:
		return nil, apierr.MethodNotAllowed(e.req.Method)
	}
}

// RawBody returns the decoded JSON body parameters, reading the body at most
// once regardless of how many times it is called.
func (e *Extractor) RawBody() (Values, error) {
	return e.rawBody()
}

func (e *Extractor) rawBody() (Values, error) {
	if e.bodyRead {
		return e.body, e.bodyErr
	}
	e.bodyRead = true
	e.body, e.bodyErr = decodeBody(e.req)
	return e.body, e.bodyErr
}

func decodeBody(req *http.Request) (Values, error) {
	// A missing or non-positive Content-Length means no body parameters;
	// chunked bodies are not interpreted.
	if req.Body == nil || req.ContentLength <= 0 {
		return Values{}, nil
	}

	raw := make([]byte, req.ContentLength)
	if _, err := io.ReadFull(req.Body, raw); err != nil {
		return nil, apierr.Wrap(http.StatusBadRequest, "failed to read request body", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apierr.Wrap(http.StatusBadRequest, "request body is not valid JSON", err)
	}

	values := make(Values, len(decoded))
	for key, val := range decoded {
		values[key] = flatten(val)
	}
	return values, nil
}

func flatten(val any) []string {
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringify(item))
		}
		return out
	default:
		return []string{stringify(v)}
	}
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// maxFormMemory bounds the in-memory portion of a parsed multipart form.
const maxFormMemory = 10 << 20

func formContentType(req *http.Request) string {
	ct := req.Header.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}

// SolrValues parses the raw query string of a GET request without any key
// interpretation: dots stay literal and repeated keys accumulate in order.
func SolrValues(req *http.Request) (Values, error) {
	if req.Method != http.MethodGet {
		return nil, apierr.MethodNotAllowed(req.Method)
	}

	values := Values{}
	for _, pair := range strings.Split(req.URL.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key, val := pair, ""
		if i := strings.IndexByte(pair, '='); i >= 0 {
			key, val = pair[:i], pair[i+1:]
		}
		decodedKey, err := url.QueryUnescape(key)
		if err != nil {
			return nil, apierr.Wrap(http.StatusBadRequest, "malformed query parameter", err)
		}
		decodedVal, err := url.QueryUnescape(val)
		if err != nil {
			return nil, apierr.Wrap(http.StatusBadRequest, "malformed query parameter", err)
		}
		values[decodedKey] = append(values[decodedKey], decodedVal)
	}
	return values, nil
}
