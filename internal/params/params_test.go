package params

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorepo/restgw/internal/apierr"
)

func TestExtractGetUsesQuery(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/objects?label=thesis&state=A", nil)
	values, err := NewExtractor(req).Extract()
	require.NoError(t, err)
	assert.Equal(t, "thesis", values.Get("label"))
	assert.Equal(t, "A", values.Get("state"))
}

func TestExtractPostForm(t *testing.T) {
	t.Parallel()

	form := url.Values{"label": {"new object"}, "state": {"A"}}
	req := httptest.NewRequest(http.MethodPost, "/objects", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	values, err := NewExtractor(req).Extract()
	require.NoError(t, err)
	assert.Equal(t, "new object", values.Get("label"))
}

func TestExtractPostJSONBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/objects",
		strings.NewReader(`{"label":"new object","tags":["a","b"]}`))
	req.Header.Set("Content-Type", "application/json")

	values, err := NewExtractor(req).Extract()
	require.NoError(t, err)
	assert.Equal(t, "new object", values.Get("label"))
	assert.Equal(t, []string{"a", "b"}, values.All("tags"))
}

func TestExtractPutUsesBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/objects/test:1",
		strings.NewReader(`{"label":"renamed"}`))

	values, err := NewExtractor(req).Extract()
	require.NoError(t, err)
	assert.Equal(t, "renamed", values.Get("label"))
}

func TestExtractUnsupportedMethod(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPatch, "/objects/test:1", nil)
	_, err := NewExtractor(req).Extract()
	require.Error(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, apierr.StatusOf(err))
}

func TestExtractInvalidJSON(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/objects/test:1",
		strings.NewReader(`{"label":`))

	_, err := NewExtractor(req).Extract()
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
}

func TestExtractEmptyBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodDelete, "/objects/test:1", nil)
	values, err := NewExtractor(req).Extract()
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestExtractIgnoresChunkedBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/objects/test:1",
		strings.NewReader(`{"label":"ignored"}`))
	req.ContentLength = -1

	values, err := NewExtractor(req).Extract()
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestRawBodyIdempotent(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/objects/test:1",
		strings.NewReader(`{"label":"once"}`))
	e := NewExtractor(req)

	first, err := e.Extract()
	require.NoError(t, err)
	second, err := e.Extract()
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "once", second.Get("label"))
}

func TestRawBodyErrorMemoized(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPut, "/objects/test:1",
		strings.NewReader(`not json`))
	e := NewExtractor(req)

	_, firstErr := e.Extract()
	require.Error(t, firstErr)
	_, secondErr := e.Extract()
	assert.Equal(t, firstErr, secondErr)
}

func TestSolrValues(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/solr?a=1&a=2&b.x=3", nil)
	values, err := SolrValues(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, values.All("a"))
	assert.Equal(t, "3", values.Get("b.x"))
}

func TestSolrValuesDecoding(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/solr?q=label%3Athesis&fl=PID%2Clabel", nil)
	values, err := SolrValues(req)
	require.NoError(t, err)
	assert.Equal(t, "label:thesis", values.Get("q"))
	assert.Equal(t, "PID,label", values.Get("fl"))
}

func TestSolrValuesRejectsNonGet(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/solr?q=x", nil)
	_, err := SolrValues(req)
	require.Error(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, apierr.StatusOf(err))
}

func TestValuesAccessors(t *testing.T) {
	t.Parallel()

	v := Values{"a": {"1", "2"}}
	assert.Equal(t, "1", v.Get("a"))
	assert.True(t, v.Has("a"))
	assert.False(t, v.Has("b"))
	assert.Empty(t, v.Get("b"))
}
