// Package handlers implements the endpoint operations the gateway exposes.
package handlers

import (
	"net/http"
	"time"

	"github.com/dorepo/restgw/internal/dispatch"
	"github.com/dorepo/restgw/internal/endpoint"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/repo"
	"github.com/dorepo/restgw/internal/solr"
)

// Handlers holds the collaborators the endpoint operations run against.
type Handlers struct {
	repository repo.Repository
	search     *solr.Client
	tokens     *TokenStore
	logger     observability.Logger
}

// Option is a functional option for the handler set.
type Option func(*Handlers)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(h *Handlers) {
		h.logger = logger
	}
}

// WithTokenStore overrides the datastream token store.
func WithTokenStore(tokens *TokenStore) Option {
	return func(h *Handlers) {
		h.tokens = tokens
	}
}

// New creates the handler set.
func New(repository repo.Repository, search *solr.Client, opts ...Option) *Handlers {
	h := &Handlers{
		repository: repository,
		search:     search,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.tokens == nil {
		h.tokens = NewTokenStore(5 * time.Minute)
	}
	return h
}

// Tokens returns the datastream token store, so the dispatcher can honor
// issued tokens on content reads.
func (h *Handlers) Tokens() *TokenStore {
	return h.tokens
}

// Register binds every operation into the dispatch registry.
func (h *Handlers) Register(reg *dispatch.Registry) {
	reg.Register(endpoint.Object, http.MethodGet, h.GetObject)
	reg.Register(endpoint.Object, http.MethodPost, h.CreateObject)
	reg.Register(endpoint.Object, http.MethodPut, h.UpdateObject)
	reg.Register(endpoint.Object, http.MethodDelete, h.DeleteObject)

	reg.Register(endpoint.Datastream, http.MethodGet, h.GetDatastream)
	reg.Register(endpoint.Datastream, http.MethodPost, h.CreateDatastream)
	reg.Register(endpoint.Datastream, http.MethodPut, h.UpdateDatastream)
	reg.Register(endpoint.Datastream, http.MethodDelete, h.DeleteDatastream)

	reg.Register(endpoint.DatastreamToken, http.MethodGet, h.IssueDatastreamToken)

	reg.Register(endpoint.Relationship, http.MethodGet, h.GetRelationships)
	reg.Register(endpoint.Relationship, http.MethodPost, h.AddRelationship)
	reg.Register(endpoint.Relationship, http.MethodDelete, h.PurgeRelationships)

	reg.Register(endpoint.Solr, http.MethodGet, h.Search)
}
