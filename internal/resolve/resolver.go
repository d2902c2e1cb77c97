// Package resolve turns path-embedded identifiers into backend resources.
package resolve

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/repo"
)

// Resolver fetches the resource a request's path addresses. Exactly one
// backend fetch happens per request; an absent object id is not an error.
type Resolver struct {
	repository repo.Repository
	logger     observability.Logger
}

// Option is a functional option for the resolver.
type Option func(*Resolver)

// WithResolverLogger sets the logger.
func WithResolverLogger(logger observability.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver over the given repository.
func NewResolver(repository repo.Repository, opts ...Option) *Resolver {
	r := &Resolver{
		repository: repository,
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve fetches the addressed resource. An empty objectID means no
// resource was requested and the backend is never contacted. When subID is
// also present the named datastream is looked up on the fetched object; a
// missing subID degrades to the object itself.
func (r *Resolver) Resolve(ctx context.Context, objectID, subID string) (repo.Resource, error) {
	if objectID == "" {
		return repo.NoResource(), nil
	}

	pid, err := url.PathUnescape(objectID)
	if err != nil {
		return repo.NoResource(), apierr.Wrap(http.StatusBadRequest, "malformed object id", err)
	}

	obj, err := r.repository.GetObject(ctx, pid)
	if err != nil {
		r.logger.Debug("object fetch failed",
			observability.String("pid", pid),
			observability.Error(err),
		)
		return repo.NoResource(), apierr.Wrap(apierr.StatusOf(err),
			"failed to retrieve object "+pid, err)
	}

	if subID == "" {
		return repo.ObjectResource(obj), nil
	}

	dsid, err := url.PathUnescape(subID)
	if err != nil {
		return repo.NoResource(), apierr.Wrap(http.StatusBadRequest, "malformed datastream id", err)
	}

	ds := obj.Datastream(dsid)
	if ds == nil {
		return repo.NoResource(), apierr.Newf(http.StatusNotFound,
			"datastream %s not found on object %s", dsid, pid)
	}
	return repo.DatastreamResource(obj, ds), nil
}
