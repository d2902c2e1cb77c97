package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/dispatch"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/repo"
)

// GetRelationships lists the triples asserted on the resolved object,
// optionally filtered by predicate.
func (h *Handlers) GetRelationships(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return nil, apierr.New(http.StatusBadRequest, "no object addressed")
	}

	predicate := req.Params.Get("predicate")
	rels := make([]repo.Relationship, 0, len(req.Resource.Object.Relationships))
	for _, rel := range req.Resource.Object.Relationships {
		if predicate != "" && rel.Predicate != predicate {
			continue
		}
		rels = append(rels, rel)
	}
	return map[string]any{
		"pid":           req.Resource.Object.PID,
		"relationships": rels,
	}, nil
}

// AddRelationship asserts a triple on the resolved object. Predicate and
// object are required.
func (h *Handlers) AddRelationship(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return nil, apierr.New(http.StatusBadRequest, "no object addressed")
	}

	predicate := req.Params.Get("predicate")
	target := req.Params.Get("object")
	if predicate == "" {
		return nil, apierr.New(http.StatusBadRequest, "predicate is required")
	}
	if target == "" {
		return nil, apierr.New(http.StatusBadRequest, "object is required")
	}

	rel := repo.Relationship{
		Predicate: predicate,
		Object:    target,
		Literal:   literalParam(req),
	}
	if err := h.repository.AddRelationship(ctx, req.Resource.Object.PID, rel); err != nil {
		return nil, err
	}

	h.logger.Info("relationship added",
		observability.String("pid", req.Resource.Object.PID),
		observability.String("predicate", predicate),
	)
	return &dispatch.StatusPayload{Status: http.StatusCreated, Body: rel}, nil
}

// PurgeRelationships removes matching triples from the resolved object.
// Empty match fields act as wildcards.
func (h *Handlers) PurgeRelationships(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return nil, apierr.New(http.StatusBadRequest, "no object addressed")
	}

	match := repo.Relationship{
		Predicate: req.Params.Get("predicate"),
		Object:    req.Params.Get("object"),
	}
	purged, err := h.repository.PurgeRelationships(ctx, req.Resource.Object.PID, match)
	if err != nil {
		return nil, err
	}
	return map[string]int{"purged": purged}, nil
}

func literalParam(req *dispatch.Request) bool {
	val, err := strconv.ParseBool(req.Params.Get("literal"))
	if err != nil {
		return false
	}
	return val
}
