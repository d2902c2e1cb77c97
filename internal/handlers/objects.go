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

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// objectView is the wire shape of an object.
type objectView struct {
	PID         string   `json:"pid"`
	Label       string   `json:"label"`
	OwnerID     string   `json:"owner_id,omitempty"`
	State       string   `json:"state"`
	Created     string   `json:"created,omitempty"`
	Modified    string   `json:"modified,omitempty"`
	Datastreams []string `json:"datastreams,omitempty"`
}

func viewOf(obj *repo.Object) objectView {
	view := objectView{
		PID:     obj.PID,
		Label:   obj.Label,
		OwnerID: obj.OwnerID,
		State:   string(obj.State),
	}
	if !obj.Created.IsZero() {
		view.Created = obj.Created.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	if !obj.Modified.IsZero() {
		view.Modified = obj.Modified.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	for id := range obj.Datastreams {
		view.Datastreams = append(view.Datastreams, id)
	}
	return view
}

// GetObject returns the resolved object, or a listing page when no object id
// was addressed.
func (h *Handlers) GetObject(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return h.listObjects(ctx, req)
	}
	return viewOf(req.Resource.Object), nil
}

func (h *Handlers) listObjects(ctx context.Context, req *dispatch.Request) (any, error) {
	offset, err := intParam(req, "offset", 0)
	if err != nil {
		return nil, err
	}
	limit, err := intParam(req, "limit", defaultListLimit)
	if err != nil {
		return nil, err
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	objects, total, err := h.repository.ListObjects(ctx, offset, limit)
	if err != nil {
		return nil, err
	}

	views := make([]objectView, 0, len(objects))
	for _, obj := range objects {
		views = append(views, viewOf(obj))
	}
	return map[string]any{
		"objects": views,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	}, nil
}

// CreateObject creates a new object from the request parameters. The pid is
// generated by the backend unless the path supplies one.
func (h *Handlers) CreateObject(ctx context.Context, req *dispatch.Request) (any, error) {
	state := repo.StateActive
	if raw := req.Params.Get("state"); raw != "" {
		var err error
		if state, err = parseState(raw); err != nil {
			return nil, err
		}
	}

	obj := &repo.Object{
		PID:     req.Path.ObjectID,
		Label:   req.Params.Get("label"),
		OwnerID: ownerOf(req),
		State:   state,
	}
	created, err := h.repository.CreateObject(ctx, obj)
	if err != nil {
		return nil, err
	}

	h.logger.Info("object created",
		observability.String("pid", created.PID),
		observability.String("owner", created.OwnerID),
	)
	return &dispatch.StatusPayload{
		Status: http.StatusCreated,
		Body:   viewOf(created),
	}, nil
}

// UpdateObject applies the supplied properties to the resolved object.
func (h *Handlers) UpdateObject(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return nil, apierr.New(http.StatusBadRequest, "no object addressed")
	}

	upd := repo.ObjectUpdate{}
	if req.Params.Has("label") {
		label := req.Params.Get("label")
		upd.Label = &label
	}
	if req.Params.Has("owner_id") {
		owner := req.Params.Get("owner_id")
		upd.OwnerID = &owner
	}
	if req.Params.Has("state") {
		state, err := parseState(req.Params.Get("state"))
		if err != nil {
			return nil, err
		}
		upd.State = &state
	}

	updated, err := h.repository.UpdateObject(ctx, req.Resource.Object.PID, upd)
	if err != nil {
		return nil, err
	}
	return viewOf(updated), nil
}

// DeleteObject removes the resolved object.
func (h *Handlers) DeleteObject(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return nil, apierr.New(http.StatusBadRequest, "no object addressed")
	}
	if err := h.repository.DeleteObject(ctx, req.Resource.Object.PID); err != nil {
		return nil, err
	}

	h.logger.Info("object deleted",
		observability.String("pid", req.Resource.Object.PID),
	)
	return nil, nil
}

func ownerOf(req *dispatch.Request) string {
	if owner := req.Params.Get("owner_id"); owner != "" {
		return owner
	}
	if req.Identity != nil && !req.Identity.Anonymous {
		return req.Identity.Subject
	}
	return ""
}

func parseState(raw string) (repo.State, error) {
	switch state := repo.State(raw); state {
	case repo.StateActive, repo.StateInactive, repo.StateDeleted:
		return state, nil
	default:
		return "", apierr.Newf(http.StatusBadRequest, "invalid state %q", raw)
	}
}

func intParam(req *dispatch.Request, key string, fallback int) (int, error) {
	raw := req.Params.Get(key)
	if raw == "" {
		return fallback, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0, apierr.Newf(http.StatusBadRequest, "invalid %s %q", key, raw)
	}
	return val, nil
}
