package handlers

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/dispatch"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/repo"
)

// datastreamView is the wire shape of a datastream.
type datastreamView struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	State        string `json:"state"`
	MimeType     string `json:"mime_type,omitempty"`
	Size         int64  `json:"size"`
	Checksum     string `json:"checksum,omitempty"`
	ChecksumType string `json:"checksum_type,omitempty"`
	ControlGroup string `json:"control_group,omitempty"`
	Versionable  bool   `json:"versionable"`
	Created      string `json:"created,omitempty"`
}

func dsViewOf(ds *repo.Datastream) datastreamView {
	view := datastreamView{
		ID:           ds.ID,
		Label:        ds.Label,
		State:        string(ds.State),
		MimeType:     ds.MimeType,
		Size:         ds.Size,
		Checksum:     ds.Checksum,
		ChecksumType: ds.ChecksumType,
		ControlGroup: ds.ControlGroup,
		Versionable:  ds.Versionable,
	}
	if !ds.Created.IsZero() {
		view.Created = ds.Created.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return view
}

// GetDatastream returns the resolved datastream's metadata, or its content
// when the content parameter is set.
func (h *Handlers) GetDatastream(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceDatastream {
		return nil, apierr.New(http.StatusBadRequest, "no datastream addressed")
	}

	if req.Params.Get("content") == "true" {
		body, contentType, err := h.repository.DatastreamContent(ctx,
			req.Resource.Object.PID, req.Resource.Datastream.ID)
		if err != nil {
			return nil, err
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return &dispatch.RawPayload{ContentType: contentType, Body: body}, nil
	}
	return dsViewOf(req.Resource.Datastream), nil
}

// CreateDatastream adds a datastream to the resolved object. Content arrives
// base64 encoded in the content parameter.
func (h *Handlers) CreateDatastream(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceObject {
		return nil, apierr.New(http.StatusBadRequest, "no owning object addressed")
	}
	if req.Path.DatastreamID == "" {
		return nil, apierr.New(http.StatusBadRequest, "datastream id is required")
	}

	content, err := decodeContent(req)
	if err != nil {
		return nil, err
	}

	ds := &repo.Datastream{
		ID:           req.Path.DatastreamID,
		Label:        req.Params.Get("label"),
		MimeType:     req.Params.Get("mime_type"),
		ControlGroup: req.Params.Get("control_group"),
		State:        repo.StateActive,
		Versionable:  boolParam(req, "versionable", true),
	}
	if raw := req.Params.Get("state"); raw != "" {
		if ds.State, err = parseState(raw); err != nil {
			return nil, err
		}
	}

	created, err := h.repository.AddDatastream(ctx, req.Resource.Object.PID, ds, content)
	if err != nil {
		return nil, err
	}

	h.logger.Info("datastream created",
		observability.String("pid", req.Resource.Object.PID),
		observability.String("dsid", created.ID),
		observability.Int64("size", created.Size),
	)
	return &dispatch.StatusPayload{
		Status: http.StatusCreated,
		Body:   dsViewOf(created),
	}, nil
}

// UpdateDatastream applies the supplied properties, and optionally new
// content, to the resolved datastream.
func (h *Handlers) UpdateDatastream(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceDatastream {
		return nil, apierr.New(http.StatusBadRequest, "no datastream addressed")
	}

	upd := repo.DatastreamUpdate{}
	if req.Params.Has("label") {
		label := req.Params.Get("label")
		upd.Label = &label
	}
	if req.Params.Has("mime_type") {
		mime := req.Params.Get("mime_type")
		upd.MimeType = &mime
	}
	if req.Params.Has("state") {
		state, err := parseState(req.Params.Get("state"))
		if err != nil {
			return nil, err
		}
		upd.State = &state
	}
	if req.Params.Has("versionable") {
		versionable := boolParam(req, "versionable", true)
		upd.Versionable = &versionable
	}
	if req.Params.Has("checksum_type") {
		ct := req.Params.Get("checksum_type")
		upd.ChecksumType = &ct
	}

	content, err := decodeContent(req)
	if err != nil {
		return nil, err
	}

	updated, err := h.repository.UpdateDatastream(ctx,
		req.Resource.Object.PID, req.Resource.Datastream.ID, upd, content)
	if err != nil {
		return nil, err
	}
	return dsViewOf(updated), nil
}

// DeleteDatastream removes the resolved datastream from its object.
func (h *Handlers) DeleteDatastream(ctx context.Context, req *dispatch.Request) (any, error) {
	if req.Resource.Kind != repo.ResourceDatastream {
		return nil, apierr.New(http.StatusBadRequest, "no datastream addressed")
	}
	err := h.repository.DeleteDatastream(ctx,
		req.Resource.Object.PID, req.Resource.Datastream.ID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("datastream deleted",
		observability.String("pid", req.Resource.Object.PID),
		observability.String("dsid", req.Resource.Datastream.ID),
	)
	return nil, nil
}

func decodeContent(req *dispatch.Request) ([]byte, error) {
	raw := req.Params.Get("content")
	if raw == "" {
		return nil, nil
	}
	content, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, apierr.Wrap(http.StatusBadRequest, "content is not valid base64", err)
	}
	return content, nil
}

func boolParam(req *dispatch.Request, key string, fallback bool) bool {
	raw := req.Params.Get(key)
	if raw == "" {
		return fallback
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return val
}
