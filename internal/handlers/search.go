package handlers

import (
	"context"
	"net/http"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/dispatch"
)

// Search forwards the query to Solr and passes the response through.
func (h *Handlers) Search(ctx context.Context, req *dispatch.Request) (any, error) {
	if h.search == nil {
		return nil, apierr.New(http.StatusServiceUnavailable, "search is not configured")
	}
	result, err := h.search.Search(ctx, req.Params)
	if err != nil {
		return nil, err
	}
	return &dispatch.RawPayload{
		ContentType: result.ContentType,
		Body:        result.Body,
	}, nil
}
