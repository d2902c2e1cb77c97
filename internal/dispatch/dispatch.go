// Package dispatch routes authenticated requests through resolution, access
// enforcement, and parameter extraction to the registered handler.
package dispatch

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dorepo/restgw/internal/access"
	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/auth"
	"github.com/dorepo/restgw/internal/endpoint"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/params"
	"github.com/dorepo/restgw/internal/repo"
	"github.com/dorepo/restgw/internal/resolve"
)

// PathParams carries the identifiers embedded in the request path. An empty
// field means the path did not address that level.
type PathParams struct {
	ObjectID     string
	DatastreamID string
}

// Request bundles everything a handler needs to serve one call.
type Request struct {
	Path     PathParams
	Params   params.Values
	Resource repo.Resource
	Identity *auth.Identity
}

// HandlerFunc serves one endpoint operation. The returned value is encoded
// as JSON unless it is a *RawPayload or *StatusPayload.
type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// RawPayload is returned by handlers that produce a non-JSON response, such
// as datastream content downloads and search pass-through.
type RawPayload struct {
	Status      int
	ContentType string
	Body        []byte
}

// StatusPayload is returned by handlers that need a non-200 success status.
type StatusPayload struct {
	Status int
	Body   any
}

type registryKey struct {
	kind   endpoint.Kind
	method string
}

// Registry maps endpoint kind and HTTP method pairs to handlers. A missing
// entry is a deliberate gap and surfaces as 405.
type Registry struct {
	handlers map[registryKey]HandlerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[registryKey]HandlerFunc)}
}

// Register binds a handler to an endpoint kind and method pair.
func (r *Registry) Register(kind endpoint.Kind, method string, fn HandlerFunc) {
	r.handlers[registryKey{kind: kind, method: strings.ToUpper(method)}] = fn
}

// Lookup returns the handler for the pair, if one is registered.
func (r *Registry) Lookup(kind endpoint.Kind, method string) (HandlerFunc, bool) {
	fn, ok := r.handlers[registryKey{kind: kind, method: strings.ToUpper(method)}]
	return fn, ok
}

// TokenGrant validates a single-use access token for one datastream.
type TokenGrant interface {
	Grant(token, pid, dsid string) bool
}

// Dispatcher runs the request pipeline for every endpoint kind.
type Dispatcher struct {
	registry *Registry
	resolver *resolve.Resolver
	enforcer *access.Enforcer
	tokens   TokenGrant
	metrics  *observability.Metrics
	logger   observability.Logger
}

// Option is a functional option for the dispatcher.
type Option func(*Dispatcher)

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = metrics
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithTokenGrant lets datastream content reads present a previously issued
// access token instead of credentials.
func WithTokenGrant(tokens TokenGrant) Option {
	return func(d *Dispatcher) {
		d.tokens = tokens
	}
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(registry *Registry, resolver *resolve.Resolver, enforcer *access.Enforcer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		resolver: resolver,
		enforcer: enforcer,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle returns the gin handler serving the given endpoint kind.
func (d *Dispatcher) Handle(kind endpoint.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		status := d.serve(kind, c)
		if d.metrics != nil {
			d.metrics.RecordRequest(kind.String(), c.Request.Method, status, time.Since(start))
		}
	}
}

func (d *Dispatcher) serve(kind endpoint.Kind, c *gin.Context) int {
	ctx := c.Request.Context()
	identity := auth.IdentityFromContext(ctx)

	// Only POST reads the body before access is checked, since the method
	// override field lives there. Every other method extracts after
	// enforcement, so a malformed body cannot preempt an authorization or
	// resolution answer.
	var values params.Values
	var err error
	method := c.Request.Method
	if method == http.MethodPost {
		values, err = d.extract(kind, c.Request)
		if err != nil {
			return d.fail(c, kind, err)
		}
		method = effectiveMethod(method, values)
	}

	path := PathParams{
		ObjectID:     strings.TrimSpace(c.Param("pid")),
		DatastreamID: strings.TrimSpace(c.Param("dsid")),
	}

	resource := repo.NoResource()
	if kind != endpoint.Solr && resourceNeeded(kind, method, path) {
		resource, err = d.resolver.Resolve(ctx, path.ObjectID, datastreamID(kind, method, path))
		if err != nil {
			if d.metrics != nil {
				d.metrics.RecordResolveFailure(kind.String())
			}
			return d.fail(c, kind, err)
		}
	}

	if !d.tokenGranted(kind, method, path, c) {
		if err := d.enforcer.RequireAccess(kind, method, resource, identity); err != nil {
			if d.metrics != nil {
				d.metrics.RecordAccessDenial(kind.String(), apierr.StatusOf(err))
			}
			return d.fail(c, kind, err)
		}
	}

	handler, ok := d.registry.Lookup(kind, method)
	if !ok {
		return d.fail(c, kind, apierr.MethodNotAllowed(method))
	}

	if values == nil {
		values, err = d.extract(kind, c.Request)
		if err != nil {
			return d.fail(c, kind, err)
		}
	}

	result, err := handler(ctx, &Request{
		Path:     path,
		Params:   values,
		Resource: resource,
		Identity: identity,
	})
	if err != nil {
		return d.fail(c, kind, err)
	}
	return encode(c, result)
}

// tokenGranted reports whether a valid single-use access token authorizes
// this datastream read, standing in for the permission check. Tokens are
// carried in the query string so the body stays untouched.
func (d *Dispatcher) tokenGranted(kind endpoint.Kind, method string, path PathParams, c *gin.Context) bool {
	if d.tokens == nil || kind != endpoint.Datastream || method != http.MethodGet {
		return false
	}
	token := c.Query("token")
	return token != "" && d.tokens.Grant(token, path.ObjectID, path.DatastreamID)
}

func (d *Dispatcher) extract(kind endpoint.Kind, req *http.Request) (params.Values, error) {
	if kind == endpoint.Solr {
		return params.SolrValues(req)
	}
	return params.NewExtractor(req).Extract()
}

func (d *Dispatcher) fail(c *gin.Context, kind endpoint.Kind, err error) int {
	status := apierr.StatusOf(err)
	if status >= 500 {
		d.logger.Error("request failed",
			observability.String("kind", kind.String()),
			observability.String("path", c.Request.URL.Path),
			observability.Error(err),
		)
	} else {
		d.logger.Debug("request rejected",
			observability.String("kind", kind.String()),
			observability.String("path", c.Request.URL.Path),
			observability.Int("status", status),
			observability.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"message": apierr.MessageOf(err)})
	return status
}

func encode(c *gin.Context, result any) int {
	switch payload := result.(type) {
	case *RawPayload:
		status := payload.Status
		if status == 0 {
			status = http.StatusOK
		}
		c.Data(status, payload.ContentType, payload.Body)
		return status
	case *StatusPayload:
		c.JSON(payload.Status, payload.Body)
		return payload.Status
	case nil:
		c.Status(http.StatusNoContent)
		return http.StatusNoContent
	default:
		c.JSON(http.StatusOK, result)
		return http.StatusOK
	}
}

// effectiveMethod maps a POST carrying a method override field to the verb
// the caller intends, so HTML forms can express PUT and DELETE.
func effectiveMethod(method string, values params.Values) string {
	if method != http.MethodPost {
		return method
	}
	switch strings.ToUpper(values.Get("method")) {
	case http.MethodPut:
		return http.MethodPut
	case http.MethodDelete:
		return http.MethodDelete
	default:
		return method
	}
}

// resourceNeeded reports whether the operation addresses an existing
// resource. Creation and listing operate without one.
func resourceNeeded(kind endpoint.Kind, method string, path PathParams) bool {
	if path.ObjectID == "" {
		return false
	}
	if method == http.MethodPost {
		// Creating a datastream still needs its owning object resolved;
		// creating an object does not.
		return kind != endpoint.Object
	}
	return true
}

func datastreamID(kind endpoint.Kind, method string, path PathParams) string {
	switch kind {
	case endpoint.Datastream, endpoint.DatastreamToken:
		// A datastream being created does not exist yet; only the owning
		// object is resolved.
		if method == http.MethodPost {
			return ""
		}
		return path.DatastreamID
	default:
		return ""
	}
}
