package access

import (
	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/auth"
	"github.com/dorepo/restgw/internal/endpoint"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/repo"
)

// SearchGate reports whether the search subsystem is active. Solr access is
// owned by that subsystem, not by the permission table.
type SearchGate interface {
	Available() bool
}

// Enforcer combines the permission table with the access predicates to
// produce allow/deny decisions for the dispatch pipeline.
type Enforcer struct {
	table  *PermissionTable
	policy Policy
	search SearchGate
	logger observability.Logger
}

// EnforcerOption is a functional option for the enforcer.
type EnforcerOption func(*Enforcer)

// WithEnforcerLogger sets the logger.
func WithEnforcerLogger(logger observability.Logger) EnforcerOption {
	return func(e *Enforcer) {
		e.logger = logger
	}
}

// WithSearchGate sets the search availability gate.
func WithSearchGate(gate SearchGate) EnforcerOption {
	return func(e *Enforcer) {
		e.search = gate
	}
}

// NewEnforcer creates an enforcer over the given table and policy.
func NewEnforcer(table *PermissionTable, policy Policy, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		table:  table,
		policy: policy,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetTable swaps the permission table. Used by configuration reload.
func (e *Enforcer) SetTable(table *PermissionTable) {
	if table != nil {
		e.table = table
	}
}

// CheckAccess reports whether id may perform (kind, method) against the
// resolved resource. The error is non-nil only for (kind, method) pairs the
// table does not define, which surface as 405.
func (e *Enforcer) CheckAccess(kind endpoint.Kind, method string, res repo.Resource, id *auth.Identity) (bool, error) {
	if kind == endpoint.Solr {
		// Search authorization is owned by the search subsystem: a
		// fixed capability plus the subsystem being active.
		if e.search == nil || !e.search.Available() {
			return false, nil
		}
		return e.policy.UserAccess(PermSolrSearch, id), nil
	}

	permission, ok := e.table.PermissionFor(kind, method)
	if !ok {
		return false, apierr.MethodNotAllowed(method)
	}

	switch res.Kind {
	case repo.ResourceObject:
		return e.policy.ObjectAccess(permission, res.Object, id), nil
	case repo.ResourceDatastream:
		return e.policy.DatastreamAccess(permission, res.Datastream, id), nil
	default:
		return e.policy.UserAccess(permission, id), nil
	}
}

// RequireAccess fails when access is denied: 401 for anonymous callers, 403
// for authenticated ones. The distinction tells callers whether logging in
// would help.
func (e *Enforcer) RequireAccess(kind endpoint.Kind, method string, res repo.Resource, id *auth.Identity) error {
	allowed, err := e.CheckAccess(kind, method, res, id)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}

	subject := auth.AnonymousSubject
	anonymous := true
	if id != nil {
		subject = id.Subject
		anonymous = id.Anonymous
	}
	e.logger.Debug("access denied",
		observability.String("kind", kind.String()),
		observability.String("method", method),
		observability.String("resource", res.Kind.String()),
		observability.String("subject", subject),
	)

	if anonymous {
		return apierr.Unauthorized()
	}
	return apierr.Forbidden()
}
