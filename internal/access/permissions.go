// Package access decides whether a caller may perform an operation. It maps
// (endpoint kind, method) pairs to permission names and applies the
// resource-specific access predicates to the resolved resource.
package access

import (
	"net/http"

	"github.com/dorepo/restgw/internal/endpoint"
)

// Permission names used by the gateway.
const (
	// PermSolrSearch is the fixed capability required by the solr
	// endpoint; it bypasses the permission table.
	PermSolrSearch = "perform solr search"

	// PermManageInactive gates access to resources whose state is not
	// active.
	PermManageInactive = "manage inactive resources"
)

// tableKey identifies one row of the permission table.
type tableKey struct {
	Kind   endpoint.Kind
	Method string
}

// PermissionTable maps (endpoint kind, method) pairs to the permission name
// required for that operation. The table is built once at startup; lookups
// are pure and never fail for pairs the routing layer exposes.
type PermissionTable struct {
	perms map[tableKey]string
}

// DefaultPermissionTable returns the built-in permission assignments.
func DefaultPermissionTable() *PermissionTable {
	t := &PermissionTable{perms: make(map[tableKey]string)}

	t.set(endpoint.Object, http.MethodGet, "view objects")
	t.set(endpoint.Object, http.MethodPost, "create objects")
	t.set(endpoint.Object, http.MethodPut, "edit objects")
	t.set(endpoint.Object, http.MethodDelete, "delete objects")

	t.set(endpoint.Datastream, http.MethodGet, "view datastreams")
	t.set(endpoint.Datastream, http.MethodPost, "create datastreams")
	t.set(endpoint.Datastream, http.MethodPut, "edit datastreams")
	t.set(endpoint.Datastream, http.MethodDelete, "delete datastreams")

	t.set(endpoint.DatastreamToken, http.MethodGet, "view datastreams")

	t.set(endpoint.Relationship, http.MethodGet, "view relationships")
	t.set(endpoint.Relationship, http.MethodPost, "edit relationships")
	t.set(endpoint.Relationship, http.MethodDelete, "edit relationships")

	return t
}

// set stores one table row.
func (t *PermissionTable) set(kind endpoint.Kind, method, permission string) {
	t.perms[tableKey{Kind: kind, Method: method}] = permission
}

// Override replaces the permission name for a (kind, method) pair. Used by
// configuration to rename permissions without code changes.
func (t *PermissionTable) Override(kind endpoint.Kind, method, permission string) {
	if permission == "" {
		return
	}
	t.set(kind, method, permission)
}

// PermissionFor returns the permission required for the pair. ok is false
// for pairs the table does not define; the routing layer never exposes
// those, so hitting one means a spoofed method slipped past it.
func (t *PermissionTable) PermissionFor(kind endpoint.Kind, method string) (string, bool) {
	perm, ok := t.perms[tableKey{Kind: kind, Method: method}]
	return perm, ok
}
