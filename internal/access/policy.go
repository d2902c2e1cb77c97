package access

import (
	"github.com/dorepo/restgw/internal/auth"
	"github.com/dorepo/restgw/internal/repo"
)

// Policy is the set of resource-specific access predicates. The gateway
// ships a permission-set implementation; deployments backed by an external
// policy service provide their own.
type Policy interface {
	// ObjectAccess reports whether id may perform permission on obj.
	ObjectAccess(permission string, obj *repo.Object, id *auth.Identity) bool

	// DatastreamAccess reports whether id may perform permission on ds.
	DatastreamAccess(permission string, ds *repo.Datastream, id *auth.Identity) bool

	// UserAccess reports whether id holds permission with no resource
	// addressed.
	UserAccess(permission string, id *auth.Identity) bool
}

// PermissionPolicy grants access from the identity's permission set.
// Resources in a non-active state additionally require the
// PermManageInactive grant.
type PermissionPolicy struct{}

// NewPermissionPolicy creates the default policy.
func NewPermissionPolicy() *PermissionPolicy {
	return &PermissionPolicy{}
}

// UserAccess reports whether the identity holds the permission.
func (p *PermissionPolicy) UserAccess(permission string, id *auth.Identity) bool {
	return id.HasPermission(permission)
}

// ObjectAccess applies the object predicate.
func (p *PermissionPolicy) ObjectAccess(permission string, obj *repo.Object, id *auth.Identity) bool {
	if !id.HasPermission(permission) {
		return false
	}
	if obj != nil && obj.State != repo.StateActive {
		return id.HasPermission(PermManageInactive)
	}
	return true
}

// DatastreamAccess applies the datastream predicate.
func (p *PermissionPolicy) DatastreamAccess(permission string, ds *repo.Datastream, id *auth.Identity) bool {
	if !id.HasPermission(permission) {
		return false
	}
	if ds != nil && ds.State != repo.StateActive {
		return id.HasPermission(PermManageInactive)
	}
	return true
}

// Ensure PermissionPolicy implements Policy.
var _ Policy = (*PermissionPolicy)(nil)
