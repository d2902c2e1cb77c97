// Package auth resolves request credentials into an identity the access
// enforcer can evaluate. Absent credentials are not an error: callers
// without credentials proceed as the anonymous identity and the enforcer
// decides whether that is enough.
package auth

import "context"

// AnonymousSubject is the subject name of the anonymous identity.
const AnonymousSubject = "anonymous"

// Identity is the caller of a request.
type Identity struct {
	// Subject is the unique identifier for the identity.
	Subject string `json:"sub"`

	// Roles contains the roles assigned to the identity.
	Roles []string `json:"roles,omitempty"`

	// Permissions contains the permission names granted to the identity.
	Permissions []string `json:"permissions,omitempty"`

	// Anonymous is true when no credentials were presented.
	Anonymous bool `json:"anonymous,omitempty"`
}

// HasPermission reports whether the identity holds the named permission.
func (id *Identity) HasPermission(name string) bool {
	if id == nil {
		return false
	}
	for _, p := range id.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// HasRole reports whether the identity holds the named role.
func (id *Identity) HasRole(name string) bool {
	if id == nil {
		return false
	}
	for _, r := range id.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// NewAnonymous returns the anonymous identity with the given grants.
func NewAnonymous(permissions []string) *Identity {
	return &Identity{
		Subject:     AnonymousSubject,
		Permissions: append([]string(nil), permissions...),
		Anonymous:   true,
	}
}

// identityContextKey is the context key holding the request identity.
type identityContextKey struct{}

// ContextWithIdentity stores the identity in the context.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity stored in the context, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey{}).(*Identity)
	return id
}
