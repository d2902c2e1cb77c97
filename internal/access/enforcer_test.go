package access

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorepo/restgw/internal/apierr"
	"github.com/dorepo/restgw/internal/auth"
	"github.com/dorepo/restgw/internal/endpoint"
	"github.com/dorepo/restgw/internal/repo"
)

// stubGate is a fixed search availability gate.
type stubGate bool

func (g stubGate) Available() bool { return bool(g) }

func viewer(anonymous bool) *auth.Identity {
	if anonymous {
		return auth.NewAnonymous([]string{"view objects"})
	}
	return &auth.Identity{Subject: "alice", Permissions: []string{"view objects"}}
}

func TestDefaultPermissionTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind       endpoint.Kind
		method     string
		permission string
	}{
		{endpoint.Object, http.MethodGet, "view objects"},
		{endpoint.Object, http.MethodPost, "create objects"},
		{endpoint.Object, http.MethodPut, "edit objects"},
		{endpoint.Object, http.MethodDelete, "delete objects"},
		{endpoint.Datastream, http.MethodGet, "view datastreams"},
		{endpoint.DatastreamToken, http.MethodGet, "view datastreams"},
		{endpoint.Relationship, http.MethodPost, "edit relationships"},
	}

	table := DefaultPermissionTable()
	for _, tt := range tests {
		perm, ok := table.PermissionFor(tt.kind, tt.method)
		require.True(t, ok, "%s %s", tt.kind, tt.method)
		assert.Equal(t, tt.permission, perm)
	}

	_, ok := table.PermissionFor(endpoint.DatastreamToken, http.MethodDelete)
	assert.False(t, ok)
}

func TestPermissionTable_Override(t *testing.T) {
	t.Parallel()

	table := DefaultPermissionTable()
	table.Override(endpoint.Object, http.MethodGet, "browse repository")
	perm, ok := table.PermissionFor(endpoint.Object, http.MethodGet)
	require.True(t, ok)
	assert.Equal(t, "browse repository", perm)

	// Empty override is ignored.
	table.Override(endpoint.Object, http.MethodGet, "")
	perm, _ = table.PermissionFor(endpoint.Object, http.MethodGet)
	assert.Equal(t, "browse repository", perm)
}

func TestEnforcer_CheckAccess(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer(DefaultPermissionTable(), NewPermissionPolicy())

	t.Run("no resource uses plain user check", func(t *testing.T) {
		t.Parallel()
		allowed, err := enforcer.CheckAccess(endpoint.Object, http.MethodGet, repo.NoResource(), viewer(false))
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = enforcer.CheckAccess(endpoint.Object, http.MethodPost, repo.NoResource(), viewer(false))
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("object resource uses object predicate", func(t *testing.T) {
		t.Parallel()
		active := &repo.Object{PID: "abc:1", State: repo.StateActive}
		allowed, err := enforcer.CheckAccess(endpoint.Object, http.MethodGet, repo.ObjectResource(active), viewer(false))
		require.NoError(t, err)
		assert.True(t, allowed)

		inactive := &repo.Object{PID: "abc:2", State: repo.StateInactive}
		allowed, err = enforcer.CheckAccess(endpoint.Object, http.MethodGet, repo.ObjectResource(inactive), viewer(false))
		require.NoError(t, err)
		assert.False(t, allowed, "inactive object needs the manage grant")

		admin := &auth.Identity{Subject: "root", Permissions: []string{"view objects", PermManageInactive}}
		allowed, err = enforcer.CheckAccess(endpoint.Object, http.MethodGet, repo.ObjectResource(inactive), admin)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("datastream resource uses datastream predicate", func(t *testing.T) {
		t.Parallel()
		obj := &repo.Object{PID: "abc:1", State: repo.StateActive}
		ds := &repo.Datastream{ID: "DC", State: repo.StateActive}
		id := &auth.Identity{Subject: "alice", Permissions: []string{"view datastreams"}}

		allowed, err := enforcer.CheckAccess(endpoint.Datastream, http.MethodGet, repo.DatastreamResource(obj, ds), id)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("undefined pair is method not allowed", func(t *testing.T) {
		t.Parallel()
		_, err := enforcer.CheckAccess(endpoint.DatastreamToken, http.MethodDelete, repo.NoResource(), viewer(false))
		require.Error(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, apierr.StatusOf(err))
	})
}

func TestEnforcer_Solr(t *testing.T) {
	t.Parallel()

	searcher := &auth.Identity{Subject: "alice", Permissions: []string{PermSolrSearch}}

	t.Run("available and capable", func(t *testing.T) {
		t.Parallel()
		e := NewEnforcer(DefaultPermissionTable(), NewPermissionPolicy(), WithSearchGate(stubGate(true)))
		allowed, err := e.CheckAccess(endpoint.Solr, http.MethodGet, repo.NoResource(), searcher)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("subsystem inactive denies even capable callers", func(t *testing.T) {
		t.Parallel()
		e := NewEnforcer(DefaultPermissionTable(), NewPermissionPolicy(), WithSearchGate(stubGate(false)))
		allowed, err := e.CheckAccess(endpoint.Solr, http.MethodGet, repo.NoResource(), searcher)
		require.NoError(t, err)
		assert.False(t, allowed)
	})

	t.Run("no gate wired denies", func(t *testing.T) {
		t.Parallel()
		e := NewEnforcer(DefaultPermissionTable(), NewPermissionPolicy())
		allowed, err := e.CheckAccess(endpoint.Solr, http.MethodGet, repo.NoResource(), searcher)
		require.NoError(t, err)
		assert.False(t, allowed)
	})
}

func TestEnforcer_RequireAccess(t *testing.T) {
	t.Parallel()

	enforcer := NewEnforcer(DefaultPermissionTable(), NewPermissionPolicy())
	obj := repo.ObjectResource(&repo.Object{PID: "abc:1", State: repo.StateActive})

	t.Run("allowed returns nil", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, enforcer.RequireAccess(endpoint.Object, http.MethodGet, obj, viewer(false)))
	})

	t.Run("anonymous denial is 401", func(t *testing.T) {
		t.Parallel()
		anon := auth.NewAnonymous(nil)
		err := enforcer.RequireAccess(endpoint.Object, http.MethodGet, obj, anon)
		require.Error(t, err)
		assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(err))
	})

	t.Run("authenticated denial is 403", func(t *testing.T) {
		t.Parallel()
		bob := &auth.Identity{Subject: "bob"}
		err := enforcer.RequireAccess(endpoint.Object, http.MethodGet, obj, bob)
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, apierr.StatusOf(err))
	})

	t.Run("same denial differs only by caller state", func(t *testing.T) {
		t.Parallel()
		anonErr := enforcer.RequireAccess(endpoint.Object, http.MethodDelete, obj, auth.NewAnonymous(nil))
		authErr := enforcer.RequireAccess(endpoint.Object, http.MethodDelete, obj, &auth.Identity{Subject: "bob"})
		assert.Equal(t, http.StatusUnauthorized, apierr.StatusOf(anonErr))
		assert.Equal(t, http.StatusForbidden, apierr.StatusOf(authErr))
	})
}
