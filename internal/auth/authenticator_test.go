package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	a, err := New(Config{
		Users: []User{{
			Username:     "admin",
			PasswordHash: string(hash),
			Roles:        []string{"administrator"},
			Permissions:  []string{"view objects", "create objects"},
		}},
		APIKeys: []APIKey{{
			Key:         "key-1",
			Subject:     "indexer",
			Permissions: []string{"view objects"},
		}},
		JWTSecret:            testSecret,
		AnonymousPermissions: []string{"view objects"},
	})
	require.NoError(t, err)
	return a
}

func signTestToken(t *testing.T, subject string, permissions []string) string {
	t.Helper()

	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour))
	if permissions != nil {
		builder = builder.Claim("permissions", permissions)
	}
	token, err := builder.Build()
	require.NoError(t, err)

	key, err := jwk.FromRaw([]byte(testSecret))
	require.NoError(t, err)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)
	return string(signed)
}

func TestAuthenticate_Anonymous(t *testing.T) {
	t.Parallel()

	a := newTestAuthenticator(t)
	req := httptest.NewRequest(http.MethodGet, "/object/abc:1", nil)

	id, err := a.Authenticate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, id.Anonymous)
	assert.Equal(t, AnonymousSubject, id.Subject)
	assert.True(t, id.HasPermission("view objects"))
	assert.False(t, id.HasPermission("create objects"))
}

func TestAuthenticate_Basic(t *testing.T) {
	t.Parallel()

	t.Run("valid credentials", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "s3cret")

		id, err := a.Authenticate(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, id.Anonymous)
		assert.Equal(t, "admin", id.Subject)
		assert.True(t, id.HasRole("administrator"))
	})

	t.Run("wrong password", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "wrong")

		_, err := a.Authenticate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("nobody", "s3cret")

		_, err := a.Authenticate(context.Background(), req)
		assert.ErrorIs(t, err, ErrUnknownUser)
	})

	t.Run("burn hash does real work", func(t *testing.T) {
		t.Parallel()
		// The hash burned for unknown users must be well formed, otherwise
		// CompareHashAndPassword bails before hashing and the timing leaks.
		cost, err := bcrypt.Cost(burnHash)
		require.NoError(t, err)
		assert.Equal(t, bcrypt.DefaultCost, cost)
		assert.ErrorIs(t, bcrypt.CompareHashAndPassword(burnHash, []byte("wrong")),
			bcrypt.ErrMismatchedHashAndPassword)
	})
}

func TestAuthenticate_APIKey(t *testing.T) {
	t.Parallel()

	t.Run("known key", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "key-1")

		id, err := a.Authenticate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "indexer", id.Subject)
	})

	t.Run("unknown key", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-API-Key", "bogus")

		_, err := a.Authenticate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})
}

func TestAuthenticate_Bearer(t *testing.T) {
	t.Parallel()

	t.Run("valid token with claims", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		token := signTestToken(t, "alice", []string{"view objects", "edit objects"})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		id, err := a.Authenticate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "alice", id.Subject)
		assert.True(t, id.HasPermission("edit objects"))
	})

	t.Run("garbage token", func(t *testing.T) {
		t.Parallel()
		a := newTestAuthenticator(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")

		_, err := a.Authenticate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no key configured", func(t *testing.T) {
		t.Parallel()
		a, err := New(Config{})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer whatever")

		_, err = a.Authenticate(context.Background(), req)
		assert.ErrorIs(t, err, ErrNoVerificationKey)
	})
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("stores identity in context", func(t *testing.T) {
		a := newTestAuthenticator(t)
		router := gin.New()
		router.Use(Middleware(a, nil))
		router.GET("/", func(c *gin.Context) {
			id := IdentityFromContext(c.Request.Context())
			require.NotNil(t, id)
			c.JSON(http.StatusOK, gin.H{"subject": id.Subject})
		})

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "s3cret")
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "admin")
	})

	t.Run("invalid credentials rejected with 401", func(t *testing.T) {
		a := newTestAuthenticator(t)
		router := gin.New()
		router.Use(Middleware(a, nil))
		router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.SetBasicAuth("admin", "wrong")
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())
	})
}
