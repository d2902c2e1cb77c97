package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/dorepo/restgw/internal/observability"
)

// User is a configured basic-auth user.
type User struct {
	Username     string
	PasswordHash string
	Roles        []string
	Permissions  []string
}

// APIKey is a configured static API key.
type APIKey struct {
	Key         string
	Subject     string
	Roles       []string
	Permissions []string
}

// Config configures the authenticator.
type Config struct {
	// Users are basic-auth users keyed by username.
	Users []User

	// APIKeys are static API keys honored on the X-API-Key header.
	APIKeys []APIKey

	// JWTSecret enables HS256 bearer tokens when non-empty.
	JWTSecret string

	// JWTPublicKeyPEM enables RS256 bearer tokens when non-empty.
	JWTPublicKeyPEM string

	// AnonymousPermissions are granted to callers without credentials.
	AnonymousPermissions []string
}

// Authenticator resolves request credentials into an Identity.
type Authenticator struct {
	users   map[string]User
	apiKeys map[string]APIKey
	jwtKey  jwk.Key
	jwtAlg  jwa.SignatureAlgorithm
	anon    []string
	logger  observability.Logger
}

// Option is a functional option for the authenticator.
type Option func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// New creates an authenticator from the given configuration.
func New(cfg Config, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		users:   make(map[string]User, len(cfg.Users)),
		apiKeys: make(map[string]APIKey, len(cfg.APIKeys)),
		anon:    append([]string(nil), cfg.AnonymousPermissions...),
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}

	for _, u := range cfg.Users {
		a.users[u.Username] = u
	}
	for _, k := range cfg.APIKeys {
		a.apiKeys[k.Key] = k
	}

	switch {
	case cfg.JWTSecret != "":
		key, err := jwk.FromRaw([]byte(cfg.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("loading JWT secret: %w", err)
		}
		a.jwtKey = key
		a.jwtAlg = jwa.HS256
	case cfg.JWTPublicKeyPEM != "":
		key, err := jwk.ParseKey([]byte(cfg.JWTPublicKeyPEM), jwk.WithPEM(true))
		if err != nil {
			return nil, fmt.Errorf("parsing JWT public key: %w", err)
		}
		a.jwtKey = key
		a.jwtAlg = jwa.RS256
	}

	return a, nil
}

// Anonymous returns the anonymous identity this gateway grants.
func (a *Authenticator) Anonymous() *Identity {
	return NewAnonymous(a.anon)
}

// Authenticate resolves the request's credentials. Requests without
// credentials yield the anonymous identity; presented-but-invalid
// credentials yield an error.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.authenticateAPIKey(key)
	}

	header := r.Header.Get("Authorization")
	switch {
	case header == "":
		return a.Anonymous(), nil
	case strings.HasPrefix(strings.ToLower(header), "bearer "):
		return a.authenticateBearer(ctx, strings.TrimSpace(header[len("bearer "):]))
	default:
		if username, password, ok := r.BasicAuth(); ok {
			return a.authenticateBasic(username, password)
		}
		return nil, ErrInvalidCredentials
	}
}

// burnHash is a real cost-10 bcrypt hash of a throwaway password, so the
// comparison burned for an unknown user costs the same as one against a
// configured user.
var burnHash = []byte("$2a$10$vI8aWBnW3fID.ZQ4/zo1G.q1lRps.9cGLcZEiGDMVr5yUP1KUOYTa")

// authenticateBasic validates a username/password pair against the
// configured users.
func (a *Authenticator) authenticateBasic(username, password string) (*Identity, error) {
	user, ok := a.users[username]
	if !ok {
		// Burn a comparison anyway to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword(burnHash, []byte(password))
		return nil, ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &Identity{
		Subject:     user.Username,
		Roles:       append([]string(nil), user.Roles...),
		Permissions: append([]string(nil), user.Permissions...),
	}, nil
}

// authenticateAPIKey validates a static API key.
func (a *Authenticator) authenticateAPIKey(key string) (*Identity, error) {
	for configured, entry := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(configured), []byte(key)) == 1 {
			return &Identity{
				Subject:     entry.Subject,
				Roles:       append([]string(nil), entry.Roles...),
				Permissions: append([]string(nil), entry.Permissions...),
			}, nil
		}
	}
	return nil, ErrInvalidAPIKey
}

// authenticateBearer validates a JWT and maps its claims onto an Identity.
// The roles and permissions claims are string arrays.
func (a *Authenticator) authenticateBearer(ctx context.Context, token string) (*Identity, error) {
	if a.jwtKey == nil {
		return nil, ErrNoVerificationKey
	}

	parsed, err := jwt.Parse([]byte(token),
		jwt.WithContext(ctx),
		jwt.WithKey(a.jwtAlg, a.jwtKey),
		jwt.WithValidate(true),
	)
	if err != nil {
		a.logger.Debug("bearer token rejected", observability.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := &Identity{Subject: parsed.Subject()}
	if roles, ok := parsed.Get("roles"); ok {
		id.Roles = toStringSlice(roles)
	}
	if perms, ok := parsed.Get("permissions"); ok {
		id.Permissions = toStringSlice(perms)
	}
	return id, nil
}

// toStringSlice converts a decoded JSON claim into a string slice.
func toStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
