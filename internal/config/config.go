// Package config provides configuration loading, validation, and hot reload
// for the gateway.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// GatewayConfig is the root configuration.
type GatewayConfig struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Permissions   PermissionsConfig   `yaml:"permissions"`
	Repository    RepositoryConfig    `yaml:"repository"`
	Solr          SolrConfig          `yaml:"solr"`
	RateLimit     RateLimitConfig     `yaml:"rateLimit"`
	Limits        LimitsConfig        `yaml:"limits"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// AuthConfig configures credential verification.
type AuthConfig struct {
	// Users maps user names to bcrypt password hashes.
	Users map[string]UserConfig `yaml:"users"`

	// APIKeys maps API key values to user names.
	APIKeys map[string]string `yaml:"apiKeys"`

	// JWTSecret verifies HS256 tokens when set.
	JWTSecret string `yaml:"jwtSecret"`

	// JWTPublicKeyPEM verifies RS256 tokens when set.
	JWTPublicKeyPEM string `yaml:"jwtPublicKey"`

	// AnonymousPermissions are granted to callers without credentials.
	AnonymousPermissions []string `yaml:"anonymousPermissions"`
}

// UserConfig is one configured user.
type UserConfig struct {
	PasswordHash string   `yaml:"passwordHash"`
	Roles        []string `yaml:"roles"`
	Permissions  []string `yaml:"permissions"`
}

// PermissionsConfig overrides permission-table rows.
type PermissionsConfig struct {
	Overrides []PermissionOverride `yaml:"overrides"`
}

// PermissionOverride rebinds one endpoint kind and method pair to a
// permission name.
type PermissionOverride struct {
	Kind       string `yaml:"kind"`
	Method     string `yaml:"method"`
	Permission string `yaml:"permission"`
}

// RepositoryConfig selects and configures the object repository backend.
type RepositoryConfig struct {
	// Backend is either "memory" or "http".
	Backend string        `yaml:"backend"`
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// SolrConfig configures the search backend. An empty URL disables search.
type SolrConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// RateLimitConfig configures request rate limiting.
type RateLimitConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is either "memory" or "redis".
	Backend   string        `yaml:"backend"`
	RPS       int           `yaml:"rps"`
	Burst     int           `yaml:"burst"`
	Window    time.Duration `yaml:"window"`
	RedisAddr string        `yaml:"redisAddr"`
}

// LimitsConfig bounds request sizes.
type LimitsConfig struct {
	MaxBodySize int64 `yaml:"maxBodySize"`
}

// ObservabilityConfig configures logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel        string  `yaml:"logLevel"`
	LogFormat       string  `yaml:"logFormat"`
	MetricsEnabled  bool    `yaml:"metricsEnabled"`
	TracingEndpoint string  `yaml:"tracingEndpoint"`
	TracingSampling float64 `yaml:"tracingSampling"`
	ServiceName     string  `yaml:"serviceName"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Repository: RepositoryConfig{
			Backend: "memory",
			Timeout: 30 * time.Second,
		},
		Solr: SolrConfig{
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend: "memory",
			RPS:     100,
			Burst:   200,
			Window:  time.Minute,
		},
		Limits: LimitsConfig{
			MaxBodySize: 32 << 20,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			MetricsEnabled: true,
			ServiceName:    "restgw",
		},
	}
}

// applyDefaults fills zero-valued fields from the defaults.
func (c *GatewayConfig) applyDefaults() {
	def := DefaultConfig()
	if c.Server.Address == "" {
		c.Server.Address = def.Server.Address
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = def.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = def.Server.WriteTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = def.Server.IdleTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if c.Repository.Backend == "" {
		c.Repository.Backend = def.Repository.Backend
	}
	if c.Repository.Timeout == 0 {
		c.Repository.Timeout = def.Repository.Timeout
	}
	if c.Solr.Timeout == 0 {
		c.Solr.Timeout = def.Solr.Timeout
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = def.RateLimit.Backend
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = def.RateLimit.RPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = def.RateLimit.Window
	}
	if c.Limits.MaxBodySize == 0 {
		c.Limits.MaxBodySize = def.Limits.MaxBodySize
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = def.Observability.LogLevel
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = def.Observability.LogFormat
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = def.Observability.ServiceName
	}
}

// ValidateConfig checks the configuration for inconsistencies.
func ValidateConfig(c *GatewayConfig) error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	switch c.Repository.Backend {
	case "memory":
	case "http":
		if c.Repository.BaseURL == "" {
			return fmt.Errorf("repository.baseURL is required for the http backend")
		}
	default:
		return fmt.Errorf("unknown repository backend %q", c.Repository.Backend)
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.Enabled && c.RateLimit.RedisAddr == "" {
			return fmt.Errorf("rateLimit.redisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown rate limit backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}

	for i, ov := range c.Permissions.Overrides {
		if ov.Kind == "" || ov.Method == "" || ov.Permission == "" {
			return fmt.Errorf("permissions.overrides[%d]: kind, method, and permission are all required", i)
		}
		if !validMethod(ov.Method) {
			return fmt.Errorf("permissions.overrides[%d]: unknown method %q", i, ov.Method)
		}
	}

	if c.Observability.TracingSampling < 0 || c.Observability.TracingSampling > 1 {
		return fmt.Errorf("observability.tracingSampling must be between 0 and 1")
	}

	for name, user := range c.Auth.Users {
		if user.PasswordHash == "" {
			return fmt.Errorf("auth.users[%s]: passwordHash is required", name)
		}
	}

	return nil
}

func validMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}
