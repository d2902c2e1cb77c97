package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  address: ":9090"
  readTimeout: 10s
auth:
  users:
    alice:
      passwordHash: "$$2a$$10$$abcdefghijklmnopqrstuv"
      permissions:
        - view objects
  anonymousPermissions:
    - view objects
permissions:
  overrides:
    - kind: object
      method: GET
      permission: read anything
repository:
  backend: http
  baseURL: http://repo.local:8081
solr:
  url: http://solr.local:8983/solr/core
rateLimit:
  enabled: true
  backend: memory
  rps: 10
  burst: 20
`

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "http", cfg.Repository.Backend)
	assert.Equal(t, "http://repo.local:8081", cfg.Repository.BaseURL)
	assert.Equal(t, "http://solr.local:8983/solr/core", cfg.Solr.URL)
	assert.Equal(t, 10, cfg.RateLimit.RPS)

	require.Contains(t, cfg.Auth.Users, "alice")
	assert.Equal(t, "$2a$10$abcdefghijklmnopqrstuv", cfg.Auth.Users["alice"].PasswordHash)

	require.Len(t, cfg.Permissions.Overrides, 1)
	assert.Equal(t, "read anything", cfg.Permissions.Overrides[0].Permission)

	// Unset fields pick up defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, int64(32<<20), cfg.Limits.MaxBodySize)

	require.NoError(t, ValidateConfig(cfg))
}

func TestEnvSubstitution(t *testing.T) {
	t.Setenv("RESTGW_TEST_ADDR", ":7070")

	cfg, err := LoadConfigFromReader(strings.NewReader(`
server:
  address: "${RESTGW_TEST_ADDR}"
solr:
  url: "${RESTGW_TEST_SOLR:-http://fallback:8983}"
`))
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.Equal(t, "http://fallback:8983", cfg.Solr.URL)
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*GatewayConfig)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(*GatewayConfig) {},
		},
		{
			name: "http backend without url",
			mutate: func(c *GatewayConfig) {
				c.Repository.Backend = "http"
			},
			wantErr: "baseURL",
		},
		{
			name: "unknown repository backend",
			mutate: func(c *GatewayConfig) {
				c.Repository.Backend = "postgres"
			},
			wantErr: "unknown repository backend",
		},
		{
			name: "redis rate limit without addr",
			mutate: func(c *GatewayConfig) {
				c.RateLimit.Enabled = true
				c.RateLimit.Backend = "redis"
			},
			wantErr: "redisAddr",
		},
		{
			name: "incomplete override",
			mutate: func(c *GatewayConfig) {
				c.Permissions.Overrides = []PermissionOverride{{Kind: "object"}}
			},
			wantErr: "overrides",
		},
		{
			name: "bad override method",
			mutate: func(c *GatewayConfig) {
				c.Permissions.Overrides = []PermissionOverride{
					{Kind: "object", Method: "PATCH", Permission: "x"},
				}
			},
			wantErr: "unknown method",
		},
		{
			name: "sampling out of range",
			mutate: func(c *GatewayConfig) {
				c.Observability.TracingSampling = 1.5
			},
			wantErr: "tracingSampling",
		},
		{
			name: "user without password hash",
			mutate: func(c *GatewayConfig) {
				c.Auth.Users = map[string]UserConfig{"bob": {}}
			},
			wantErr: "passwordHash",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
