// Package server assembles the gateway: middleware chain, routes, and the
// HTTP listener.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/dorepo/restgw/internal/access"
	"github.com/dorepo/restgw/internal/auth"
	"github.com/dorepo/restgw/internal/config"
	"github.com/dorepo/restgw/internal/dispatch"
	"github.com/dorepo/restgw/internal/endpoint"
	"github.com/dorepo/restgw/internal/middleware"
	"github.com/dorepo/restgw/internal/observability"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the assembled gateway HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	dispatcher *dispatch.Dispatcher
	enforcer   *access.Enforcer
	auth       atomic.Pointer[auth.Authenticator]
	metrics    *observability.Metrics
	logger     observability.Logger
	cfg        *config.GatewayConfig
	mu         sync.Mutex
	running    bool
}

// Option is a functional option for the server.
type Option func(*Server)

// WithMetrics sets the metrics collector and enables the /metrics endpoint.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New assembles the gateway from its collaborators. The dispatcher carries
// the registered handlers; the enforcer and authenticator are kept so a
// configuration reload can update them in place.
func New(
	cfg *config.GatewayConfig,
	dispatcher *dispatch.Dispatcher,
	enforcer *access.Enforcer,
	authenticator *auth.Authenticator,
	opts ...Option,
) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:     gin.New(),
		dispatcher: dispatcher,
		enforcer:   enforcer,
		logger:     observability.NopLogger(),
		cfg:        cfg,
	}
	s.auth.Store(authenticator)
	for _, opt := range opts {
		opt(s)
	}

	s.installMiddleware()
	s.installRoutes()
	return s
}

func (s *Server) installMiddleware() {
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Recovery(s.logger))
	if s.cfg.Observability.TracingEndpoint != "" {
		s.engine.Use(middleware.Tracing(s.cfg.Observability.ServiceName))
	}
	s.engine.Use(middleware.Logging(s.logger))
	if s.metrics != nil {
		s.engine.Use(middleware.ActiveRequests(s.metrics))
	}
	s.engine.Use(middleware.BodyLimit(s.cfg.Limits.MaxBodySize, s.logger))

	if s.cfg.RateLimit.Enabled {
		s.engine.Use(middleware.RateLimit(s.buildLimiter(), s.logger))
	}

	s.engine.Use(auth.DynamicMiddleware(s.auth.Load, s.logger))
}

func (s *Server) buildLimiter() middleware.Limiter {
	rl := s.cfg.RateLimit
	if rl.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: rl.RedisAddr})
		return middleware.NewRedisLimiter(client, rl.RPS, rl.Window)
	}
	return middleware.NewMemoryLimiter(rl.RPS, rl.Burst)
}

func (s *Server) installRoutes() {
	object := s.dispatcher.Handle(endpoint.Object)
	datastream := s.dispatcher.Handle(endpoint.Datastream)
	token := s.dispatcher.Handle(endpoint.DatastreamToken)
	relationship := s.dispatcher.Handle(endpoint.Relationship)
	search := s.dispatcher.Handle(endpoint.Solr)

	s.engine.GET("/objects", object)
	s.engine.POST("/objects", object)

	// POST is registered alongside PUT and DELETE routes so form posts can
	// carry a method override.
	s.engine.GET("/objects/:pid", object)
	s.engine.POST("/objects/:pid", object)
	s.engine.PUT("/objects/:pid", object)
	s.engine.DELETE("/objects/:pid", object)

	s.engine.GET("/objects/:pid/datastreams/:dsid", datastream)
	s.engine.POST("/objects/:pid/datastreams/:dsid", datastream)
	s.engine.PUT("/objects/:pid/datastreams/:dsid", datastream)
	s.engine.DELETE("/objects/:pid/datastreams/:dsid", datastream)

	s.engine.GET("/objects/:pid/datastreams/:dsid/token", token)

	s.engine.GET("/objects/:pid/relationships", relationship)
	s.engine.POST("/objects/:pid/relationships", relationship)
	s.engine.DELETE("/objects/:pid/relationships", relationship)

	s.engine.GET("/solr", search)

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if s.metrics != nil && s.cfg.Observability.MetricsEnabled {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Engine returns the underlying gin engine, mainly for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// ApplyConfig applies a reloaded configuration: the authenticator and the
// permission table are swapped in place. Listener changes need a restart.
func (s *Server) ApplyConfig(cfg *config.GatewayConfig) error {
	authenticator, err := BuildAuthenticator(cfg, s.logger)
	if err != nil {
		return fmt.Errorf("rebuilding authenticator: %w", err)
	}
	s.auth.Store(authenticator)
	s.enforcer.SetTable(BuildPermissionTable(cfg))

	s.logger.Info("applied reloaded configuration")
	return nil
}

// Start begins serving. It blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.Address,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	s.mu.Unlock()

	s.logger.Info("http server listening",
		observability.String("address", s.cfg.Server.Address),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || s.httpServer == nil {
		return nil
	}
	s.running = false

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// BuildAuthenticator constructs the authenticator from configuration.
func BuildAuthenticator(cfg *config.GatewayConfig, logger observability.Logger) (*auth.Authenticator, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	authCfg := auth.Config{
		JWTSecret:            cfg.Auth.JWTSecret,
		JWTPublicKeyPEM:      cfg.Auth.JWTPublicKeyPEM,
		AnonymousPermissions: cfg.Auth.AnonymousPermissions,
	}
	for name, user := range cfg.Auth.Users {
		authCfg.Users = append(authCfg.Users, auth.User{
			Username:     name,
			PasswordHash: user.PasswordHash,
			Roles:        user.Roles,
			Permissions:  user.Permissions,
		})
	}
	for key, username := range cfg.Auth.APIKeys {
		apiKey := auth.APIKey{Key: key, Subject: username}
		if user, ok := cfg.Auth.Users[username]; ok {
			apiKey.Roles = user.Roles
			apiKey.Permissions = user.Permissions
		}
		authCfg.APIKeys = append(authCfg.APIKeys, apiKey)
	}
	return auth.New(authCfg, auth.WithLogger(logger))
}

// BuildPermissionTable constructs the permission table with configured
// overrides applied.
func BuildPermissionTable(cfg *config.GatewayConfig) *access.PermissionTable {
	table := access.DefaultPermissionTable()
	for _, ov := range cfg.Permissions.Overrides {
		table.Override(endpoint.Kind(ov.Kind), strings.ToUpper(ov.Method), ov.Permission)
	}
	return table
}
