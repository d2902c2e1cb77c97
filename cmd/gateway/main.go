// Package main is the entry point for the repository gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dorepo/restgw/internal/access"
	"github.com/dorepo/restgw/internal/config"
	"github.com/dorepo/restgw/internal/dispatch"
	"github.com/dorepo/restgw/internal/handlers"
	"github.com/dorepo/restgw/internal/observability"
	"github.com/dorepo/restgw/internal/repo"
	"github.com/dorepo/restgw/internal/resolve"
	"github.com/dorepo/restgw/internal/server"
	"github.com/dorepo/restgw/internal/solr"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	run(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("RESTGW_CONFIG_PATH", "configs/gateway.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("RESTGW_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("RESTGW_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("restgw version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.GatewayConfig {
	logger.Info("starting restgw",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.Address),
		observability.String("repository", cfg.Repository.Backend),
		observability.Bool("search", cfg.Solr.URL != ""),
		observability.Int("users", len(cfg.Auth.Users)),
		observability.Int("permission_overrides", len(cfg.Permissions.Overrides)),
	)
	return cfg
}

// application holds all application components.
type application struct {
	server  *server.Server
	metrics *observability.Metrics
	tracer  *observability.Tracer
	config  *config.GatewayConfig
}

// initApplication initializes all application components.
func initApplication(cfg *config.GatewayConfig, logger observability.Logger) *application {
	metrics := observability.NewMetrics("restgw")
	tracer := initTracer(cfg, logger)

	repository := buildRepository(cfg, logger)

	var searchClient *solr.Client
	enforcerOpts := []access.EnforcerOption{access.WithEnforcerLogger(logger)}
	if cfg.Solr.URL != "" {
		searchClient = solr.NewClient(cfg.Solr.URL,
			solr.WithLogger(logger),
			solr.WithHTTPClient(&http.Client{Timeout: cfg.Solr.Timeout}),
		)
		enforcerOpts = append(enforcerOpts, access.WithSearchGate(searchClient))
	}

	enforcer := access.NewEnforcer(
		server.BuildPermissionTable(cfg),
		access.NewPermissionPolicy(),
		enforcerOpts...,
	)

	registry := dispatch.NewRegistry()
	handlerSet := handlers.New(repository, searchClient, handlers.WithLogger(logger))
	handlerSet.Register(registry)

	dispatcher := dispatch.NewDispatcher(registry,
		resolve.NewResolver(repository, resolve.WithResolverLogger(logger)),
		enforcer,
		dispatch.WithTokenGrant(handlerSet.Tokens()),
		dispatch.WithMetrics(metrics),
		dispatch.WithLogger(logger),
	)

	authenticator, err := server.BuildAuthenticator(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build authenticator", observability.Error(err))
	}

	srv := server.New(cfg, dispatcher, enforcer, authenticator,
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	)

	return &application{
		server:  srv,
		metrics: metrics,
		tracer:  tracer,
		config:  cfg,
	}
}

// buildRepository constructs the configured repository backend.
func buildRepository(cfg *config.GatewayConfig, logger observability.Logger) repo.Repository {
	if cfg.Repository.Backend == "http" {
		client, err := repo.NewClient(cfg.Repository.BaseURL, cfg.Repository.Timeout,
			repo.WithClientLogger(logger),
		)
		if err != nil {
			logger.Fatal("failed to create repository client", observability.Error(err))
		}
		return client
	}
	return repo.NewMemoryRepository()
}

// initTracer initializes the tracer.
func initTracer(cfg *config.GatewayConfig, logger observability.Logger) *observability.Tracer {
	tracer, err := observability.NewTracer(observability.TracerConfig{
		ServiceName:  cfg.Observability.ServiceName,
		OTLPEndpoint: cfg.Observability.TracingEndpoint,
		SamplingRate: cfg.Observability.TracingSampling,
		Enabled:      cfg.Observability.TracingEndpoint != "",
	})
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}
	return tracer
}

// run starts the server and blocks until shutdown.
func run(app *application, configPath string, logger observability.Logger) {
	watcher := startConfigWatcher(app, configPath, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server failed", observability.Error(err))
		}
	}

	shutdown(app, watcher, logger)
}

// startConfigWatcher starts the configuration watcher, or returns nil when
// watching cannot be established.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, func(newCfg *config.GatewayConfig) {
		if reloadErr := app.server.ApplyConfig(newCfg); reloadErr != nil {
			logger.Error("failed to apply reloaded configuration", observability.Error(reloadErr))
		}
	}, config.WithWatcherLogger(logger))
	if err != nil {
		logger.Error("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Error("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}

// shutdown stops all components gracefully.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if watcher != nil {
		if err := watcher.Stop(); err != nil {
			logger.Error("failed to stop config watcher", observability.Error(err))
		}
	}
	if err := app.server.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down server", observability.Error(err))
	}
	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shut down tracer", observability.Error(err))
	}

	logger.Info("shutdown complete")
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
