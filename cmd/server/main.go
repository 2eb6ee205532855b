package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"condo-manager/backend/internal/api"
	"condo-manager/backend/internal/assembly"
	"condo-manager/backend/internal/auth"
	"condo-manager/backend/internal/config"
	"condo-manager/backend/internal/logging"
	"condo-manager/backend/internal/mcp"
	"condo-manager/backend/internal/observability"
	"condo-manager/backend/internal/repository"
	"condo-manager/backend/internal/services"
	"condo-manager/backend/internal/tls"
	"condo-manager/backend/internal/validation"
	"condo-manager/backend/internal/workflow"
)

func main() {
	configFile := flag.String("config", "", "Path to config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration loading failed: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		"environment", cfg.Environment,
		"okta_domain", cfg.Auth.OktaDomain,
		"store", cfg.Store.Backend,
		"roster", cfg.Roster.Source,
	)
	if cfg.Auth.SwaggerClientID != "" && cfg.Auth.SwaggerClientID == cfg.Auth.ClientID {
		logger.Warn("Swagger client ID matches the backend client ID; PKCE logins from /docs will fail if the backend is a confidential web app")
	}

	telemetry, err := observability.New(ctx, observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: api.Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		Enabled:        cfg.Telemetry.Enabled,
	}, logger)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	// Relational store
	var repo repository.Repository
	var dbPool *pgxpool.Pool
	if needsDatabase(cfg) {
		dbPool, err = initDatabase(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		pg := repository.NewPostgresRepository(dbPool)
		if cfg.DB.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Database schema up to date")
		}
		repo = pg
	} else {
		logger.Warn("No database configured; buildings and minutes are kept in memory")
		repo = repository.NewMemoryRepository()
	}

	store, closeStore, err := repository.NewStateStore(ctx, cfg, dbPool)
	if err != nil {
		return fmt.Errorf("state store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("state store close", "error", err)
		}
	}()

	var roster repository.RosterProvider = repo
	if cfg.Roster.Source == "http" {
		roster = services.NewHTTPRosterClient(cfg.Roster.URL, cfg.Roster.Timeout)
	}

	// Workflow definitions
	validator, err := validation.New()
	if err != nil {
		return fmt.Errorf("validator: %w", err)
	}
	registry := workflow.NewRegistry()
	if err := assembly.Register(registry); err != nil {
		return fmt.Errorf("register built-in workflows: %w", err)
	}
	if dir := cfg.Definitions.Dir; dir != "" {
		if _, statErr := os.Stat(dir); statErr == nil {
			n, err := workflow.RegisterDir(registry, dir, validator)
			if err != nil {
				return fmt.Errorf("load definitions from %s: %w", dir, err)
			}
			logger.Info("Workflow definitions loaded", "dir", dir, "count", n)

			if cfg.Definitions.Watch {
				watcher, err := workflow.NewWatcher(dir, registry, validator, logger)
				if err != nil {
					return fmt.Errorf("watch %s: %w", dir, err)
				}
				defer watcher.Close()
				go func() {
					if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("definition watcher stopped", "error", err)
					}
				}()
			}
		}
	}

	engine, err := workflow.New(registry, store,
		workflow.WithValidator(validator),
		workflow.WithLogger(logger),
		workflow.WithMeter(telemetry.Meter()),
	)
	if err != nil {
		return fmt.Errorf("workflow engine: %w", err)
	}

	var publisher services.Publisher
	if cfg.NATS.URL != "" {
		nc, err := services.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()
		publisher = nc
		logger.Info("Publishing assembly events", "nats", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}
	assemblies := services.NewAssemblyService(engine, roster, repo, publisher, logger)
	assemblies.SetSubjectPrefix(cfg.NATS.SubjectPrefix)
	defer assemblies.Wait()

	logger.Info("Service layer initialized")

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler(logger)
	e.Use(otelecho.Middleware(cfg.Telemetry.ServiceName))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(api.RateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	authz, err := auth.New(ctx, cfg, repo, logger)
	if err != nil {
		return fmt.Errorf("auth initialization failed: %w", err)
	}

	e.GET("/login", echo.WrapHandler(http.HandlerFunc(authz.LoginHandler)))
	e.GET("/auth/callback", echo.WrapHandler(http.HandlerFunc(authz.CallbackHandler)))
	e.GET("/logout", echo.WrapHandler(http.HandlerFunc(authz.LogoutHandler)))

	server := api.NewServer(engine, assemblies, repo)
	e.GET("/health", server.GetHealth)

	apiGroup := e.Group("/api/v1")
	apiGroup.Use(echo.WrapMiddleware(authz.RequireAuth))
	apiGroup.Use(echo.WrapMiddleware(auth.RequireAPIScopes))
	api.RegisterHandlers(apiGroup, server)

	logger.Info("REST API handlers mounted")

	mcpServer := mcp.NewServer(engine)
	mcpHandlers := http.NewServeMux()
	mcp.MountHTTPHandlers(mcpHandlers, mcpServer.GetMCPServer())
	e.Any("/mcp", echo.WrapHandler(mcpHandlers))
	e.Any("/mcp/*", echo.WrapHandler(mcpHandlers))

	logger.Info("MCP protocol handlers mounted")

	e.GET("/openapi.yaml", echo.WrapHandler(api.SpecHandler(cfg.Auth.OktaDomain)))
	e.GET("/docs", echo.WrapHandler(api.SwaggerHandler(cfg.Auth.OktaDomain, cfg.Auth.SwaggerClientID)))
	e.GET("/docs/oauth2-redirect.html", echo.WrapHandler(api.OAuth2RedirectHandler()))

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "address", httpServer.Addr, "tls", cfg.TLS.Enable)
		serverErrors <- serve(httpServer, cfg, logger)
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			if err := httpServer.Close(); err != nil {
				logger.Error("Server close error", "error", err)
			}
		}
		logger.Info("Server stopped gracefully")
	}
	return nil
}

// serve listens with TLS when enabled, generating a self-signed certificate
// for the configured hostnames if none exists yet.
func serve(srv *http.Server, cfg *config.Config, logger *logging.Logger) error {
	if !cfg.TLS.Enable {
		return srv.ListenAndServe()
	}
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return errors.New("TLS enabled but cert/key file not provided")
	}
	if _, err := os.Stat(cfg.TLS.CertFile); errors.Is(err, os.ErrNotExist) && len(cfg.TLS.Hostnames) > 0 {
		if err := tls.GenerateSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
			return fmt.Errorf("generate self-signed cert: %w", err)
		}
		logger.Info("Generated self-signed certificate", "cert", cfg.TLS.CertFile, "hosts", cfg.TLS.Hostnames)
	}
	return srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
}

func needsDatabase(cfg *config.Config) bool {
	return cfg.Store.Backend == config.StorePostgres || cfg.Roster.Source == "postgres"
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection", "host", cfg.DB.Host, "db", cfg.DB.Name)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected")
	return pool, nil
}
