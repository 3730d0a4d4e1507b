package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/databaseguru/backend/internal/api/handlers"
	"github.com/zatekoja/databaseguru/backend/internal/api/routes"
	"github.com/zatekoja/databaseguru/backend/internal/bootstrap"
	"github.com/zatekoja/databaseguru/backend/internal/infrastructure/observability"
	"github.com/zatekoja/databaseguru/backend/pkg/config"
	"github.com/zatekoja/databaseguru/backend/pkg/secrets"
)

func main() {
	// Export secrets from Vault before reading the environment
	vaultResult, err := secrets.ApplyVaultSecrets(context.Background(), secrets.LoadVaultConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load secrets from Vault")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging
	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName, env, os.Getenv("LOG_LEVEL"))

	log.Info().
		Str("service", cfg.OTEL.ServiceName).
		Str("version", cfg.OTEL.ServiceVersion).
		Int("connections", len(cfg.Connections)).
		Msg("Starting query correction service")
	if vaultResult.Enabled {
		log.Info().Str("path", vaultResult.Path).Strs("loaded", vaultResult.Loaded).Strs("skipped", vaultResult.Skipped).
			Msg("Secrets loaded from Vault")
	}

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					log.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	if _, err := observability.InitMetrics(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	engine, err := bootstrap.NewEngine(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build query engine")
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing query engine")
		}
	}()

	// Initialize handlers
	router := routes.NewRouter(
		handlers.NewQueryHandler(engine.Service, handlers.NewRateLimiter(engine.Cache, cfg.Server.QueryRateLimit, cfg.Server.QueryRateWindow)),
		handlers.NewCorrectionHandler(engine.Service),
		handlers.NewHealthHandler(engine.Registry, engine.Store),
	).WithAllowedOrigins(cfg.Server.AllowedOrigins)
	handler := router.SetupRoutes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        serverAddr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Long enough for a full retry budget against the slowest database
		WriteTimeout: cfg.Correction.QueryTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}

	log.Info().Msg("Server stopped")
}
