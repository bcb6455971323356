package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/revalya/golang_services/internal/bulk_messaging_service/app"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/domain"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/middleware"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/provider"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/render"
	"github.com/revalya/golang_services/internal/bulk_messaging_service/repository/postgres"
	httptransport "github.com/revalya/golang_services/internal/bulk_messaging_service/transport/http"
	"github.com/revalya/golang_services/internal/platform/config"
	"github.com/revalya/golang_services/internal/platform/database"
	"github.com/revalya/golang_services/internal/platform/logger"
	"github.com/revalya/golang_services/internal/platform/messagebroker"
	"github.com/revalya/golang_services/internal/platform/tracing"
)

const serviceName = "bulk_messaging_service"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Bulk messaging service starting...", "port", cfg.HTTPPort)

	ctx := context.Background()

	shutdownTracing, err := tracing.Setup(ctx, serviceName, cfg.OTLPEndpoint, appLogger)
	if err != nil {
		appLogger.Error("Failed to set up tracing", "error", err)
		os.Exit(1)
	}

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	var events app.RunEventPublisher
	var natsClient *messagebroker.NatsClient
	if cfg.NATSUrl != "" {
		natsClient, err = messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger)
		if err != nil {
			// Run events are best effort; the service still dispatches without them.
			appLogger.Error("Failed to connect to NATS, run events disabled", "error", err)
		} else {
			events = app.NewNatsRunEventPublisher(natsClient, cfg.NATSRunSubject, appLogger)
			appLogger.Info("Connected to NATS", "subject", cfg.NATSRunSubject)
		}
	}

	integrationRepo := postgres.NewPgIntegrationRepository(dbPool, appLogger)
	templateRepo := postgres.NewPgTemplateRepository(dbPool, appLogger)
	targetRepo := postgres.NewPgTargetRepository(dbPool, appLogger)
	historyRepo := postgres.NewPgMessageHistoryRepository(dbPool, appLogger)

	resolver := app.NewConfigResolver(integrationRepo, app.GatewayDefaults{
		BaseURL:     cfg.GatewayDefaultBaseURL,
		APIKey:      cfg.GatewayDefaultAPIKey,
		Environment: domain.Environment(cfg.GatewayDefaultEnvironment),
	}, appLogger)

	renderZone := time.FixedZone(fmt.Sprintf("UTC%+d", cfg.RenderTimezoneOffsetHours), cfg.RenderTimezoneOffsetHours*3600)
	renderer := render.NewRenderer(renderZone, nil)

	gateway := provider.NewEvolutionProvider(appLogger, &http.Client{}, provider.EvolutionConfig{
		RequestTimeout: time.Duration(cfg.GatewayRequestTimeoutSeconds) * time.Second,
		PresenceDelay:  time.Duration(cfg.GatewayPresenceDelayMs) * time.Millisecond,
	})
	dryRun := provider.NewDryRunProvider(appLogger)

	dispatcher := app.NewDispatcher(
		resolver,
		targetRepo,
		templateRepo,
		gateway,
		dryRun,
		renderer,
		app.NewDeliveryLogWriter(historyRepo, appLogger, 0),
		events,
		app.SystemClock(),
		cfg.DefaultCountryCode,
		appLogger,
	)

	limiter := middleware.NewTenantRateLimiter(cfg.TenantRateLimitPerMinute)
	handler := httptransport.NewDispatchHandler(dispatcher, validator.New(validator.WithRequiredStructEnabled()), appLogger)
	router := httptransport.NewRouter(handler, appLogger,
		middleware.Auth(cfg.JWTAccessSecret, cfg.Roles(), appLogger),
		limiter.Middleware(appLogger),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		appLogger.Info("Shutdown signal received, shutting down HTTP server...")
		// In-flight runs keep their handler goroutine until they finish or this deadline passes.
		ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancelShutdown()
		if err := httpServer.Shutdown(ctxShutdown); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		return nil
	})

	exitCode := 0
	if err := g.Wait(); err != nil {
		appLogger.Error("Bulk messaging service stopped with error", "error", err)
		exitCode = 1
	}

	natsClient.Close()
	ctxTracing, cancelTracing := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTracing()
	if err := shutdownTracing(ctxTracing); err != nil {
		appLogger.Warn("Tracing shutdown failed", "error", err)
	}
	appLogger.Info("Bulk messaging service stopped")
	if exitCode != 0 {
		dbPool.Close()
		os.Exit(exitCode)
	}
}
