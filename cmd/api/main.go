package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridianml/feature-store/internal/accesslog"
	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/api/middleware"
	"github.com/meridianml/feature-store/internal/api/rest"
	"github.com/meridianml/feature-store/internal/api/server"
	"github.com/meridianml/feature-store/internal/config"
	"github.com/meridianml/feature-store/internal/ingest"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/serving"
	"github.com/meridianml/feature-store/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Feature Store API")

	// Connect to the feature store database
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.String("driver", cfg.Database.Driver),
	)

	dataStore := store.NewGormStore(db)
	clock := adapter.NewClock()
	reg := registry.New(dataStore, clock)

	// Register configured groups and features so a fresh database serves
	// metadata before the first ingestion run
	if len(cfg.Features) > 0 {
		count, err := reg.RegisterFromConfig(ctx, cfg.Features)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to register configured features", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Registered configured features", zap.Int("count", count))
	}

	// Access-log sink flushes asynchronously; close it on shutdown so queued
	// entries are not lost
	sink := accesslog.NewSink(dataStore, clock, cfg.AccessLog.QueueSize)
	defer sink.Close()

	service := serving.NewService(dataStore, reg, sink, clock, cfg.AccessLog.RecentWindow)

	// The refresh endpoint runs an ingestion pass in-process when an upstream
	// query is configured
	var refresh rest.RefreshFunc
	if cfg.Upstream.Query != "" {
		refresh = func(ctx context.Context) error {
			upstream, err := store.Open(cfg.Upstream.Driver, cfg.Upstream.DSN())
			if err != nil {
				return fmt.Errorf("failed to open upstream: %w", err)
			}
			defer func() {
				if sqlDB, err := upstream.DB(); err == nil {
					_ = sqlDB.Close()
				}
			}()

			source := ingest.NewSQLSource(upstream, cfg.Upstream.Query, cfg.Upstream.EntityColumn)
			pipeline := ingest.NewPipeline(source, dataStore, reg, clock, cfg.Features)
			_, err = pipeline.Run(ctx)
			return err
		}
	}

	handler := rest.NewHandler(service, clock, refresh)

	serverConfig := server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	srv := server.New(serverConfig, handler, middleware.AuthConfig{APIKeys: cfg.Auth.APIKeys})

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}
