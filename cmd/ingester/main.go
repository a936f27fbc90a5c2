package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"github.com/meridianml/feature-store/internal/adapter"
	"github.com/meridianml/feature-store/internal/config"
	"github.com/meridianml/feature-store/internal/domain"
	"github.com/meridianml/feature-store/internal/ingest"
	"github.com/meridianml/feature-store/internal/logger"
	"github.com/meridianml/feature-store/internal/registry"
	"github.com/meridianml/feature-store/internal/report"
	"github.com/meridianml/feature-store/internal/stats"
	"github.com/meridianml/feature-store/internal/store"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	envPath     = flag.String("env", "config/", "Path to environment files")
	skipReports = flag.Bool("skip-reports", false, "Skip report generation after the run")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadIngesterConfig(*configFile, *envPath)
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
			"service": "ingester",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting feature ingestion run")

	// Cancel the run on interrupt so a partial pass stops cleanly
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Connect to the feature store database with retry; transient connection
	// failures at startup should not fail the whole run
	db, err := openWithRetry(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err), zap.String("driver", cfg.Database.Driver))
	}
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	if err := store.Migrate(db); err != nil {
		logger.FatalCtx(ctx, "Failed to migrate database", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database", zap.String("driver", cfg.Database.Driver))

	dataStore := store.NewGormStore(db)
	clock := adapter.NewClock()
	reg := registry.New(dataStore, clock)

	// Register every configured group and feature before writing any values
	count, err := reg.RegisterFromConfig(ctx, cfg.Features)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to register configured features", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Registered configured features", zap.Int("count", count))

	// Connect to the upstream warehouse
	upstream, err := openWithRetry(ctx, cfg.Upstream.Driver, cfg.Upstream.DSN())
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("component", "upstream"))
		os.Exit(1)
	}
	defer func() {
		if sqlDB, err := upstream.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	// Run the ingestion pipeline
	source := ingest.NewSQLSource(upstream, cfg.Upstream.Query, cfg.Upstream.EntityColumn)
	pipeline := ingest.NewPipeline(source, dataStore, reg, clock, cfg.Features)

	result, err := pipeline.Run(ctx)
	if err != nil {
		// An unavailable upstream aborts before any write; surface it as a
		// run failure
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			logger.ErrorCtx(ctx, err, zap.String("component", "upstream"))
		} else {
			logger.ErrorCtx(ctx, err, zap.String("component", "pipeline"))
		}
		os.Exit(1)
	}

	// Recompute feature statistics over the fresh values
	engine := stats.NewEngine(dataStore, reg, clock, cfg.Stats.WorkerPoolSize)
	summary, err := engine.Run(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, err, zap.String("component", "stats"))
		os.Exit(1)
	}

	// Generate documentation and summary reports
	if !*skipReports {
		generator := report.NewGenerator(dataStore, reg, clock, cfg.Reports.Dir)
		if _, err := generator.WriteDocumentation(ctx); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("component", "reports"))
		}
		if _, err := generator.WriteSummary(ctx); err != nil {
			logger.ErrorCtx(ctx, err, zap.String("component", "reports"))
		}
	}

	logger.InfoCtx(ctx, "Ingestion run complete",
		zap.Int("rows_processed", result.RowsProcessed),
		zap.Int("facts_written", result.FactsWritten),
		zap.Int("failures", result.Failures),
		zap.Int("features_scanned", summary.FeaturesScanned),
		zap.Int("snapshots_written", summary.SnapshotsWritten),
		zap.Int("corrupt_values", summary.CorruptValues),
	)
}

// openWithRetry opens a database with exponential backoff. Gives up after two
// minutes or when ctx is canceled.
func openWithRetry(ctx context.Context, driver, dsn string) (*gorm.DB, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	b.RandomizationFactor = 0.5 // Add jitter

	var db *gorm.DB
	operation := func() error {
		var err error
		db, err = store.Open(driver, dsn)
		if err != nil {
			logger.WarnCtx(ctx, "Database connection failed, retrying",
				zap.String("driver", driver),
				zap.Error(err))
			return err
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}
