package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/igorgomez/medidascorporais/internal/config"
	"github.com/igorgomez/medidascorporais/internal/observability"
	"github.com/igorgomez/medidascorporais/internal/outbox"
	"github.com/igorgomez/medidascorporais/internal/persistence/postgres"
	httptransport "github.com/igorgomez/medidascorporais/internal/transport/http"
)

const defaultMetricsAddress = ":9102"

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = zap.NewExample()
		logger.Warn("falling back to default logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if cfg.PostgresURL == "" {
		logger.Fatal("POSTGRES_URL is required for the dlq manager")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.Named("dlq"))
	accounts := postgres.NewAccountRepository(pool)

	metricsAddress := cfg.MetricsAddress
	if metricsAddress == "" {
		metricsAddress = defaultMetricsAddress
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Run(ctx, httptransport.DefaultServerConfig(metricsAddress), promhttp.Handler(), logger.Named("metrics"))
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.DLQPollInterval)
		defer ticker.Stop()

		logger.Info("dlq manager started",
			zap.Duration("interval", cfg.DLQPollInterval),
			zap.Int("max_retries", cfg.DLQMaxRetries))

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}

			requeued, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
			if err != nil {
				logger.Error("dlq pass failed", zap.Error(err))
			} else if requeued > 0 {
				logger.Info("dlq entries requeued", zap.Int("count", requeued))
			}

			purged, err := accounts.PurgeExpiredRevocations(ctx)
			if err != nil {
				logger.Warn("purge revoked tokens", zap.Error(err))
			} else if purged > 0 {
				logger.Debug("revoked tokens purged", zap.Int64("count", purged))
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("dlq manager stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("dlq manager shut down")
}
