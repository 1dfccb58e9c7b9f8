package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/igorgomez/medidascorporais/internal/config"
	"github.com/igorgomez/medidascorporais/internal/consumer"
	"github.com/igorgomez/medidascorporais/internal/observability"
	"github.com/igorgomez/medidascorporais/internal/persistence/postgres"
	httptransport "github.com/igorgomez/medidascorporais/internal/transport/http"
)

const defaultMetricsAddress = ":9101"

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = zap.NewExample()
		logger.Warn("falling back to default logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	if cfg.PostgresURL == "" {
		logger.Fatal("POSTGRES_URL is required for the event log consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	handler := consumer.NewEventLogHandler(pool)

	metricsAddress := cfg.MetricsAddress
	if metricsAddress == "" {
		metricsAddress = defaultMetricsAddress
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Run(ctx, httptransport.DefaultServerConfig(metricsAddress), promhttp.Handler(), logger.Named("metrics"))
	})

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})
		topicLogger := logger.With(zap.String("topic", topic), zap.String("group", cfg.ConsumerGroupID))
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger))

		g.Go(func() error {
			defer reader.Close()
			topicLogger.Info("consumer started")
			err := proc.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("consumer stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("consumer shut down")
}
