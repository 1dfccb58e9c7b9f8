package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/igorgomez/medidascorporais/internal/api"
	"github.com/igorgomez/medidascorporais/internal/auth"
	"github.com/igorgomez/medidascorporais/internal/cache"
	"github.com/igorgomez/medidascorporais/internal/config"
	"github.com/igorgomez/medidascorporais/internal/domain"
	"github.com/igorgomez/medidascorporais/internal/identity"
	"github.com/igorgomez/medidascorporais/internal/observability"
	"github.com/igorgomez/medidascorporais/internal/outbox"
	"github.com/igorgomez/medidascorporais/internal/persistence/memory"
	"github.com/igorgomez/medidascorporais/internal/persistence/postgres"
	httptransport "github.com/igorgomez/medidascorporais/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		logger = zap.NewExample()
		logger.Warn("falling back to default logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("measurement api stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)

	if err := cfg.Provider.Validate(); err != nil {
		logger.Error("provider configuration invalid, serving setup guide", zap.Error(err))
		return httptransport.Run(ctx, serverCfg, api.SetupGuide(err), logger)
	}

	var (
		store    domain.Store
		accounts identity.AccountStore
		pool     *pgxpool.Pool
	)
	if cfg.PostgresURL == "" {
		logger.Warn("POSTGRES_URL not set, using in-memory stores")
		store = memory.NewStore()
		accounts = identity.NewInMemoryStore()
	} else {
		var err error
		pool, err = postgres.Connect(ctx, cfg.PostgresURL, 30*time.Second)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
		store = postgres.NewRepository(pool)
		accounts = postgres.NewAccountRepository(pool)
	}

	authCfg := auth.Config{Secret: cfg.Provider.APIKey, Issuer: cfg.JWTIssuer}
	provider := identity.NewProvider(accounts, authCfg, cfg.TokenTTL, identity.WithLogger(logger.Named("identity")))

	opts := []domain.Option{
		domain.WithListCache(cache.NewListCache[[]domain.Measurement](cfg.CacheTTL)),
		domain.WithLogger(logger.Named("domain")),
	}
	if cfg.CacheInvalidationURL != "" {
		opts = append(opts, domain.WithInvalidator(cache.Chain{
			cache.NewHTTPInvalidator(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, 2*time.Second),
		}))
	}
	service := domain.NewService(store, opts...)

	g, ctx := errgroup.WithContext(ctx)

	var dispatcher *outbox.Dispatcher
	if cfg.OutboxEnabled && pool != nil {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher = outbox.NewDispatcher(outbox.NewPGQueue(pool), producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger.Named("outbox"))
		g.Go(func() error {
			dispatcher.Start(ctx)
			return nil
		})
	} else if cfg.OutboxEnabled {
		logger.Warn("outbox requires postgres, dispatcher disabled")
	}

	handler := api.NewHandler(service, provider, api.WithLogger(logger.Named("api")))
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	handler.RegisterRoutes(router)

	authMiddleware := auth.NewMiddleware(authCfg, auth.PublicPaths, provider)
	root := observability.RequestLogger(logger.Named("http"))(
		httptransport.CORS(cfg.CORSOrigin)(authMiddleware.Wrap(router)),
	)

	g.Go(func() error {
		return httptransport.Run(ctx, serverCfg, root, logger)
	})

	if cfg.MetricsAddress != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		g.Go(func() error {
			return httptransport.Run(ctx, httptransport.DefaultServerConfig(cfg.MetricsAddress), metricsMux, logger)
		})
	}

	err := g.Wait()
	if dispatcher != nil {
		dispatcher.Wait()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
