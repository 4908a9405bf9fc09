package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PKL-SST-2025/be-tabungin/internal/api"
	"github.com/PKL-SST-2025/be-tabungin/internal/auth"
	"github.com/PKL-SST-2025/be-tabungin/internal/config"
	"github.com/PKL-SST-2025/be-tabungin/internal/domain"
	"github.com/PKL-SST-2025/be-tabungin/internal/logging"
	"github.com/PKL-SST-2025/be-tabungin/internal/observability"
	"github.com/PKL-SST-2025/be-tabungin/internal/outbox"
	"github.com/PKL-SST-2025/be-tabungin/internal/persistence/memory"
	"github.com/PKL-SST-2025/be-tabungin/internal/persistence/postgres"
	httptransport "github.com/PKL-SST-2025/be-tabungin/internal/transport/http"
)

// ledgerStore is satisfied by both storage backends.
type ledgerStore interface {
	domain.TargetStore
	domain.ActivityStore
	domain.StatisticsStore
	domain.UserDirectory
}

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("savings service stopped with error")
		os.Exit(1)
	}
	logger.Info("savings service stopped")
}

func run(cfg config.Config, logger *logrus.Logger) error {
	observability.ErrorClassifier = observability.Classify(map[error]string{
		domain.ErrInvalidAmount:  "invalid_amount",
		domain.ErrTargetNotFound: "not_found",
		domain.ErrAccessDenied:   "access_denied",
		domain.ErrStorage:        "storage",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	var store ledgerStore
	switch cfg.DataBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory storage; data is lost on restart")
		store = memory.NewStore()
	default:
		if cfg.MigrateOnStart {
			if err := postgres.RunMigrations(cfg.PostgresURL); err != nil {
				return err
			}
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		store = postgres.NewRepository(pool)

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithProducerLogger(logger.WithField("component", "kafka")))
		defer producer.Close()
		dispatcher := outbox.NewDispatcher(pool, producer, outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL),
			cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithDispatcherLogger(logger.WithField("component", "outbox")),
			outbox.WithClaimLease(cfg.OutboxClaimLease))
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
	}

	clock := domain.SystemClock{}
	recorder := domain.NewActivityRecorder(store, clock)
	stats := domain.NewStatisticsEngine(store, store, store, clock, domain.WithLocation(cfg.StreakLocation()))
	service := domain.NewSavingsService(store, recorder, stats,
		domain.WithClock(clock),
		domain.WithLogger(logger.WithField("component", "ledger")))

	handler := api.NewHandler(service,
		api.WithUserDirectory(store),
		api.WithClock(clock),
		api.WithLogger(logger.WithField("component", "api")))

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	if cfg.MetricsAddress == "" {
		router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	} else {
		metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
		g.Go(func() error {
			return httptransport.Serve(gctx, metricsSrv, cfg.ShutdownTimeout, logger.WithField("component", "metrics"))
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	root := httptransport.CORS(cfg.CORSAllowedOrigins)(logging.Middleware(logger)(authMiddleware.Wrap(router)))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}, root)
	g.Go(func() error {
		return httptransport.Serve(gctx, server, cfg.ShutdownTimeout, logger.WithField("component", "http"))
	})

	logger.WithFields(logrus.Fields{
		"address": cfg.HTTPAddress,
		"backend": cfg.DataBackend,
		"zone":    cfg.StreakLocation().String(),
	}).Info("savings service started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
