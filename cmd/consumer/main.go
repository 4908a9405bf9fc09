package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PKL-SST-2025/be-tabungin/internal/config"
	"github.com/PKL-SST-2025/be-tabungin/internal/consumer"
	"github.com/PKL-SST-2025/be-tabungin/internal/logging"
	httptransport "github.com/PKL-SST-2025/be-tabungin/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("consumer stopped with error")
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}

func run(cfg config.Config, logger *logrus.Logger) error {
	if len(cfg.ConsumerTopics) == 0 {
		return errors.New("CONSUMER_TOPICS must list at least one topic")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	handler := consumer.NewPersistenceHandler(pool)
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddress != "" {
		metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
		g.Go(func() error {
			return httptransport.Serve(gctx, metricsSrv, cfg.ShutdownTimeout, logger.WithField("component", "metrics"))
		})
	}

	for _, topic := range cfg.ConsumerTopics {
		topic := topic
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.ConsumerGroupID,
			Topic:          topic,
			MinBytes:       1e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
			StartOffset:    kafka.FirstOffset,
		})
		topicLogger := logger.WithFields(logrus.Fields{"topic": topic, "group": cfg.ConsumerGroupID})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(topicLogger), consumer.WithHandlerAttempts(3, time.Second))

		g.Go(func() error {
			defer reader.Close()
			topicLogger.Info("consumer started")
			if err := proc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume %s: %w", topic, err)
			}
			return nil
		})
	}

	return g.Wait()
}
