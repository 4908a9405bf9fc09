package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/PKL-SST-2025/be-tabungin/internal/config"
	"github.com/PKL-SST-2025/be-tabungin/internal/logging"
	"github.com/PKL-SST-2025/be-tabungin/internal/outbox"
	httptransport "github.com/PKL-SST-2025/be-tabungin/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("dlq manager stopped with error")
		os.Exit(1)
	}
	logger.Info("dlq manager stopped")
}

func run(cfg config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	log := logger.WithField("component", "dlq")
	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, log)

	cronLog := cronLogger{log}
	scheduler := cron.New(cron.WithLogger(cronLog), cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	if _, err := scheduler.AddFunc(cfg.DLQSchedule, func() {
		processed, err := manager.RunOnce(ctx, cfg.DLQBatchSize)
		if err != nil {
			log.WithError(err).Warn("dlq sweep finished with errors")
		}
		if processed > 0 {
			log.WithField("processed", processed).Info("dlq sweep processed entries")
		}
	}); err != nil {
		return fmt.Errorf("schedule dlq sweep %q: %w", cfg.DLQSchedule, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddress != "" {
		metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress)
		g.Go(func() error {
			return httptransport.Serve(gctx, metricsSrv, cfg.ShutdownTimeout, logger.WithField("component", "metrics"))
		})
	}
	g.Go(func() error {
		scheduler.Start()
		log.WithFields(logrus.Fields{
			"schedule":    cfg.DLQSchedule,
			"max_retries": cfg.DLQMaxRetries,
		}).Info("dlq manager started")
		<-gctx.Done()
		<-scheduler.Stop().Done()
		return nil
	})

	return g.Wait()
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct {
	entry logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
