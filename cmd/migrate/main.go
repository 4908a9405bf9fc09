// Command migrate applies or reverts the embedded Postgres schema migrations.
package main

import (
	"flag"
	"os"

	"github.com/PKL-SST-2025/be-tabungin/internal/config"
	"github.com/PKL-SST-2025/be-tabungin/internal/logging"
	"github.com/PKL-SST-2025/be-tabungin/internal/persistence/postgres"
)

func main() {
	down := flag.Bool("down", false, "revert every applied migration instead of applying pending ones")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	run, direction := postgres.RunMigrations, "up"
	if *down {
		run, direction = postgres.RollbackMigrations, "down"
	}
	if err := run(cfg.PostgresURL); err != nil {
		logger.WithError(err).WithField("direction", direction).Error("migration failed")
		os.Exit(1)
	}
	logger.WithField("direction", direction).Info("migrations complete")
}
