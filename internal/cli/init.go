// Package cli provides common CLI initialization utilities shared by
// cmd/server and cmd/recurring-worker.
package cli

import (
	"io"
	"os"

	"github.com/joho/godotenv"

	"recurra/internal/amqp"
	"recurra/internal/config"
	applog "recurra/internal/log"
	"recurra/internal/services"
	"recurra/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and makes it the
// slog default.
func SetupLogger(cfg *config.Config, component string, out io.Writer) *applog.Logger {
	if out == nil {
		out = os.Stdout
	}
	logger := applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: component,
		Output:    out,
	})
	applog.SetDefault(logger)
	return logger
}

// OpenRepository opens the SQLite store, applying migrations unless they
// are disabled for a database owned by another application.
func OpenRepository(logger *applog.Logger, cfg *config.Config) (*storage.SQLiteRepository, error) {
	repo, err := storage.NewSQLiteRepositoryWithOptions(cfg.SQLiteDBPath, storage.Options{
		SkipMigrations: !cfg.SQLiteRunMigrations,
	})
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", applog.FieldError, err, "path", cfg.SQLiteDBPath)
		return nil, err
	}
	logger.Info("SQLite repository ready",
		"path", cfg.SQLiteDBPath,
		"migrations", cfg.SQLiteRunMigrations)
	return repo, nil
}

// NewPublisher connects the ledger event publisher. It returns a nil
// publisher when AMQP is disabled or unreachable, so processing still runs.
// The returned close function is always safe to call.
func NewPublisher(logger *applog.Logger, cfg *config.Config) (services.LedgerPublisher, func()) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP disabled, ledger events will not be published")
		return nil, func() {}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without ledger events", applog.FieldError, err)
		return nil, func() {}
	}

	logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", applog.FieldError, err)
		}
	}
}

// ProcessorConfig maps the environment onto the processor settings.
func ProcessorConfig(cfg *config.Config) services.ProcessorConfig {
	return services.ProcessorConfig{
		MaxPerRun:           cfg.MaxPerRun,
		RolloverMaxAttempts: cfg.RolloverMaxAttempts,
	}
}
