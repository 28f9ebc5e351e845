package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"recurra/internal/cli"
	"recurra/internal/config"
	applog "recurra/internal/log"
	"recurra/internal/services"
	"recurra/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker, os.Stdout)

	logger.Info("Starting recurring-worker")

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	repo, err := cli.OpenRepository(logger, cfg)
	if err != nil {
		os.Exit(1)
	}
	defer repo.Close()

	publisher, closePublisher := cli.NewPublisher(logger, cfg)
	defer closePublisher()

	processor := services.NewRecurringProcessor(repo, publisher, cli.ProcessorConfig(cfg))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Recurring processor configured",
		"interval", cfg.ProcessorInterval,
		"users", len(cfg.UserIDs),
		"max_per_run", cfg.MaxPerRun,
		"sqlite_db", cfg.SQLiteDBPath)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.NewRecurringWorker(processor, cfg.UserIDs, cfg.ProcessorInterval).Start(ctx)
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, waiting for the current run to finish")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Recurring-worker shutdown complete")
	case <-time.After(30 * time.Second):
		logger.Warn("Shutdown timeout reached")
	}
}
