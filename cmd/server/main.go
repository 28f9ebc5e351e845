package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"recurra/internal/cli"
	"recurra/internal/config"
	apphttp "recurra/internal/http"
	applog "recurra/internal/log"
	"recurra/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, applog.ComponentApp, os.Stdout)

	if err := cfg.Validate(); err != nil {
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
	pending := services.NewPendingQuery(repo, processor.Today)

	srv := apphttp.NewServer(":"+cfg.Port, processor, pending, apphttp.Options{
		AllowedOrigins:      cfg.CORSAllowedOrigins,
		UpcomingDefaultDays: cfg.UpcomingDefaultDays,
		RunsPerMinute:       cfg.RunsPerMinute,
		Logger:              logger.WithComponent(applog.ComponentHTTP),
		Store:               repo.DB(),
	})

	// Configure server timeouts and limits. Runs can take a while on a
	// large backlog, so the write timeout is generous.
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 2 * time.Minute
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		cancel()
	}()

	logger.Info("Starting recurra server", "port", cfg.Port, "sqlite_db", cfg.SQLiteDBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
