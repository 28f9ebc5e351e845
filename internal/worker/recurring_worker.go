package worker

import (
	"context"
	"time"

	"recurra/internal/core"
	applog "recurra/internal/log"
)

// Runner is the processing entry point the worker drives.
type Runner interface {
	RunProcessing(ctx context.Context, userID string) core.RunResult
}

// RecurringWorker runs the recurring processor for a fixed set of users, once
// at start and then on every interval.
type RecurringWorker struct {
	runner   Runner
	userIDs  []string
	interval time.Duration
	logger   *applog.Logger
}

func NewRecurringWorker(runner Runner, userIDs []string, interval time.Duration) *RecurringWorker {
	return &RecurringWorker{
		runner:   runner,
		userIDs:  userIDs,
		interval: interval,
		logger:   applog.Default(applog.ComponentWorker),
	}
}

// Start blocks until ctx is done. A run that is already underway when ctx is
// cancelled finishes its current user before Start returns.
func (w *RecurringWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.InfoContext(ctx, "Recurring worker started",
		"interval", w.interval,
		"users", len(w.userIDs))

	w.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Recurring worker stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce processes every configured user in order and returns their results.
// Users not reached before ctx was cancelled are left out.
func (w *RecurringWorker) RunOnce(ctx context.Context) map[string]core.RunResult {
	results := make(map[string]core.RunResult, len(w.userIDs))
	for _, userID := range w.userIDs {
		if ctx.Err() != nil {
			break
		}
		// Items commit one by one, so a run is not cut short on shutdown.
		result := w.runner.RunProcessing(context.WithoutCancel(ctx), userID)
		results[userID] = result

		fields := []any{
			applog.FieldUserID, userID,
			"processed", result.ProcessedCount,
			"errors", len(result.Errors),
			"cap_reached", result.CapReached(),
		}
		if len(result.Errors) > 0 {
			w.logger.WarnContext(ctx, "Processing run finished with errors", append(fields, "first_error", result.Errors[0])...)
			continue
		}
		w.logger.InfoContext(ctx, "Processing run finished", fields...)
	}
	return results
}
