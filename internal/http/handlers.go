package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"recurra/internal/core"
	applog "recurra/internal/log"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// UpcomingResponse wraps the pending obligations list.
type UpcomingResponse struct {
	Days  int                `json:"days"`
	Items []core.PendingItem `json:"items"`
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"timestamp":     time.Now().Format(time.RFC3339),
		"uptime":        time.Since(s.startedAt).Round(time.Second).String(),
		"rateLimitHits": atomic.LoadInt64(&s.metrics.rateLimitHits),
	})
}

// handleReady reports whether the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{}
	switch {
	case s.store == nil:
		checks["database"] = "not_configured"
	default:
		if err := s.store.PingContext(ctx); err != nil {
			checks["database"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleRun processes everything due for the tenant now.
// POST /api/v1/runs
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	result := s.runner.RunProcessing(ctx, userID)

	applog.FromContext(ctx).InfoContext(ctx, "Processing run triggered over HTTP",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpRun,
		"processed", result.ProcessedCount,
		"errors", len(result.Errors))

	// Per-item failures are data; the run itself succeeded.
	writeJSON(w, http.StatusOK, result)
}

// handleUpcoming lists annual charges due in the next days.
// GET /api/v1/upcoming?days=N
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userIDFrom(ctx)

	days, err := ParseDays(r, s.defaultDays)
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be a non-negative integer", err)
		return
	}

	items, err := s.upcoming.ListUpcoming(ctx, userID, days)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrInvalidDays) || errors.Is(err, core.ErrMissingUser) {
			status = http.StatusBadRequest
		}
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to list upcoming obligations",
			applog.NewFields().WithOperation(applog.OpUpcoming).WithError(err).ToSlice()...)
		writeError(w, status, "failed to list upcoming obligations", err)
		return
	}
	if items == nil {
		items = []core.PendingItem{}
	}

	writeJSON(w, http.StatusOK, UpcomingResponse{Days: days, Items: items})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
