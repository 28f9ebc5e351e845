package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurra/internal/core"
	"recurra/internal/services"
	"recurra/internal/storage"
)

type fakeRunner struct {
	mu    sync.Mutex
	users []string
}

func (f *fakeRunner) RunProcessing(_ context.Context, userID string) core.RunResult {
	f.mu.Lock()
	f.users = append(f.users, userID)
	f.mu.Unlock()
	result := core.NewRunResult(core.NewDate(2024, 1, 15))
	result.ProcessedCount = 2
	result.Errors = []string{`annual_charge "Gym": amount: invalid amount`}
	return result
}

type fakeLister struct {
	gotUser string
	gotDays int
	items   []core.PendingItem
	err     error
}

func (f *fakeLister) ListUpcoming(_ context.Context, userID string, days int) ([]core.PendingItem, error) {
	f.gotUser, f.gotDays = userID, days
	return f.items, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func newTestServer(t *testing.T, runner Runner, lister UpcomingLister, opts Options) *Server {
	t.Helper()
	srv := NewServer(":0", runner, lister, opts)
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv
}

func do(srv *Server, method, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, &fakeLister{}, Options{Store: fakePinger{}})

	rr := do(srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))

	rr = do(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	down := newTestServer(t, &fakeRunner{}, &fakeLister{}, Options{Store: fakePinger{err: errors.New("sql: database is closed")}})
	rr = do(down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "database is closed")
}

func TestAPIRequiresUser(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, runner, &fakeLister{}, Options{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/runs"},
		{http.MethodGet, "/api/v1/upcoming"},
	} {
		rr := do(srv, tc.method, tc.path, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, tc.path)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Contains(t, body.Error, HeaderUserID)
	}
	assert.Empty(t, runner.users)
}

func TestHandleRun(t *testing.T) {
	runner := &fakeRunner{}
	srv := newTestServer(t, runner, &fakeLister{}, Options{})

	rr := do(srv, http.MethodPost, "/api/v1/runs", "alice")
	require.Equal(t, http.StatusOK, rr.Code)

	var result core.RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 2, result.ProcessedCount)
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, "2024-01-15", result.Today.String())
	assert.Equal(t, []string{"alice"}, runner.users)

	rr = do(srv, http.MethodGet, "/api/v1/runs", "alice")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleRun_RateLimited(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, &fakeLister{}, Options{RunsPerMinute: 2})

	assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, "/api/v1/runs", "alice").Code)
	assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, "/api/v1/runs", "alice").Code)

	rr := do(srv, http.MethodPost, "/api/v1/runs", "alice")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// other tenants have their own window
	assert.Equal(t, http.StatusOK, do(srv, http.MethodPost, "/api/v1/runs", "bob").Code)
}

func TestHandleUpcoming(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		listerErr  error
		wantStatus int
		wantDays   int
	}{
		{name: "default days", query: "", wantStatus: http.StatusOK, wantDays: 7},
		{name: "explicit days", query: "?days=30", wantStatus: http.StatusOK, wantDays: 30},
		{name: "zero days", query: "?days=0", wantStatus: http.StatusOK, wantDays: 0},
		{name: "negative days", query: "?days=-1", wantStatus: http.StatusBadRequest},
		{name: "non numeric days", query: "?days=soon", wantStatus: http.StatusBadRequest},
		{name: "store failure", query: "", listerErr: errors.New("disk I/O error"), wantStatus: http.StatusInternalServerError, wantDays: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lister := &fakeLister{
				err: tt.listerErr,
				items: []core.PendingItem{{
					ID:      "c1",
					Kind:    core.AnnualCharge,
					Name:    "Car insurance",
					Amount:  decimal.RequireFromString("1200"),
					DueDate: core.NewDate(2024, 1, 20),
				}},
			}
			srv := newTestServer(t, &fakeRunner{}, lister, Options{})

			rr := do(srv, http.MethodGet, "/api/v1/upcoming"+tt.query, "alice")
			require.Equal(t, tt.wantStatus, rr.Code, rr.Body.String())
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp UpcomingResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantDays, resp.Days)
			assert.Equal(t, tt.wantDays, lister.gotDays)
			assert.Equal(t, "alice", lister.gotUser)
			require.Len(t, resp.Items, 1)
			assert.Equal(t, "c1", resp.Items[0].ID)
			assert.True(t, resp.Items[0].Amount.Equal(decimal.RequireFromString("1200")))
		})
	}
}

func TestHandleUpcoming_EmptyListEncodesAsArray(t *testing.T) {
	srv := newTestServer(t, &fakeRunner{}, &fakeLister{}, Options{})

	rr := do(srv, http.MethodGet, "/api/v1/upcoming", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"days":7,"items":[]}`, rr.Body.String())
}

func TestServer_EndToEnd(t *testing.T) {
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "http.db"))
	require.NoError(t, err)
	defer repo.Close()

	today := core.DateOf(time.Now())
	_, err = repo.DB().Exec(
		`INSERT INTO annual_charges (id, user_id, name, amount, due_date, is_active) VALUES
		 ('due', 'alice', 'Due today', '99.90', ?, 1),
		 ('soon', 'alice', 'Soon', '10', ?, 1)`,
		today.String(), today.AddDays(3).String())
	require.NoError(t, err)

	processor := services.NewRecurringProcessor(repo, nil, services.DefaultProcessorConfig())
	pending := services.NewPendingQuery(repo, processor.Today)
	srv := newTestServer(t, processor, pending, Options{Store: repo.DB()})

	rr := do(srv, http.MethodGet, "/api/v1/upcoming", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	var before UpcomingResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &before))
	require.Len(t, before.Items, 2)
	assert.Equal(t, "due", before.Items[0].ID)

	rr = do(srv, http.MethodPost, "/api/v1/runs", "alice")
	require.Equal(t, http.StatusOK, rr.Code)
	var result core.RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, 1, result.ProcessedCount)
	assert.Empty(t, result.Errors)

	rr = do(srv, http.MethodGet, "/api/v1/upcoming", "alice")
	var after UpcomingResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &after))
	require.Len(t, after.Items, 1)
	assert.Equal(t, "soon", after.Items[0].ID)
}
