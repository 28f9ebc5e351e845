package http

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"recurra/internal/core"
	applog "recurra/internal/log"
)

// Runner triggers a processing run for one tenant.
type Runner interface {
	RunProcessing(ctx context.Context, userID string) core.RunResult
}

// UpcomingLister lists obligations coming due for one tenant.
type UpcomingLister interface {
	ListUpcoming(ctx context.Context, userID string, days int) ([]core.PendingItem, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options tunes the server. Zero values fall back to defaults.
type Options struct {
	AllowedOrigins      []string
	UpcomingDefaultDays int
	// RunsPerMinute limits POST /runs per tenant.
	RunsPerMinute int
	Logger        *applog.Logger
	Store         Pinger
}

type Server struct {
	http.Server
	runner      Runner
	upcoming    UpcomingLister
	store       Pinger
	logger      *applog.Logger
	defaultDays int
	rateLimiter *rateLimiter
	metrics     securityMetrics
	startedAt   time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, runner Runner, upcoming UpcomingLister, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = applog.Default(applog.ComponentHTTP)
	}
	if opts.UpcomingDefaultDays <= 0 {
		opts.UpcomingDefaultDays = 7
	}
	if opts.RunsPerMinute <= 0 {
		opts.RunsPerMinute = 10
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		runner:      runner,
		upcoming:    upcoming,
		store:       opts.Store,
		logger:      opts.Logger,
		defaultDays: opts.UpcomingDefaultDays,
		rateLimiter: newRateLimiter(opts.RunsPerMinute, time.Minute),
		startedAt:   time.Now(),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(applog.Middleware(s.logger))
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderUserID},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireUser)
		r.With(s.limitRuns).Post("/runs", s.handleRun)
		r.Get("/upcoming", s.handleUpcoming)
	})

	return r
}

type userIDKey struct{}

// requireUser rejects requests without a tenant header and stores the tenant
// in the request context.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := ParseUserID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "missing or invalid "+HeaderUserID+" header", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey{}, userID)))
	})
}

func userIDFrom(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

// limitRuns throttles run triggers per tenant and client address.
func (s *Server) limitRuns(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := userIDFrom(r.Context()) + "|" + extractClientIP(r)
		if !s.rateLimiter.allow(key, &s.metrics) {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldUserID, userIDFrom(r.Context()),
				"client_ip", extractClientIP(r))
			w.Header().Set("Retry-After", strconv.Itoa(int(s.rateLimiter.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded, try again later", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
