// Package api provides the HTTP API server for tagbox.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wesm/tagbox/internal/config"
	"github.com/wesm/tagbox/internal/mailbox"
	"github.com/wesm/tagbox/internal/metrics"
	"github.com/wesm/tagbox/internal/relindex"
	"github.com/wesm/tagbox/internal/scheduler"
	"github.com/wesm/tagbox/internal/search"
	"github.com/wesm/tagbox/internal/session"
	"github.com/wesm/tagbox/internal/store"
)

// Mailbox is the read side the API serves. *session.Session implements it.
type Mailbox interface {
	Query(q *search.Query) []mailbox.Message
	Message(id string) (mailbox.Message, bool)
	Tags() []session.TagCount
	LabelNames() map[string]string
	IndexStats() relindex.Stats
	Refresh(ctx context.Context) error
	Rebuild(ctx context.Context) error
}

// Store defines the store operations the API needs. *store.Store implements it.
type Store interface {
	GetMessage(ctx context.Context, id string) (*mailbox.Message, error)
	TagMessage(ctx context.Context, messageID, label string) (*mailbox.Relation, error)
	RemoveRelation(ctx context.Context, id string) error
	ListFilters(ctx context.Context) ([]store.SavedFilter, error)
	SaveFilter(ctx context.Context, name, text string) error
	GetStats(ctx context.Context) (*store.Stats, error)
}

// Scheduler defines the scheduler operations the API needs.
type Scheduler interface {
	Status() []scheduler.JobStatus
	Trigger(name string) error
	IsRunning() bool
}

// RebuildJob is the scheduler job name that rebuilds the relation index.
const RebuildJob = "rebuild"

// Deps are the collaborators a Server works with. Mailbox and Store are
// required; Scheduler and Metrics are optional.
type Deps struct {
	Mailbox   Mailbox
	Store     Store
	Scheduler Scheduler
	Metrics   *metrics.Collector
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	deps        Deps
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
}

const defaultRateLimit = 10 // requests per second per client

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	if s.deps.Metrics != nil {
		r.Use(MetricsMiddleware(s.deps.Metrics))
	}

	// CORS is disabled when no origins are configured.
	corsConfig := DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.cfg.Server.CORSOrigins
	r.Use(CORSMiddleware(corsConfig))

	rps := s.cfg.Server.RateLimit
	if rps <= 0 {
		rps = defaultRateLimit
	}
	s.rateLimiter = NewRateLimiter(rps, max(1, int(2*rps)))
	r.Use(RateLimitMiddleware(s.rateLimiter))

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.handleStats)

		r.Get("/messages", s.handleListMessages)
		r.Get("/messages/{id}", s.handleGetMessage)
		r.Post("/messages/{id}/tags", s.handleTagMessage)
		r.Delete("/relations/{id}", s.handleRemoveRelation)

		r.Get("/tags", s.handleListTags)

		r.Get("/filters", s.handleListFilters)
		r.Post("/filters", s.handleSaveFilter)

		r.Get("/index/stats", s.handleIndexStats)
		r.Post("/index/rebuild", s.handleRebuild)

		r.Get("/scheduler/status", s.handleSchedulerStatus)
	})

	return r
}

// Start begins listening for HTTP requests. It returns
// http.ErrServerClosed after Shutdown, and an error without listening if
// the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}
	addr := s.cfg.ListenAddr()
	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key from the Authorization (optionally
// "Bearer ") or X-API-Key header.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		key = strings.TrimPrefix(key, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
