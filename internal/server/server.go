package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/me/coloop/internal/config"
	"github.com/me/coloop/internal/journal"
	"github.com/me/coloop/internal/scheduler"
	"github.com/me/coloop/internal/tasklib"
)

// SchedulerView is the read-only part of a scheduler the admin API reports
// on. Every method must be safe to call from the HTTP goroutines.
type SchedulerView interface {
	RunID() string
	Stats() scheduler.Stats
	HasWork() bool
	HasContinuations() bool
	HasThreads() bool
	Pending() int64
	Stopped() bool
}

// OffloadView reports backpressure on the goroutines that run offloaded jobs.
type OffloadView interface {
	OffloadStats() tasklib.OffloadStats
}

// Server is the coloop admin API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	journal   journal.Journal // optional; run history endpoints report DISABLED without it
	scheduler SchedulerView   // optional; the live scheduler of this process
	offload   OffloadView     // optional; reported alongside the scheduler
	http      *http.Server
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithJournal sets the journal behind the /runs endpoints.
func WithJournal(j journal.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithScheduler sets the scheduler reported by /scheduler.
func WithScheduler(sv SchedulerView) Option {
	return func(s *Server) {
		s.scheduler = sv
	}
}

// WithOffload adds offload backpressure to the /scheduler report.
func WithOffload(ov OffloadView) Option {
	return func(s *Server) {
		s.offload = ov
	}
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address in a background goroutine.
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		s.logger.Info("admin server listening", "addr", s.config.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server stopped", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)
		r.Get("/scheduler", s.handleScheduler)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/steps", s.handleListSteps)
			})
		})
	})
}
