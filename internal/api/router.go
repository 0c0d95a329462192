package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"agentorders/internal/core"
	"agentorders/internal/store"
)

// Options holds the dependencies of the operator API.
type Options struct {
	Addr      string
	AuthToken string
	Store     *store.Store
	Scheduler *core.Scheduler
	Selector  *core.Selector
	Throttle  *core.ThrottleTracker
	// Metrics and MCP are optional handlers mounted at /metrics and /mcp.
	Metrics http.Handler
	MCP     http.Handler
	Logger  *slog.Logger
	Now     func() time.Time
}

// Server holds the HTTP server state.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	store      *store.Store
	scheduler  *core.Scheduler
	selector   *core.Selector
	throttle   *core.ThrottleTracker
	metrics    http.Handler
	mcp        http.Handler
	logger     *slog.Logger
	now        func() time.Time
	authToken  string
}

// NewServer constructs the HTTP API server.
func NewServer(opts Options) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		router:    router,
		store:     opts.Store,
		scheduler: opts.Scheduler,
		selector:  opts.Selector,
		throttle:  opts.Throttle,
		metrics:   opts.Metrics,
		mcp:       opts.MCP,
		logger:    opts.Logger,
		now:       now,
		authToken: opts.AuthToken,
	}
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// protect wraps h with the token check when a token is configured.
func (s *Server) protect(h http.Handler) http.Handler {
	if s.authToken == "" {
		return h
	}
	return AuthMiddleware(s.authToken)(h)
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.protect(s.metrics))
	}
	if s.mcp != nil {
		s.router.Handle("/mcp", s.protect(s.mcp))
	}

	s.router.Route("/v1", func(r chi.Router) {
		if s.authToken != "" {
			r.Use(AuthMiddleware(s.authToken))
		}

		r.Get("/status", s.handleStatus)
		r.Get("/throttle", s.handleThrottle)
		r.Post("/windows/check", s.handleWindowCheck)

		r.Route("/workorders", func(r chi.Router) {
			r.Get("/", s.handleListWorkOrders)
			r.Route("/{workOrderID}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkOrder)
				r.Get("/executions", s.handleListExecutions)
			})
		})

		r.Get("/executions/{executionID}", s.handleGetExecution)
	})
}
