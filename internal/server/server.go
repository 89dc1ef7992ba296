// Package server provides the HTTP server and routing for paysync.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/merchantpos/paysync/internal/domain"
	"github.com/merchantpos/paysync/internal/modules/currency/handlers"
	"github.com/merchantpos/paysync/internal/modules/query"
	"github.com/merchantpos/paysync/internal/scheduler"
	"github.com/merchantpos/paysync/internal/statussync"
)

// OrderService serves cached orders
type OrderService interface {
	List(ctx context.Context, status string, opts query.Options) ([]domain.Order, error)
	Get(ctx context.Context, id string, opts query.Options) (domain.Order, error)
}

// DepositService serves cached deposits
type DepositService interface {
	List(ctx context.Context, status string, opts query.Options) ([]domain.Deposit, error)
	Get(ctx context.Context, id string, opts query.Options) (domain.Deposit, error)
}

// ProfileService serves the cached merchant profile
type ProfileService interface {
	Get(ctx context.Context, opts query.Options) (domain.MerchantProfile, error)
}

// StatusRegistry owns the live status watches
type StatusRegistry interface {
	Mount(ctx context.Context, kind statussync.Kind, merchantID, entityID string) (*statussync.Synchronizer, error)
	Get(kind statussync.Kind, entityID string) (*statussync.Synchronizer, bool)
	Unmount(ctx context.Context, kind statussync.Kind, entityID string) bool
	Snapshots() []statussync.Snapshot
}

// CacheAdmin exposes maintenance over the client data cache
type CacheAdmin interface {
	SweepExpired(ctx context.Context) (int, error)
	ClearAll(ctx context.Context) error
}

// ErrorHandler applies merchant-status policy to request errors
type ErrorHandler interface {
	Handle(ctx context.Context, err error) bool
}

// JobLister reports scheduled job state
type JobLister interface {
	Jobs() []scheduler.JobStatus
}

// Config holds server configuration. Nil services leave their routes unmounted.
type Config struct {
	Log        zerolog.Logger
	Port       int
	DevMode    bool
	MerchantID string // default channel for status mounts

	Orders   OrderService
	Deposits DepositService
	Profile  ProfileService
	Currency handlers.RateService
	Status   StatusRegistry
	Cache    CacheAdmin
	Enforcer ErrorHandler
	Jobs     JobLister
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
	start  time.Time
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
		start:  time.Now(),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.Orders != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", s.handleListOrders)
				r.Get("/{id}", s.handleGetOrder)
			})
		}

		if s.cfg.Deposits != nil {
			r.Route("/deposits", func(r chi.Router) {
				r.Get("/", s.handleListDeposits)
				r.Get("/{id}", s.handleGetDeposit)
			})
		}

		if s.cfg.Profile != nil {
			r.Get("/profile", s.handleGetProfile)
		}

		if s.cfg.Currency != nil {
			handlers.NewHandler(s.cfg.Currency, s.log).RegisterRoutes(r)
		}

		if s.cfg.Status != nil {
			r.Route("/status", func(r chi.Router) {
				r.Get("/", s.handleListStatus)
				r.Route("/{kind}/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetStatus)
					r.Post("/mount", s.handleMountStatus)
					r.Post("/check", s.handleCheckStatus)
					r.Delete("/", s.handleUnmountStatus)
				})
			})
		}

		if s.cfg.Cache != nil {
			r.Route("/cache", func(r chi.Router) {
				r.Post("/sweep", s.handleSweepCache)
				r.Delete("/", s.handleClearCache)
			})
		}
	})
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "paysync",
		"uptime":  time.Since(s.start).Round(time.Second).String(),
	}
	if s.cfg.Jobs != nil {
		response["jobs"] = s.cfg.Jobs.Jobs()
	}

	s.writeJSON(w, http.StatusOK, response)
}

// respond wraps data in the standard data/metadata envelope
func (s *Server) respond(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error": message,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
