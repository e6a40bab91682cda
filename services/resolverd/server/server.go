package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"crosslock/core/events"
	"crosslock/native/common"
	"crosslock/native/swap"
	"crosslock/observability"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	// CompletePerSecond and CompleteBurst throttle the permissionless
	// completion endpoint.
	CompletePerSecond float64
	CompleteBurst     int
}

// EventJournal is the durable event history the server reads from.
type EventJournal interface {
	ListEvents(ctx context.Context, cursor int64, limit int) ([]events.Event, error)
	EventsForOrder(ctx context.Context, orderHash string) ([]events.Event, error)
	LastSequence(ctx context.Context) (int64, error)
}

// Server hosts the resolver's swap API, health and admin endpoints.
type Server struct {
	cfg     Config
	coord   *swap.Coordinator
	journal EventJournal
	pauses  *common.PauseSwitch
	auth    *Authenticator
	logger  *slog.Logger

	completeLimit *rate.Limiter
	router        http.Handler
}

// New constructs a configured HTTP server.
func New(cfg Config, coord *swap.Coordinator, journal EventJournal, pauses *common.PauseSwitch, auth *Authenticator, logger *slog.Logger) (*Server, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	if journal == nil {
		return nil, fmt.Errorf("event journal required")
	}
	if auth == nil {
		return nil, fmt.Errorf("admin authenticator required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CompletePerSecond <= 0 {
		cfg.CompletePerSecond = 5
	}
	if cfg.CompleteBurst <= 0 {
		cfg.CompleteBurst = 10
	}
	srv := &Server{
		cfg:           cfg,
		coord:         coord,
		journal:       journal,
		pauses:        pauses,
		auth:          auth,
		logger:        logger,
		completeLimit: rate.NewLimiter(rate.Limit(cfg.CompletePerSecond), cfg.CompleteBurst),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           otelhttp.NewHandler(s.router, "resolverd.http"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()
	s.logger.Info("http server listening", "addr", s.cfg.ListenAddress)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Post("/orders", s.handleCreateOrder)
		api.Get("/orders/{hash}", s.handleGetOrder)
		api.Get("/orders/{hash}/funding", s.handleGetFunding)
		api.Get("/orders/{hash}/events", s.handleOrderEvents)
		api.Post("/orders/{hash}/fill", s.handleFillOrder)
		api.Post("/orders/{hash}/complete", s.handleCompleteSwap)
		api.Post("/orders/{hash}/cancel", s.handleCancel)
		api.Post("/escrows/{hash}/{side}/fund", s.handleFundEscrow)
		api.Get("/events", s.handleEvents)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.auth.Middleware)
		admin.Post("/pause", s.handlePause)
		admin.Post("/resume", s.handleResume)
	})

	return r
}

// requestID stamps every request with a UUID so log lines from one call can be
// correlated across the handler and the coordinator.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		observability.API().Observe(route, r.Method, ww.Status(), time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		http.Error(w, "pause switch unavailable", http.StatusInternalServerError)
		return
	}
	s.pauses.Pause("swap")
	observability.Resolver().SetPause(true)
	s.logger.Warn("swap module paused")
	writeJSON(w, http.StatusOK, map[string]string{"module": "swap", "state": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.pauses == nil {
		http.Error(w, "pause switch unavailable", http.StatusInternalServerError)
		return
	}
	s.pauses.Resume("swap")
	observability.Resolver().SetPause(false)
	s.logger.Info("swap module resumed")
	writeJSON(w, http.StatusOK, map[string]string{"module": "swap", "state": "running"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
