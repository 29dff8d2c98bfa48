// Package server exposes a read-only HTTP view of the ledgers, the minter and
// the router of a dcad node.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coreerrors "xaumdca/core/errors"
	"xaumdca/native/bank"
	"xaumdca/native/dca"
	"xaumdca/native/router"
	"xaumdca/observability"
	"xaumdca/services/dcad/node"
)

const requestIDHeader = "X-Request-ID"

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress   string
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimit       RateLimit
}

// Server hosts the query API.
type Server struct {
	cfg     Config
	node    *node.Node
	logger  *slog.Logger
	limiter *RateLimiter
	router  http.Handler
}

// New constructs a server over n.
func New(cfg Config, n *node.Node, logger *slog.Logger) (*Server, error) {
	if n == nil {
		return nil, errors.New("server: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	srv := &Server{
		cfg:     cfg,
		node:    n,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimit, logger),
	}
	srv.router = srv.buildRouter()
	return srv, nil
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(withRequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(s.limiter.Middleware("api"))
		api.With(s.observe("ledgers")).Get("/ledgers", s.handleLedgers)
		api.Route("/ledgers/{token}", func(lr chi.Router) {
			lr.With(s.observe("settings")).Get("/settings", s.handleSettings)
			lr.With(s.observe("orders")).Get("/orders", s.handleActiveOrders)
			lr.With(s.observe("order")).Get("/orders/{id}", s.handleOrder)
			lr.With(s.observe("user_orders")).Get("/users/{user}/orders", s.handleUserOrders)
			lr.With(s.observe("fees")).Get("/fees/{feeToken}", s.handleFeeToClaim)
			lr.With(s.observe("total_fee")).Get("/total-fee", s.handleTotalFee)
		})
		api.With(s.observe("price")).Get("/minter/price", s.handlePrice)
		api.With(s.observe("claimable")).Get("/minter/claimable/{ledger}/{user}", s.handleClaimable)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.router,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("query api listening", "addr", s.cfg.ListenAddress)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observe(module string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			observability.ModuleMetrics().Observe(module, r.Method, status, elapsed)
			s.logger.Debug("request",
				"request_id", w.Header().Get(requestIDHeader),
				"module", module,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds())
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps engine failures onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dca.ErrOrderNotFound),
		errors.Is(err, router.ErrNoLedger),
		errors.Is(err, bank.ErrUnknownToken):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, coreerrors.ErrOutOfRange),
		errors.Is(err, coreerrors.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", w.Header().Get(requestIDHeader),
			"path", r.URL.Path,
			"error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
