// Package api serves the JSON HTTP API, the admin plan catalog and the
// operational endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/web3analysis/internal/config"
	"github.com/digkill/web3analysis/internal/metrics"
	"github.com/digkill/web3analysis/internal/service"
)

// Services groups the business services the handlers call.
type Services struct {
	Users      *service.UserService
	Plans      *service.PlanService
	Ledger     *service.LedgerService
	Orders     *service.OrderService
	Reports    *service.ReportService
	Generation *service.GenerationService
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type Server struct {
	cfg     config.Config
	log     *slog.Logger
	svc     Services
	health  HealthFunc
	limiter *addressLimiter
	router  *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, svc Services, health HealthFunc) *Server {
	r := chi.NewRouter()
	s := &Server{
		cfg:     cfg,
		log:     log,
		svc:     svc,
		health:  health,
		limiter: newAddressLimiter(cfg.RateLimitPerMinute),
		router:  r,
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(cors)
		r.Get("/get-report", s.handleGetReport)
		r.Get("/get-reports", s.handleListReports)
		r.Get("/search-reports", s.handleSearchReports)
		r.Get("/plans", s.handleActivePlans)
		// The payment callback carries only the hash and order number.
		r.Post("/verify-transaction", s.handleVerifyTransaction)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAddress)
			r.Post("/create-order", s.handleCreateOrder)
			r.With(s.limitGeneration).Post("/gen-reports", s.handleGenerateReport)
			r.Post("/get-user-credits", s.handleUserCredits)
			r.Post("/get-user-reports", s.handleUserReports)
			r.Post("/check-user-report", s.handleCheckUserReport)
			r.Post("/consume-credits", s.handleConsumeCredits)
			r.Post("/check-expiring-credits", s.handleExpiringCredits)
			r.Post("/get-user-info", s.handleUserInfo)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.basicAuth)
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", s.handleListPlans)
			r.Post("/", s.handleCreatePlan)
			r.Put("/{id}", s.handleUpdatePlan)
			r.Delete("/{id}", s.handleDeletePlan)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Generation may legitimately take up to the request ceiling.
		WriteTimeout: s.cfg.RequestCeiling + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http server listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.log.Warn("health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
