package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"marketplace-upgrade/internal/config"
	"marketplace-upgrade/internal/infra/logging"
	red "marketplace-upgrade/internal/infra/redis"
	"marketplace-upgrade/internal/usecase"
)

type Server struct {
	coordinator usecase.ConfirmationCoordinator
	auth        *AuthManager
	locker      red.Locker
	limiter     *red.RateLimiter
	locks       *LockTable
	cfg         config.ConfirmConfig
	log         *zerolog.Logger
}

func NewServer(
	coordinator usecase.ConfirmationCoordinator,
	auth *AuthManager,
	locker red.Locker,
	limiter *red.RateLimiter,
	locks *LockTable,
	cfg config.ConfirmConfig,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		coordinator: coordinator,
		auth:        auth,
		locker:      locker,
		limiter:     limiter,
		locks:       locks,
		cfg:         cfg,
		log:         &l,
	}
}

// Router builds the chi router for the upgrade-modal API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/upgrade", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.initiateHandler)
		r.Get("/{sessionID}", s.snapshotHandler)
		r.Post("/{sessionID}/check", s.manualCheckHandler)
		r.Delete("/{sessionID}", s.dismissHandler)
	})

	return r
}

// traceMiddleware lifts chi's request ID into the logging context so every
// log line downstream carries trace_id.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			r = r.WithContext(logging.WithTraceID(r.Context(), rid))
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware verifies the caller's identity token and stashes the user ID.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserID, claims.Subject)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}
