// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"marketplace-upgrade/internal/config"
	"marketplace-upgrade/internal/domain/model"
	pg "marketplace-upgrade/internal/infra/db/postgres"
	"marketplace-upgrade/internal/infra/entitlement"
	"marketplace-upgrade/internal/infra/logging"
	"marketplace-upgrade/internal/infra/metrics"
	"marketplace-upgrade/internal/infra/payment"
	red "marketplace-upgrade/internal/infra/redis"
	"marketplace-upgrade/internal/infra/sched"
	"marketplace-upgrade/internal/infra/web"
	"marketplace-upgrade/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, no redaction)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Runtime.Dev {
		log.Printf("[DEV MODE] Enabled")
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Repositories & adapters ----
	attemptRepo := pg.NewAttemptRepo(pool)
	gateway := payment.NewPushGateway(cfg.Gateway.BaseURL, cfg.Gateway.AccessToken, cfg.Gateway.Timeout)
	refresher := entitlement.NewHTTPRefresher(cfg.Entitlement.BaseURL, cfg.Entitlement.AccessToken, cfg.Entitlement.Timeout)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Coordinator ----
	lockTable := web.NewLockTable()
	coordinator := usecase.NewCoordinator(gateway, refresher, attemptRepo, usecase.CoordinatorOptions{
		PollInterval:  cfg.Confirm.PollInterval,
		RedirectDelay: cfg.Confirm.RedirectDelay,
		MaxPollChecks: cfg.Confirm.MaxPollChecks,
		OnCheck: func(trigger usecase.CheckTrigger, outcome usecase.Outcome) {
			metrics.StatusChecks.WithLabelValues(string(trigger), string(outcome)).Inc()
		},
		OnTerminal: func(s model.ConfirmationSession) {
			metrics.SessionOutcomes.WithLabelValues(string(s.State)).Inc()
			metrics.ActiveSessions.Dec()
			if token, ok := lockTable.Take(s.ID); ok {
				if err := locker.Unlock(context.Background(), red.SessionLockKey(s.UserID), token); err != nil {
					logger.Warn().Err(err).Str("user_id", s.UserID).Msg("release session lock failed")
				}
			}
		},
	}, logger)
	defer coordinator.Close()

	// ---- Reconciler ----
	reconciler := sched.NewAttemptReconciler(gateway, refresher, attemptRepo,
		cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, cfg.Reconciler.BatchSize, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("reconciler stopped")
		}
	}()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Server.HMACSecret)
	server := web.NewServer(coordinator, auth, locker, limiter, lockTable, cfg.Confirm, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info().Str("addr", addr).Msg("upgrade confirmation service listening")
	if err := server.ListenAndServe(ctx, addr); err != nil && ctx.Err() == nil {
		log.Fatalf("http: %v", err)
	}
	logger.Info().Msg("shutdown complete")
}
