package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"marketplace-upgrade/internal/domain/model"
	"marketplace-upgrade/internal/domain/ports/adapter"
	"marketplace-upgrade/internal/domain/ports/repository"
	"marketplace-upgrade/internal/infra/metrics"
)

// AttemptReconciler periodically scans for stale awaiting attempts and asks
// the provider for their verdict. This covers attempts whose coordinating
// process died before reaching a terminal state: without it a user who paid
// during a deploy would never be upgraded.
type AttemptReconciler struct {
	gateway      adapter.PaymentGateway
	entitlements adapter.EntitlementRefresher
	attempts     repository.AttemptRepository
	interval     time.Duration // how often to scan
	staleAfter   time.Duration // how old an awaiting attempt must be to retry
	batchSize    int
	log          *zerolog.Logger
}

func NewAttemptReconciler(
	gateway adapter.PaymentGateway,
	entitlements adapter.EntitlementRefresher,
	attempts repository.AttemptRepository,
	interval, staleAfter time.Duration,
	batchSize int,
	logger *zerolog.Logger,
) *AttemptReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	l := logger.With().Str("component", "AttemptReconciler").Logger()
	return &AttemptReconciler{
		gateway:      gateway,
		entitlements: entitlements,
		attempts:     attempts,
		interval:     interval,
		staleAfter:   staleAfter,
		batchSize:    batchSize,
		log:          &l,
	}
}

func (w *AttemptReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("starting attempt reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping attempt reconciler")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *AttemptReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.attempts.ListPendingOlderThan(ctx, cutoff, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending attempts failed")
		return
	}

	for _, a := range pending {
		if a.CorrelationID == "" {
			continue
		}
		status, err := w.gateway.QueryStatus(ctx, a.CorrelationID)
		if err != nil {
			w.log.Warn().Err(err).Str("session_id", a.ID).Msg("reconcile status query failed")
			continue
		}

		switch status {
		case adapter.PushStatusCompleted:
			swapped, err := w.attempts.MarkCompleted(ctx, a.ID, time.Now())
			if err != nil {
				w.log.Error().Err(err).Str("session_id", a.ID).Msg("mark completed failed")
				continue
			}
			if !swapped {
				// Someone else finalized this attempt first.
				continue
			}
			metrics.SessionOutcomes.WithLabelValues(string(model.StateCompleted)).Inc()
			if err := w.entitlements.Refresh(ctx, a.UserID); err != nil {
				w.log.Warn().Err(err).Str("user_id", a.UserID).Msg("entitlement refresh failed during reconcile")
			}
			w.log.Info().Str("session_id", a.ID).Msg("reconciled stale attempt as completed")
		case adapter.PushStatusFailed:
			if err := w.attempts.UpdateState(ctx, a.ID, model.StateFailed, "provider reported failure during reconcile"); err != nil {
				w.log.Error().Err(err).Str("session_id", a.ID).Msg("mark failed failed")
				continue
			}
			metrics.SessionOutcomes.WithLabelValues(string(model.StateFailed)).Inc()
			w.log.Info().Str("session_id", a.ID).Msg("reconciled stale attempt as failed")
		case adapter.PushStatusPending:
			// Still waiting on the subscriber; leave it for the next scan.
		}
	}
}
