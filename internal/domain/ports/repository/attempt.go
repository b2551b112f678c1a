package repository

import (
	"context"
	"time"

	"marketplace-upgrade/internal/domain/model"
)

// AttemptRepository persists the audit trail of upgrade confirmation
// sessions. The live state machine is owned by the coordinator; rows here
// exist so a restarted process can reconcile pushes that were still pending
// when it died.
type AttemptRepository interface {
	Save(ctx context.Context, s *model.ConfirmationSession) error
	FindByID(ctx context.Context, id string) (*model.ConfirmationSession, error)

	// UpdateState records a transition. Terminal rows are never overwritten.
	UpdateState(ctx context.Context, id string, state model.SessionState, reason string) error

	// MarkCompleted flips a non-terminal row to completed and reports
	// whether this call performed the flip. The boolean is the exactly-once
	// guard for success side effects driven from the reconciler.
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)

	// ListPendingOlderThan returns awaiting attempts created before cutoff,
	// bounded by limit, for background reconciliation.
	ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.ConfirmationSession, error)
}
