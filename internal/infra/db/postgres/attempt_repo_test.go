//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/domain/model"
)

func newAttempt(state model.SessionState, age time.Duration) *model.ConfirmationSession {
	now := time.Now().Add(-age)
	return &model.ConfirmationSession{
		ID:            uuid.NewString(),
		UserID:        "user-1",
		PlanID:        "plan-pro",
		PlanName:      "Pro",
		BillingCycle:  model.BillingMonthly,
		Amount:        500,
		PhoneNumber:   "254712345678",
		CorrelationID: "corr-" + uuid.NewString()[:8],
		State:         state,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestAttemptRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}

	ctx := context.Background()
	repo := NewAttemptRepo(testPool)

	t.Run("should save and find an attempt", func(t *testing.T) {
		cleanup(t)
		a := newAttempt(model.StateAwaiting, 0)
		if err := repo.Save(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}

		got, err := repo.FindByID(ctx, a.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.State != model.StateAwaiting || got.CorrelationID != a.CorrelationID {
			t.Errorf("round trip mismatch: %+v", got)
		}
	})

	t.Run("should return ErrNotFound for a missing attempt", func(t *testing.T) {
		cleanup(t)
		if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should mark completed exactly once", func(t *testing.T) {
		cleanup(t)
		a := newAttempt(model.StateAwaiting, 0)
		if err := repo.Save(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}

		swapped, err := repo.MarkCompleted(ctx, a.ID, time.Now())
		if err != nil || !swapped {
			t.Fatalf("expected first MarkCompleted to swap, got %v %v", swapped, err)
		}
		swapped, err = repo.MarkCompleted(ctx, a.ID, time.Now())
		if err != nil {
			t.Fatalf("second MarkCompleted: %v", err)
		}
		if swapped {
			t.Error("expected second MarkCompleted to be a no-op")
		}
	})

	t.Run("should never overwrite a terminal state", func(t *testing.T) {
		cleanup(t)
		a := newAttempt(model.StateAwaiting, 0)
		if err := repo.Save(ctx, a); err != nil {
			t.Fatalf("save: %v", err)
		}
		if err := repo.UpdateState(ctx, a.ID, model.StateCancelled, "dismissed by user"); err != nil {
			t.Fatalf("update: %v", err)
		}
		if err := repo.UpdateState(ctx, a.ID, model.StateFailed, "late failure"); err != nil {
			t.Fatalf("update: %v", err)
		}

		got, _ := repo.FindByID(ctx, a.ID)
		if got.State != model.StateCancelled {
			t.Errorf("expected cancelled to stick, got %s", got.State)
		}
	})

	t.Run("should list only stale non-terminal attempts", func(t *testing.T) {
		cleanup(t)
		stale := newAttempt(model.StateAwaiting, time.Hour)
		fresh := newAttempt(model.StateAwaiting, 0)
		done := newAttempt(model.StateCompleted, time.Hour)
		for _, a := range []*model.ConfirmationSession{stale, fresh, done} {
			if err := repo.Save(ctx, a); err != nil {
				t.Fatalf("save: %v", err)
			}
		}

		got, err := repo.ListPendingOlderThan(ctx, time.Now().Add(-time.Minute), 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 1 || got[0].ID != stale.ID {
			t.Errorf("expected only the stale awaiting attempt, got %d rows", len(got))
		}
	})
}
