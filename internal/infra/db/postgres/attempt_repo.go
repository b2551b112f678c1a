package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/domain/model"
	"marketplace-upgrade/internal/domain/ports/repository"
)

var _ repository.AttemptRepository = (*attemptRepo)(nil)

type attemptRepo struct{ pool *pgxpool.Pool }

func NewAttemptRepo(pool *pgxpool.Pool) *attemptRepo {
	return &attemptRepo{pool: pool}
}

const attemptColumns = `id, user_id, plan_id, plan_name, billing_cycle, amount, phone_number, correlation_id, state, failure_reason, created_at, updated_at, completed_at`

func (r *attemptRepo) Save(ctx context.Context, s *model.ConfirmationSession) error {
	const q = `
INSERT INTO upgrade_attempts (
  ` + attemptColumns + `
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
) ON CONFLICT (id) DO UPDATE SET
  state=$9, failure_reason=$10, updated_at=$12, completed_at=$13;`

	_, err := r.pool.Exec(ctx, q,
		s.ID, s.UserID, s.PlanID, s.PlanName, s.BillingCycle, s.Amount, s.PhoneNumber,
		s.CorrelationID, s.State, s.FailureReason, s.CreatedAt, s.UpdatedAt, s.CompletedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *attemptRepo) FindByID(ctx context.Context, id string) (*model.ConfirmationSession, error) {
	const q = `SELECT ` + attemptColumns + ` FROM upgrade_attempts WHERE id=$1;`
	return r.scanOne(r.pool.QueryRow(ctx, q, id))
}

func (r *attemptRepo) UpdateState(ctx context.Context, id string, state model.SessionState, reason string) error {
	// Terminal rows absorb: a late transition never overwrites one.
	const q = `
UPDATE upgrade_attempts
SET state=$2, failure_reason=$3, updated_at=NOW()
WHERE id=$1 AND state NOT IN ('completed','failed','cancelled');`
	_, err := r.pool.Exec(ctx, q, id, state, reason)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *attemptRepo) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `
UPDATE upgrade_attempts
SET state='completed', completed_at=$2, updated_at=NOW()
WHERE id=$1 AND state NOT IN ('completed','failed','cancelled');`
	tag, err := r.pool.Exec(ctx, q, id, at)
	if err != nil {
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *attemptRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.ConfirmationSession, error) {
	const q = `
SELECT ` + attemptColumns + `
FROM upgrade_attempts
WHERE state IN ('awaiting','checking') AND created_at < $1
ORDER BY created_at ASC
LIMIT $2;`
	rows, err := r.pool.Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.ConfirmationSession
	for rows.Next() {
		s, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *attemptRepo) scanOne(row pgx.Row) (*model.ConfirmationSession, error) {
	s := &model.ConfirmationSession{}
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.PlanName, &s.BillingCycle, &s.Amount,
		&s.PhoneNumber, &s.CorrelationID, &s.State, &s.FailureReason,
		&s.CreatedAt, &s.UpdatedAt, &s.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}
