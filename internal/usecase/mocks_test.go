//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/domain/model"
	"marketplace-upgrade/internal/domain/ports/adapter"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// mockGateway is a controllable payment gateway. QueryFunc decides each
// status response; the in-flight counters let tests assert the mutual
// exclusion invariant directly.
type mockGateway struct {
	mu            sync.Mutex
	correlationID string
	requestErr    error
	requestCalls  int

	QueryFunc   func(ctx context.Context, correlationID string) (adapter.PushStatus, error)
	queryCalls  int32
	inFlight    int32
	maxInFlight int32
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) RequestPush(ctx context.Context, phoneNumber string, amount int64, meta adapter.PushMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCalls++
	if m.requestErr != nil {
		return "", m.requestErr
	}
	if m.correlationID == "" {
		return "corr-abc123", nil
	}
	return m.correlationID, nil
}

func (m *mockGateway) QueryStatus(ctx context.Context, correlationID string) (adapter.PushStatus, error) {
	cur := atomic.AddInt32(&m.inFlight, 1)
	for {
		max := atomic.LoadInt32(&m.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&m.maxInFlight, max, cur) {
			break
		}
	}
	defer atomic.AddInt32(&m.inFlight, -1)
	atomic.AddInt32(&m.queryCalls, 1)
	return m.QueryFunc(ctx, correlationID)
}

func (m *mockGateway) queries() int32 { return atomic.LoadInt32(&m.queryCalls) }

// statusSequence returns each status in order, repeating the last forever.
func statusSequence(statuses ...adapter.PushStatus) func(context.Context, string) (adapter.PushStatus, error) {
	var n int32
	return func(ctx context.Context, _ string) (adapter.PushStatus, error) {
		i := int(atomic.AddInt32(&n, 1)) - 1
		if i >= len(statuses) {
			i = len(statuses) - 1
		}
		return statuses[i], nil
	}
}

type mockRefresher struct {
	calls int32
	err   error
}

func (m *mockRefresher) Refresh(ctx context.Context, userID string) error {
	atomic.AddInt32(&m.calls, 1)
	return m.err
}

func (m *mockRefresher) refreshes() int32 { return atomic.LoadInt32(&m.calls) }

// memAttemptRepo is a small in-memory implementation used by unit tests.
type memAttemptRepo struct {
	mu      sync.RWMutex
	store   map[string]*model.ConfirmationSession
	saveErr error // used by tests to simulate persistence failures
}

func newMemAttemptRepo() *memAttemptRepo {
	return &memAttemptRepo{store: make(map[string]*model.ConfirmationSession)}
}

func (m *memAttemptRepo) Save(ctx context.Context, s *model.ConfirmationSession) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[s.ID] = &cp
	return nil
}

func (m *memAttemptRepo) FindByID(ctx context.Context, id string) (*model.ConfirmationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memAttemptRepo) UpdateState(ctx context.Context, id string, state model.SessionState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.State.Terminal() {
		return nil
	}
	s.State = state
	s.FailureReason = reason
	s.UpdatedAt = time.Now()
	return nil
}

func (m *memAttemptRepo) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[id]
	if !ok || s.State.Terminal() {
		return false, nil
	}
	s.State = model.StateCompleted
	s.CompletedAt = &at
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *memAttemptRepo) ListPendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*model.ConfirmationSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ConfirmationSession
	for _, s := range m.store {
		if (s.State == model.StateAwaiting || s.State == model.StateChecking) && s.CreatedAt.Before(cutoff) {
			cp := *s
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
