//go:build !integration

package web

import (
	"context"
	"sync"
	"time"

	"marketplace-upgrade/internal/domain"
	"marketplace-upgrade/internal/usecase"
)

// mockCoordinator lets handler tests script the coordinator's behavior.
type mockCoordinator struct {
	InitiateFunc func(ctx context.Context, in usecase.InitiateInput) (usecase.SessionView, error)
	CheckNowFunc func(ctx context.Context, sessionID string) (usecase.Outcome, error)
	SnapshotFunc func(sessionID string) (usecase.SessionView, error)
	DismissFunc  func(ctx context.Context, sessionID string) error
}

func (m *mockCoordinator) Initiate(ctx context.Context, in usecase.InitiateInput) (usecase.SessionView, error) {
	return m.InitiateFunc(ctx, in)
}
func (m *mockCoordinator) CheckNow(ctx context.Context, sessionID string) (usecase.Outcome, error) {
	return m.CheckNowFunc(ctx, sessionID)
}
func (m *mockCoordinator) Snapshot(sessionID string) (usecase.SessionView, error) {
	return m.SnapshotFunc(sessionID)
}
func (m *mockCoordinator) Dismiss(ctx context.Context, sessionID string) error {
	return m.DismissFunc(ctx, sessionID)
}
func (m *mockCoordinator) Close() {}

// memLocker is an in-memory stand-in for the redis session lock.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]string)} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrActiveSessionExists
	}
	token := "token-" + key
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// memRedis backs the rate limiter without a live redis.
type memRedis struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemRedis() *memRedis { return &memRedis{counts: make(map[string]int64)} }

func (m *memRedis) Ping(ctx context.Context) error { return nil }
func (m *memRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return nil
}
func (m *memRedis) Get(ctx context.Context, key string) (string, error) { return "", nil }
func (m *memRedis) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}
func (m *memRedis) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *memRedis) Del(ctx context.Context, keys ...string) error { return nil }
func (m *memRedis) Close() error                                  { return nil }
