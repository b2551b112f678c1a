//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
)

var testPool *pgxpool.Pool

const testSchema = `
CREATE TABLE IF NOT EXISTS upgrade_attempts (
  id UUID PRIMARY KEY,
  user_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  plan_name TEXT NOT NULL DEFAULT '',
  billing_cycle TEXT NOT NULL DEFAULT 'monthly',
  amount BIGINT NOT NULL,
  phone_number TEXT NOT NULL,
  correlation_id TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL,
  failure_reason TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,
  completed_at TIMESTAMPTZ
);`

func TestMain(m *testing.M) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		log.Println("DATABASE_URL not set; skipping postgres integration tests")
		os.Exit(0)
	}

	ctx := context.Background()
	pool, err := NewPgxPool(ctx, url, 4)
	if err != nil {
		log.Fatalf("connect test database: %v", err)
	}
	testPool = pool

	if _, err := pool.Exec(ctx, testSchema); err != nil {
		log.Fatalf("create test schema: %v", err)
	}

	code := m.Run()
	pool.Close()
	os.Exit(code)
}

func cleanup(t *testing.T) {
	t.Helper()
	if _, err := testPool.Exec(context.Background(), `TRUNCATE upgrade_attempts;`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
