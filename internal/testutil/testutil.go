// Package testutil connects integration tests to the test Postgres and
// Redis instances from config.LoadTestConfig. Tests skip when they are down.
package testutil

import (
	"context"
	"testing"
	"time"

	"vanta-access/config"
	"vanta-access/internal/database"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 2 * time.Second

// SetupDB returns a migrated pool with all access-control tables truncated.
func SetupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg := config.LoadTestConfig()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := database.InitDatabase(ctx, &cfg.Database)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(context.Background(), pool); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	// 清空所有測試資料，保留 schema
	_, err = pool.Exec(context.Background(), `
		TRUNCATE audit_log, guest_entries, tickets, staff_rule_limits, staff_assignments,
			guest_list_rules, variations, batches, events CASCADE`)
	if err != nil {
		t.Fatalf("Failed to truncate tables: %v", err)
	}
	return pool
}

// SetupRedis returns a client on the test DB index, flushed.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()
	cfg := config.LoadTestConfig()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	rdb, err := database.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		t.Skipf("test redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("Failed to flush test redis: %v", err)
	}
	return rdb
}
