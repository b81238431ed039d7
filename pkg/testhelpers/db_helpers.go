package testhelpers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"livechat/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

func schemaPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "db", "schema.sql")
}

// SetupTestPool connects to DATABASE_URL_FOR_TEST, applies the schema and
// empties the chat tables. The test is skipped when the variable is unset.
func SetupTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping postgres tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	t.Cleanup(pool.Close)

	require.NoError(t, db.ApplySchema(ctx, pool, schemaPath()))
	_, err = pool.Exec(ctx, "TRUNCATE TABLE chat_messages, chat_conversations, chat_identities RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return pool
}

// OpenTestPebble returns an in-memory store closed at test cleanup.
func OpenTestPebble(t *testing.T) *pebble.DB {
	t.Helper()

	kv, err := db.OpenPebbleInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv
}

// CreateTestIdentity inserts a minimal identity row and returns its ID.
func CreateTestIdentity(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	ctx := context.Background()
	suffix := nextSuffix()
	id := uuid.NewString()
	name := fmt.Sprintf("test-customer-%d", suffix)
	address := fmt.Sprintf("%s@example.com", name)

	_, err := pool.Exec(ctx,
		"INSERT INTO chat_identities (id, display_name, contact_address, credential_secret) VALUES ($1, $2, $3, $4)",
		id, name, address, "SECRET2345")
	require.NoError(t, err)
	return id
}
