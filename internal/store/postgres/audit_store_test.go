package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Runs against a real server when ROCKETARB_TEST_POSTGRES_DSN is set.
func TestAuditStore(t *testing.T) {
	dsn := os.Getenv("ROCKETARB_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROCKETARB_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{DSN: dsn, MaxConns: 2})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.RunMigrations(ctx))
	// A second run finds everything applied.
	require.NoError(t, c.RunMigrations(ctx))

	runID := uuid.NewString()
	store := NewAuditStore(c, runID)
	require.NoError(t, store.Log(ctx, "bundle_submitted", map[string]any{"first_target": 101}))
	require.NoError(t, store.Log(ctx, "bundle_included", map[string]any{"target": 103}))

	entries, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "bundle_included", entries[0].Event)
	require.Equal(t, runID, entries[0].Detail["run_id"])
	require.EqualValues(t, 103, entries[0].Detail["target"])
	require.Equal(t, "bundle_submitted", entries[1].Event)
}

func TestMigrationsEmbedded(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/001_audit_log.sql")
	require.NoError(t, err)
	require.Contains(t, string(data), "CREATE TABLE IF NOT EXISTS audit_log")
}
