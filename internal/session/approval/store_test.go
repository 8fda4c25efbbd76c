package approval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hive-dev/hive/internal/db"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "approvals.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.Migrate(context.Background(), database))

	// Parent rows so the FK on session_id is satisfied.
	now := time.Now().UTC()
	for _, id := range []string{"sess-a", "sess-b"} {
		_, err := database.Exec(
			`INSERT INTO sessions (id, cwd, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			id, "/tmp/proj", now, now)
		require.NoError(t, err)
	}

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(database),
	}
}

func TestPendingLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := store.CreatePending(ctx, "sess-a", "tu-1", "Bash",
				map[string]any{"command": "ls"}, "fp-1")
			require.NoError(t, err)
			require.NotEmpty(t, first.ID)

			second, err := store.CreatePending(ctx, "sess-a", "tu-2", "Write",
				map[string]any{"file_path": "/tmp/x"}, "fp-2")
			require.NoError(t, err)

			// Creation order is stable.
			pending, err := store.ListPending(ctx, "sess-a")
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, first.ID, pending[0].ID)
			assert.Equal(t, second.ID, pending[1].ID)
			assert.Equal(t, "ls", pending[0].ToolInput["command"])

			got, err := store.GetPending(ctx, first.ID)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "tu-1", got.ToolUseID)
			assert.Equal(t, "fp-1", got.Fingerprint)

			require.NoError(t, store.DeletePending(ctx, first.ID))
			// Idempotent.
			require.NoError(t, store.DeletePending(ctx, first.ID))

			got, err = store.GetPending(ctx, first.ID)
			require.NoError(t, err)
			assert.Nil(t, got)

			pending, err = store.ListPending(ctx, "sess-a")
			require.NoError(t, err)
			assert.Len(t, pending, 1)
		})
	}
}

func TestDeleteAllPendingScopedToSession(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				_, err := store.CreatePending(ctx, "sess-a", "tu", "Bash", nil, "fp")
				require.NoError(t, err)
			}
			_, err := store.CreatePending(ctx, "sess-b", "tu", "Bash", nil, "fp")
			require.NoError(t, err)

			require.NoError(t, store.DeleteAllPending(ctx, "sess-a"))

			remaining, err := store.ListPending(ctx, "sess-a")
			require.NoError(t, err)
			assert.Empty(t, remaining)

			other, err := store.ListPending(ctx, "sess-b")
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestPreApprovalLookupAndConsume(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			pre, err := store.CreatePreApproval(ctx, "sess-a", "fp-x")
			require.NoError(t, err)

			found, err := store.FindPreApproval(ctx, "sess-a", "fp-x")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, pre.ID, found.ID)

			// No match on a different fingerprint.
			missing, err := store.FindPreApproval(ctx, "sess-a", "fp-y")
			require.NoError(t, err)
			assert.Nil(t, missing)

			require.NoError(t, store.ConsumePreApproval(ctx, pre.ID))
			// Idempotent.
			require.NoError(t, store.ConsumePreApproval(ctx, pre.ID))

			found, err = store.FindPreApproval(ctx, "sess-a", "fp-x")
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}

func TestPreApprovalCrossSessionIsolation(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.CreatePreApproval(ctx, "sess-a", "fp-shared")
			require.NoError(t, err)

			// Session B must never see session A's authorization, even for
			// an identical fingerprint.
			found, err := store.FindPreApproval(ctx, "sess-b", "fp-shared")
			require.NoError(t, err)
			assert.Nil(t, found)
		})
	}
}

func TestDeleteAllPreApprovals(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.CreatePreApproval(ctx, "sess-a", "fp-1")
			require.NoError(t, err)
			_, err = store.CreatePreApproval(ctx, "sess-a", "fp-2")
			require.NoError(t, err)
			_, err = store.CreatePreApproval(ctx, "sess-b", "fp-1")
			require.NoError(t, err)

			require.NoError(t, store.DeleteAllPreApprovals(ctx, "sess-a"))

			found, err := store.FindPreApproval(ctx, "sess-a", "fp-1")
			require.NoError(t, err)
			assert.Nil(t, found)

			kept, err := store.FindPreApproval(ctx, "sess-b", "fp-1")
			require.NoError(t, err)
			assert.NotNil(t, kept)
		})
	}
}
