package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/hive-dev/hive/internal/common/errors"
	"github.com/hive-dev/hive/internal/db"
	"github.com/hive-dev/hive/internal/session/models"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.Migrate(context.Background(), database))

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": NewSQLiteStore(database),
	}
}

func TestSessionLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session := &models.Session{Cwd: "/tmp/proj", Model: "opus"}
			require.NoError(t, store.CreateSession(ctx, session))
			require.NotEmpty(t, session.ID)
			assert.Equal(t, models.StatusIdle, session.Status)
			assert.Equal(t, models.PermissionModeDefault, session.PermissionMode)

			got, err := store.GetSession(ctx, session.ID)
			require.NoError(t, err)
			assert.Equal(t, "/tmp/proj", got.Cwd)
			assert.Equal(t, "opus", got.Model)
			assert.Empty(t, got.ConversationID)

			require.NoError(t, store.UpdateStatus(ctx, session.ID, models.StatusRunning))
			require.NoError(t, store.SetConversationID(ctx, session.ID, "conv-ext-1"))

			got, err = store.GetSession(ctx, session.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusRunning, got.Status)
			assert.Equal(t, "conv-ext-1", got.ConversationID)
		})
	}
}

func TestGetSessionNotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetSession(context.Background(), "missing")
			require.Error(t, err)
			assert.True(t, apperrors.IsNotFound(err))

			err = store.UpdateStatus(context.Background(), "missing", models.StatusIdle)
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestSetPermissionModeWithExpiry(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session := &models.Session{Cwd: "/tmp"}
			require.NoError(t, store.CreateSession(ctx, session))

			expiry := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
			require.NoError(t, store.SetPermissionMode(ctx, session.ID, models.PermissionModeBypassAll, &expiry))

			got, err := store.GetSession(ctx, session.ID)
			require.NoError(t, err)
			assert.Equal(t, models.PermissionModeBypassAll, got.PermissionMode)
			require.NotNil(t, got.PermissionModeExpiresAt)
			assert.WithinDuration(t, expiry, *got.PermissionModeExpiresAt, time.Second)

			// Clearing the expiry.
			require.NoError(t, store.SetPermissionMode(ctx, session.ID, models.PermissionModeDefault, nil))
			got, err = store.GetSession(ctx, session.ID)
			require.NoError(t, err)
			assert.Nil(t, got.PermissionModeExpiresAt)
		})
	}
}

func TestResultsAppendOnly(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session := &models.Session{Cwd: "/tmp"}
			require.NoError(t, store.CreateSession(ctx, session))

			first := &models.SessionResult{
				SessionID:      session.ID,
				ConversationID: "conv-1",
				Subtype:        models.ResultSuccess,
				NumTurns:       3,
				DurationMS:     1200,
				CostUSD:        0.42,
				InputTokens:    1000,
				OutputTokens:   500,
			}
			require.NoError(t, store.CreateResult(ctx, first))

			second := &models.SessionResult{
				SessionID: session.ID,
				Subtype:   models.ResultInterrupted,
				CreatedAt: first.CreatedAt.Add(time.Second),
			}
			require.NoError(t, store.CreateResult(ctx, second))

			results, err := store.ListResults(ctx, session.ID)
			require.NoError(t, err)
			require.Len(t, results, 2)
			assert.Equal(t, models.ResultSuccess, results[0].Subtype)
			assert.Equal(t, 0.42, results[0].CostUSD)
			assert.Equal(t, models.ResultInterrupted, results[1].Subtype)

			other, err := store.ListResults(ctx, "other-session")
			require.NoError(t, err)
			assert.Empty(t, other)
		})
	}
}

func TestDeleteSession(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session := &models.Session{Cwd: "/tmp"}
			require.NoError(t, store.CreateSession(ctx, session))
			require.NoError(t, store.CreateResult(ctx, &models.SessionResult{
				SessionID: session.ID,
				Subtype:   models.ResultSuccess,
			}))

			require.NoError(t, store.DeleteSession(ctx, session.ID))

			_, err := store.GetSession(ctx, session.ID)
			assert.True(t, apperrors.IsNotFound(err))
			results, err := store.ListResults(ctx, session.ID)
			require.NoError(t, err)
			assert.Empty(t, results)

			err = store.DeleteSession(ctx, session.ID)
			assert.True(t, apperrors.IsNotFound(err))
		})
	}
}

func TestEffectivePermissionMode(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	expired := &models.Session{PermissionMode: models.PermissionModeBypassAll, PermissionModeExpiresAt: &past}
	assert.Equal(t, models.PermissionModeDefault, expired.EffectivePermissionMode(now))

	active := &models.Session{PermissionMode: models.PermissionModeBypassAll, PermissionModeExpiresAt: &future}
	assert.Equal(t, models.PermissionModeBypassAll, active.EffectivePermissionMode(now))

	unset := &models.Session{}
	assert.Equal(t, models.PermissionModeDefault, unset.EffectivePermissionMode(now))
}
