package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema holds the full relational layout. CREATE TABLE IF NOT EXISTS keeps
// startup idempotent; there is no versioned migration history yet.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id                          TEXT PRIMARY KEY,
		conversation_id             TEXT NOT NULL DEFAULT '',
		cwd                         TEXT NOT NULL,
		model                       TEXT NOT NULL DEFAULT '',
		permission_mode             TEXT NOT NULL DEFAULT 'default',
		permission_mode_expires_at  TIMESTAMP,
		status                      TEXT NOT NULL DEFAULT 'idle',
		created_at                  TIMESTAMP NOT NULL,
		updated_at                  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pending_approvals (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		tool_use_id  TEXT NOT NULL,
		tool_name    TEXT NOT NULL,
		tool_input   TEXT NOT NULL DEFAULT '{}',
		fingerprint  TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_approvals_session
		ON pending_approvals(session_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS approved_fingerprints (
		id           TEXT PRIMARY KEY,
		session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		fingerprint  TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_approved_fingerprints_lookup
		ON approved_fingerprints(session_id, fingerprint)`,
	`CREATE TABLE IF NOT EXISTS session_results (
		id               TEXT PRIMARY KEY,
		session_id       TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		conversation_id  TEXT NOT NULL DEFAULT '',
		subtype          TEXT NOT NULL,
		is_error         INTEGER NOT NULL DEFAULT 0,
		num_turns        INTEGER NOT NULL DEFAULT 0,
		duration_ms      INTEGER NOT NULL DEFAULT 0,
		cost_usd         REAL NOT NULL DEFAULT 0,
		input_tokens     INTEGER NOT NULL DEFAULT 0,
		output_tokens    INTEGER NOT NULL DEFAULT 0,
		created_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_results_session
		ON session_results(session_id, created_at)`,
}

// Migrate creates the session tables if they do not exist.
func Migrate(ctx context.Context, database *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
