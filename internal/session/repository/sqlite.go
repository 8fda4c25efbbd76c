package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	apperrors "github.com/hive-dev/hive/internal/common/errors"
	"github.com/hive-dev/hive/internal/session/models"
)

// SQLiteStore implements Store on SQLite via sqlx.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a store over an already-migrated database.
func NewSQLiteStore(db *sqlx.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.StatusIdle
	}
	if session.PermissionMode == "" {
		session.PermissionMode = models.PermissionModeDefault
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO sessions (id, conversation_id, cwd, model, permission_mode, permission_mode_expires_at, status, created_at, updated_at)
		 VALUES (:id, :conversation_id, :cwd, :model, :permission_mode, :permission_mode_expires_at, :status, :created_at, :updated_at)`,
		session)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.GetContext(ctx, &session,
		`SELECT id, conversation_id, cwd, model, permission_mode, permission_mode_expires_at, status, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.db.SelectContext(ctx, &sessions,
		`SELECT id, conversation_id, cwd, model, permission_mode, permission_mode_expires_at, status, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status models.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) SetConversationID(ctx context.Context, id, conversationID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET conversation_id = ?, updated_at = ? WHERE id = ?`,
		conversationID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set conversation id: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) SetPermissionMode(ctx context.Context, id, mode string, expiresAt *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET permission_mode = ?, permission_mode_expires_at = ?, updated_at = ? WHERE id = ?`,
		mode, expiresAt, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to set permission mode: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_results WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session results: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) CreateResult(ctx context.Context, result *models.SessionResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO session_results (id, session_id, conversation_id, subtype, is_error, num_turns, duration_ms, cost_usd, input_tokens, output_tokens, created_at)
		 VALUES (:id, :session_id, :conversation_id, :subtype, :is_error, :num_turns, :duration_ms, :cost_usd, :input_tokens, :output_tokens, :created_at)`,
		result)
	if err != nil {
		return fmt.Errorf("failed to insert session result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, sessionID string) ([]*models.SessionResult, error) {
	var results []*models.SessionResult
	err := s.db.SelectContext(ctx, &results,
		`SELECT id, session_id, conversation_id, subtype, is_error, num_turns, duration_ms, cost_usd, input_tokens, output_tokens, created_at
		 FROM session_results WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list session results: %w", err)
	}
	return results, nil
}

func requireRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return apperrors.NotFound("session", id)
	}
	return nil
}
