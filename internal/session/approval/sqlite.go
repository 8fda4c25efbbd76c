package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

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

// pendingRow is the sqlx row shape; tool_input is stored as a JSON blob.
type pendingRow struct {
	ID          string    `db:"id"`
	SessionID   string    `db:"session_id"`
	ToolUseID   string    `db:"tool_use_id"`
	ToolName    string    `db:"tool_name"`
	ToolInput   string    `db:"tool_input"`
	Fingerprint string    `db:"fingerprint"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r *pendingRow) toModel() (*models.PendingApproval, error) {
	var input map[string]any
	if r.ToolInput != "" {
		if err := json.Unmarshal([]byte(r.ToolInput), &input); err != nil {
			return nil, fmt.Errorf("failed to decode tool input for approval %s: %w", r.ID, err)
		}
	}
	return &models.PendingApproval{
		ID:          r.ID,
		SessionID:   r.SessionID,
		ToolUseID:   r.ToolUseID,
		ToolName:    r.ToolName,
		ToolInput:   input,
		Fingerprint: r.Fingerprint,
		CreatedAt:   r.CreatedAt,
	}, nil
}

func (s *SQLiteStore) CreatePending(ctx context.Context, sessionID, toolUseID, toolName string, toolInput map[string]any, fingerprint string) (*models.PendingApproval, error) {
	if toolInput == nil {
		toolInput = map[string]any{}
	}
	inputJSON, err := json.Marshal(toolInput)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool input: %w", err)
	}

	pending := &models.PendingApproval{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		ToolUseID:   toolUseID,
		ToolName:    toolName,
		ToolInput:   toolInput,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO pending_approvals (id, session_id, tool_use_id, tool_name, tool_input, fingerprint, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pending.ID, pending.SessionID, pending.ToolUseID, pending.ToolName,
		string(inputJSON), pending.Fingerprint, pending.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pending approval: %w", err)
	}
	return pending, nil
}

func (s *SQLiteStore) GetPending(ctx context.Context, id string) (*models.PendingApproval, error) {
	var row pendingRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, session_id, tool_use_id, tool_name, tool_input, fingerprint, created_at
		 FROM pending_approvals WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending approval: %w", err)
	}
	return row.toModel()
}

func (s *SQLiteStore) ListPending(ctx context.Context, sessionID string) ([]*models.PendingApproval, error) {
	var rows []pendingRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, session_id, tool_use_id, tool_name, tool_input, fingerprint, created_at
		 FROM pending_approvals WHERE session_id = ? ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}

	result := make([]*models.PendingApproval, 0, len(rows))
	for i := range rows {
		pending, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		result = append(result, pending)
	}
	return result, nil
}

func (s *SQLiteStore) DeletePending(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_approvals WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending approval: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllPending(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_approvals WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear pending approvals: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreatePreApproval(ctx context.Context, sessionID, fingerprint string) (*models.PreApprovedFingerprint, error) {
	pre := &models.PreApprovedFingerprint{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		CreatedAt:   time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approved_fingerprints (id, session_id, fingerprint, created_at)
		 VALUES (?, ?, ?, ?)`,
		pre.ID, pre.SessionID, pre.Fingerprint, pre.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pre-approval: %w", err)
	}
	return pre, nil
}

func (s *SQLiteStore) FindPreApproval(ctx context.Context, sessionID, fingerprint string) (*models.PreApprovedFingerprint, error) {
	var pre models.PreApprovedFingerprint
	err := s.db.GetContext(ctx, &pre,
		`SELECT id, session_id, fingerprint, created_at
		 FROM approved_fingerprints
		 WHERE session_id = ? AND fingerprint = ?
		 ORDER BY created_at, id LIMIT 1`,
		sessionID, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pre-approval: %w", err)
	}
	return &pre, nil
}

func (s *SQLiteStore) ConsumePreApproval(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM approved_fingerprints WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to consume pre-approval: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllPreApprovals(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM approved_fingerprints WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear pre-approvals: %w", err)
	}
	return nil
}
