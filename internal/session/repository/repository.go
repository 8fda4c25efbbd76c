// Package repository persists sessions and their append-only result log.
package repository

import (
	"context"
	"time"

	"github.com/hive-dev/hive/internal/session/models"
)

// Store is durable CRUD over Session and SessionResult rows.
type Store interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, session *models.Session) error

	// GetSession returns a session by id, or a NotFound AppError.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// ListSessions returns all sessions, newest first.
	ListSessions(ctx context.Context) ([]*models.Session, error)

	// UpdateStatus sets the session status.
	UpdateStatus(ctx context.Context, id string, status models.Status) error

	// SetConversationID records the engine-assigned conversation id.
	SetConversationID(ctx context.Context, id, conversationID string) error

	// SetPermissionMode sets the permission mode and its optional expiry.
	SetPermissionMode(ctx context.Context, id, mode string, expiresAt *time.Time) error

	// DeleteSession removes a session and its results. NotFound when absent.
	DeleteSession(ctx context.Context, id string) error

	// CreateResult appends an immutable turn result.
	CreateResult(ctx context.Context, result *models.SessionResult) error

	// ListResults returns a session's results in creation order.
	ListResults(ctx context.Context, sessionID string) ([]*models.SessionResult, error)
}
