// Package approval persists pending approvals and one-shot pre-approved
// fingerprints, scoped per session.
package approval

import (
	"context"

	"github.com/hive-dev/hive/internal/session/models"
)

// Store is durable CRUD over PendingApproval and PreApprovedFingerprint.
//
// Storage failures are propagated, never masked: silently dropping a
// pending approval would mean a later approve click matches nothing, and
// allowing a call the store could not check would defeat the gate.
type Store interface {
	// CreatePending inserts a new pending approval and generates its id.
	CreatePending(ctx context.Context, sessionID, toolUseID, toolName string, toolInput map[string]any, fingerprint string) (*models.PendingApproval, error)

	// GetPending returns one pending approval, or nil if it no longer exists.
	GetPending(ctx context.Context, id string) (*models.PendingApproval, error)

	// ListPending returns all pending approvals for a session in creation order.
	ListPending(ctx context.Context, sessionID string) ([]*models.PendingApproval, error)

	// DeletePending removes one entry. Deleting a missing id is a no-op.
	DeletePending(ctx context.Context, id string) error

	// DeleteAllPending bulk-clears a session's pending approvals.
	DeleteAllPending(ctx context.Context, sessionID string) error

	// CreatePreApproval inserts a one-shot authorization for (session, fingerprint).
	CreatePreApproval(ctx context.Context, sessionID, fingerprint string) (*models.PreApprovedFingerprint, error)

	// FindPreApproval looks up a pre-approval by exact (session, fingerprint)
	// pair. Returns nil when absent; never matches across sessions.
	FindPreApproval(ctx context.Context, sessionID, fingerprint string) (*models.PreApprovedFingerprint, error)

	// ConsumePreApproval deletes a pre-approval by id. Idempotent.
	ConsumePreApproval(ctx context.Context, id string) error

	// DeleteAllPreApprovals clears a session's unconsumed pre-approvals,
	// used on session teardown to garbage-collect orphans.
	DeleteAllPreApprovals(ctx context.Context, sessionID string) error
}
