package manager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/hive-dev/hive/internal/common/errors"
	"github.com/hive-dev/hive/internal/engine"
	"github.com/hive-dev/hive/internal/session/models"
	"github.com/hive-dev/hive/pkg/agentwire"
)

// Interrupt stops a running conversation. Status reflects user intent
// immediately: the synthetic interrupted result and the idle transition
// happen before the engine acknowledges cancellation.
func (m *Manager) Interrupt(ctx context.Context, sessionID string) error {
	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	handle := m.live[sessionID]
	generation := m.gens[sessionID]
	var conv engine.Conversation
	if handle != nil {
		handle.interrupted.Store(true)
		conv = handle.conv
	}
	m.mu.Unlock()

	m.publishMessage(ctx, sessionID, generation, &agentwire.Message{
		Type:    agentwire.MessageTypeResult,
		Subtype: models.ResultInterrupted,
	})

	result := &models.SessionResult{
		SessionID:      sessionID,
		ConversationID: session.ConversationID,
		Subtype:        models.ResultInterrupted,
	}
	if err := m.repo.CreateResult(ctx, result); err != nil {
		m.logger.WithSessionID(sessionID).WithError(err).Error("failed to persist interrupt result")
	} else {
		m.publishResult(ctx, result)
	}

	m.setStatus(ctx, sessionID, models.StatusIdle, generation)

	// Best-effort, after the state transition: the engine is told to abort
	// but the user-visible contract does not wait for it.
	if conv != nil {
		go func() {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := conv.Interrupt(cancelCtx); err != nil {
				m.logger.WithSessionID(sessionID).WithError(err).Warn("engine interrupt failed")
			}
			_ = conv.Close()
		}()
	}

	m.logger.WithSessionID(sessionID).Info("session interrupted", zap.Uint64("generation", generation))
	return nil
}

// Approve converts one pending approval into a one-shot pre-approval. If
// other approvals remain for the session it returns without resuming;
// otherwise it resumes the conversation and blocks until the next segment
// ends. Approving an id that no longer exists is a benign no-op.
func (m *Manager) Approve(ctx context.Context, sessionID, approvalID string) error {
	pending, err := m.approvals.GetPending(ctx, approvalID)
	if err != nil {
		return err
	}
	if pending == nil || pending.SessionID != sessionID {
		// Already resolved; tolerate double-submission races.
		return nil
	}

	if _, err := m.approvals.CreatePreApproval(ctx, sessionID, pending.Fingerprint); err != nil {
		return err
	}
	if err := m.approvals.DeletePending(ctx, approvalID); err != nil {
		return err
	}
	m.publishApprovalResolved(ctx, sessionID, 1, false)

	remaining, err := m.approvals.ListPending(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		m.logger.WithSessionID(sessionID).Info("approval recorded, more pending",
			zap.Int("remaining", len(remaining)))
		return nil
	}

	return m.run(ctx, sessionID, approvedContinuation)
}

// ApproveAll approves every pending approval for the session in one batch,
// then resumes exactly once.
func (m *Manager) ApproveAll(ctx context.Context, sessionID string) error {
	pending, err := m.approvals.ListPending(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	for _, p := range pending {
		if _, err := m.approvals.CreatePreApproval(ctx, sessionID, p.Fingerprint); err != nil {
			return err
		}
		if err := m.approvals.DeletePending(ctx, p.ID); err != nil {
			return err
		}
	}
	m.publishApprovalResolved(ctx, sessionID, len(pending), true)

	return m.run(ctx, sessionID, approvedContinuation)
}

// Deny rejects one pending approval and clears the session's entire pending
// batch: if the agent's plan is rejected, the rest of the same plan is
// presumed invalid too. The conversation then resumes with a denial prompt.
func (m *Manager) Deny(ctx context.Context, sessionID, approvalID, reason string) error {
	pending, err := m.approvals.GetPending(ctx, approvalID)
	if err != nil {
		return err
	}
	if pending == nil || pending.SessionID != sessionID {
		return nil
	}

	batch, err := m.approvals.ListPending(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := m.approvals.DeleteAllPending(ctx, sessionID); err != nil {
		return err
	}
	m.publishApprovalResolved(ctx, sessionID, len(batch), true)

	prompt := fmt.Sprintf("%s\nDenied tool: %s.", deniedContinuation, pending.ToolName)
	if reason != "" {
		prompt = fmt.Sprintf("%s\nReason given by the user: %s", prompt, reason)
	}
	return m.run(ctx, sessionID, prompt)
}

// SetPermissionMode persists the session's permission mode (with optional
// expiry) and forwards it to the live conversation when one is open.
func (m *Manager) SetPermissionMode(ctx context.Context, sessionID, mode string, expiresAt *time.Time) error {
	switch mode {
	case models.PermissionModeDefault, models.PermissionModeAcceptSafe,
		models.PermissionModeBypassAll, models.PermissionModePlan:
	default:
		return apperrors.ValidationError("mode", fmt.Sprintf("unknown permission mode %q", mode))
	}

	if err := m.repo.SetPermissionMode(ctx, sessionID, mode, expiresAt); err != nil {
		return err
	}

	m.mu.Lock()
	handle := m.live[sessionID]
	var conv engine.Conversation
	if handle != nil {
		conv = handle.conv
	}
	m.mu.Unlock()

	if conv != nil {
		if err := conv.SetPermissionMode(mode); err != nil {
			return apperrors.Wrap(err, "failed to forward permission mode to engine")
		}
	}
	return nil
}

// ListPendingApprovals returns the session's pending approvals in creation order.
func (m *Manager) ListPendingApprovals(ctx context.Context, sessionID string) ([]*models.PendingApproval, error) {
	return m.approvals.ListPending(ctx, sessionID)
}

// ClearPendingApprovals resets the session's approval state: pending
// approvals and any orphaned unconsumed pre-approvals are removed.
func (m *Manager) ClearPendingApprovals(ctx context.Context, sessionID string) error {
	if err := m.approvals.DeleteAllPending(ctx, sessionID); err != nil {
		return err
	}
	return m.approvals.DeleteAllPreApprovals(ctx, sessionID)
}

// Busy reports whether the session currently has a live conversation.
func (m *Manager) Busy(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live[sessionID] != nil
}

// DeleteSession removes a session and everything recorded under it. A
// session with a live conversation must be interrupted first.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := m.repo.GetSession(ctx, sessionID); err != nil {
		return err
	}
	if m.Busy(sessionID) {
		return ErrSessionBusy()
	}
	if err := m.approvals.DeleteAllPending(ctx, sessionID); err != nil {
		return err
	}
	if err := m.approvals.DeleteAllPreApprovals(ctx, sessionID); err != nil {
		return err
	}
	if err := m.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	m.publishDeleted(ctx, sessionID)
	return nil
}

// GetSession returns one session.
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return m.repo.GetSession(ctx, sessionID)
}

// ListSessions returns all sessions, newest first.
func (m *Manager) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return m.repo.ListSessions(ctx)
}

// ListResults returns the session's turn results in creation order.
func (m *Manager) ListResults(ctx context.Context, sessionID string) ([]*models.SessionResult, error) {
	return m.repo.ListResults(ctx, sessionID)
}
