package manager

import (
	"context"

	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/events"
	"github.com/hive-dev/hive/internal/events/bus"
	"github.com/hive-dev/hive/internal/session/models"
	"github.com/hive-dev/hive/pkg/agentwire"
)

const eventSource = "session-manager"

func (m *Manager) publish(ctx context.Context, eventType, subject string, data map[string]interface{}) {
	if m.bus == nil {
		return
	}
	event := bus.NewEvent(eventType, eventSource, data)
	if err := m.bus.Publish(ctx, subject, event); err != nil {
		m.logger.WithError(err).Warn("failed to publish event", zap.String("subject", subject))
	}
}

func (m *Manager) publishCreated(ctx context.Context, session *models.Session) {
	m.publish(ctx, events.SessionCreated, events.SessionCreated+"."+session.ID, map[string]interface{}{
		"session_id": session.ID,
		"cwd":        session.Cwd,
	})
}

func (m *Manager) publishDeleted(ctx context.Context, sessionID string) {
	m.publish(ctx, events.SessionDeleted, events.SessionDeleted+"."+sessionID, map[string]interface{}{
		"session_id": sessionID,
	})
}

func (m *Manager) publishStatus(ctx context.Context, sessionID string, status models.Status, generation uint64) {
	m.publish(ctx, events.SessionStatusChanged, events.BuildSessionStatusSubject(sessionID), map[string]interface{}{
		"session_id": sessionID,
		"status":     string(status),
		"generation": generation,
	})
}

func (m *Manager) publishMessage(ctx context.Context, sessionID string, generation uint64, msg *agentwire.Message) {
	m.publish(ctx, events.SessionMessage, events.BuildSessionMessageSubject(sessionID), map[string]interface{}{
		"session_id": sessionID,
		"generation": generation,
		"message":    msg,
	})
}

func (m *Manager) publishPermissionRequested(ctx context.Context, pending *models.PendingApproval) {
	m.publish(ctx, events.PermissionRequested, events.BuildPermissionRequestedSubject(pending.SessionID), map[string]interface{}{
		"session_id":  pending.SessionID,
		"approval_id": pending.ID,
		"tool_use_id": pending.ToolUseID,
		"tool_name":   pending.ToolName,
		"input":       pending.ToolInput,
		"fingerprint": pending.Fingerprint,
	})
}

func (m *Manager) publishResult(ctx context.Context, result *models.SessionResult) {
	m.publish(ctx, events.SessionResult, events.BuildSessionResultSubject(result.SessionID), map[string]interface{}{
		"session_id": result.SessionID,
		"subtype":    result.Subtype,
		"is_error":   result.IsError,
		"num_turns":  result.NumTurns,
		"cost_usd":   result.CostUSD,
	})
}

func (m *Manager) publishApprovalResolved(ctx context.Context, sessionID string, count int, all bool) {
	m.publish(ctx, events.ApprovalResolved, events.BuildApprovalResolvedSubject(sessionID), map[string]interface{}{
		"session_id": sessionID,
		"count":      count,
		"all":        all,
	})
}
