// Package gate holds the single authorization decision point invoked once
// per tool call, before the tool executes.
package gate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/session/approval"
	"github.com/hive-dev/hive/internal/session/fingerprint"
	"github.com/hive-dev/hive/internal/session/models"
)

// DenialMessage is returned to the engine with every deny. It is
// deliberately forceful: the engine is a language-model loop that may
// otherwise rationalize around a denial and claim the action succeeded.
const DenialMessage = "PERMISSION DENIED. This tool call requires explicit human approval before it can run. " +
	"STOP IMMEDIATELY. Do not attempt this action again, do not work around the denial, " +
	"and do not claim the action was performed. End your turn now and wait for the user's decision."

// Decision is the gate's verdict for one tool call.
type Decision struct {
	Allow bool

	// Message is the denial instruction sent back to the engine.
	Message string

	// Pending is the approval record created on deny.
	Pending *models.PendingApproval
}

// Notifier observes gate denials. The session manager uses this to flip the
// session to waiting and broadcast the permission request.
type Notifier interface {
	PermissionRequested(ctx context.Context, pending *models.PendingApproval)
}

// Gate decides, per tool call, whether a one-shot pre-approval exists. If
// so it consumes the pre-approval and allows; otherwise it records a
// pending approval and denies.
type Gate struct {
	store    approval.Store
	notifier Notifier
	logger   *logger.Logger

	// mu makes find+consume atomic so two concurrent calls with the same
	// fingerprint cannot both be allowed by a single pre-approval.
	mu sync.Mutex
}

// New creates a gate. notifier may be nil.
func New(store approval.Store, notifier Notifier, log *logger.Logger) *Gate {
	return &Gate{
		store:    store,
		notifier: notifier,
		logger:   log.WithFields(zap.String("component", "permission-gate")),
	}
}

// Decide authorizes or parks one tool call. Storage failures are returned
// as errors; the caller must treat them as deny, never allow.
func (g *Gate) Decide(ctx context.Context, sessionID, toolName string, toolInput map[string]any, toolUseID string) (Decision, error) {
	fp := fingerprint.Compute(toolName, toolInput)
	log := g.logger.WithSessionID(sessionID).WithFields(
		zap.String("tool_name", toolName),
		zap.String("tool_use_id", toolUseID),
		zap.String("fingerprint", fp),
	)

	g.mu.Lock()
	pre, err := g.store.FindPreApproval(ctx, sessionID, fp)
	if err != nil {
		g.mu.Unlock()
		return Decision{}, err
	}
	if pre != nil {
		// One-shot: consumed before returning allow, so a retried
		// identical call is not silently auto-approved twice.
		if err := g.store.ConsumePreApproval(ctx, pre.ID); err != nil {
			g.mu.Unlock()
			return Decision{}, err
		}
		g.mu.Unlock()

		log.Info("tool call allowed by pre-approval", zap.String("pre_approval_id", pre.ID))
		return Decision{Allow: true}, nil
	}
	g.mu.Unlock()

	pending, err := g.store.CreatePending(ctx, sessionID, toolUseID, toolName, toolInput, fp)
	if err != nil {
		return Decision{}, err
	}

	log.Info("tool call denied pending approval", zap.String("approval_id", pending.ID))

	if g.notifier != nil {
		g.notifier.PermissionRequested(ctx, pending)
	}

	return Decision{
		Allow:   false,
		Message: DenialMessage,
		Pending: pending,
	}, nil
}
