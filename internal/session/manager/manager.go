// Package manager owns the lifecycle of each logical session: starting and
// resuming conversations, interrupting them, and routing approve/deny
// commands into resumed conversations.
package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/hive-dev/hive/internal/common/errors"
	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/engine"
	"github.com/hive-dev/hive/internal/events/bus"
	"github.com/hive-dev/hive/internal/session/approval"
	"github.com/hive-dev/hive/internal/session/gate"
	"github.com/hive-dev/hive/internal/session/models"
	"github.com/hive-dev/hive/internal/session/repository"
	"github.com/hive-dev/hive/pkg/agentwire"
)

// Continuation prompts used when a conversation is resumed after an
// approval decision.
const (
	approvedContinuation = "The tool call you previously requested has been approved. " +
		"Continue your previous task from where you stopped and re-run the approved action."

	deniedContinuation = "The tool call you previously requested was DENIED by the user. " +
		"Do not retry it and do not claim it was performed. " +
		"Take a different approach, or ask the user how to proceed."
)

// ErrSessionBusy is returned when a start/resume targets a session that
// already has a live conversation.
func ErrSessionBusy() *apperrors.AppError {
	return apperrors.Conflict("session already has a live conversation")
}

// liveSession is the in-memory handle for one open conversation. At most
// one exists per session id at a time.
type liveSession struct {
	conv        engine.Conversation
	generation  uint64
	interrupted atomic.Bool
}

// Manager coordinates sessions, the approval store, the permission gate,
// and the engine. All public methods are safe for concurrent use; a single
// session's conversation is always owned by exactly one run loop.
type Manager struct {
	repo      repository.Store
	approvals approval.Store
	engine    engine.Engine
	bus       bus.EventBus
	gate      *gate.Gate
	logger    *logger.Logger

	mu   sync.Mutex
	live map[string]*liveSession
	gens map[string]uint64
}

// New creates a session manager. The manager acts as the gate's notifier so
// denials immediately flip the session to waiting and notify observers.
func New(repo repository.Store, approvals approval.Store, eng engine.Engine, eventBus bus.EventBus, log *logger.Logger) *Manager {
	m := &Manager{
		repo:      repo,
		approvals: approvals,
		engine:    eng,
		bus:       eventBus,
		logger:    log.WithFields(zap.String("component", "session-manager")),
		live:      make(map[string]*liveSession),
		gens:      make(map[string]uint64),
	}
	m.gate = gate.New(approvals, m, log)
	return m
}

// Gate exposes the permission gate, used by tests and diagnostics.
func (m *Manager) Gate() *gate.Gate {
	return m.gate
}

// CreateSession registers a new session bound to one working directory.
func (m *Manager) CreateSession(ctx context.Context, cwd, model, permissionMode string) (*models.Session, error) {
	if cwd == "" {
		return nil, apperrors.ValidationError("cwd", "must not be empty")
	}

	session := &models.Session{
		Cwd:            cwd,
		Model:          model,
		PermissionMode: permissionMode,
		Status:         models.StatusIdle,
	}
	if err := m.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	m.publishCreated(ctx, session)
	m.logger.WithSessionID(session.ID).Info("session created", zap.String("cwd", cwd))
	return session, nil
}

// Start opens a conversation for the session and blocks until it ends.
// If the session has an engine conversation id from a previous turn, the
// conversation resumes there.
func (m *Manager) Start(ctx context.Context, sessionID, prompt string) error {
	return m.run(ctx, sessionID, prompt)
}

// run is the single conversation loop per session: open, consume the
// message stream, persist the result, and settle the final status.
func (m *Manager) run(ctx context.Context, sessionID, prompt string) error {
	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	log := m.logger.WithSessionID(sessionID)

	m.mu.Lock()
	if _, busy := m.live[sessionID]; busy {
		m.mu.Unlock()
		return ErrSessionBusy()
	}
	m.gens[sessionID]++
	generation := m.gens[sessionID]
	handle := &liveSession{generation: generation}
	m.live[sessionID] = handle
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.live[sessionID] == handle {
			delete(m.live, sessionID)
		}
		m.mu.Unlock()
	}()

	// An expired elevated permission mode falls back to default at open.
	mode := session.EffectivePermissionMode(time.Now().UTC())
	if mode != session.PermissionMode {
		log.Info("permission mode expired, falling back to default",
			zap.String("previous_mode", session.PermissionMode))
		if err := m.repo.SetPermissionMode(ctx, sessionID, mode, nil); err != nil {
			log.WithError(err).Warn("failed to persist permission mode fallback")
		}
	}

	m.setStatus(ctx, sessionID, models.StatusRunning, generation)

	conv, err := m.engine.Open(ctx, prompt, engine.OpenOptions{
		Resume:         session.ConversationID,
		Cwd:            session.Cwd,
		Model:          session.Model,
		PermissionMode: mode,
		CanUseTool: func(ctx context.Context, toolName string, input map[string]any, toolUseID string) engine.PermissionDecision {
			return m.decideToolCall(ctx, sessionID, toolName, input, toolUseID)
		},
	})
	if err != nil {
		m.setStatus(ctx, sessionID, models.StatusError, generation)
		return apperrors.Wrap(err, "failed to open conversation")
	}

	m.mu.Lock()
	handle.conv = conv
	m.mu.Unlock()

	log.Info("conversation opened",
		zap.Uint64("generation", generation),
		zap.Bool("resumed", session.ConversationID != ""))

	var sawResult bool
	for msg := range conv.Messages() {
		// Stale deliveries after an interrupt are discarded; the session
		// already moved on.
		if handle.interrupted.Load() {
			continue
		}

		switch msg.Type {
		case agentwire.MessageTypeSystem:
			// The engine assigns the conversation id once; subsequent
			// resumes keep reusing it.
			if msg.ConversationID != "" && session.ConversationID == "" {
				session.ConversationID = msg.ConversationID
				if err := m.repo.SetConversationID(ctx, sessionID, msg.ConversationID); err != nil {
					log.WithError(err).Error("failed to persist conversation id")
				}
			}
		case agentwire.MessageTypeResult:
			sawResult = true
			if err := m.persistResult(ctx, session, msg); err != nil {
				log.WithError(err).Error("failed to persist session result")
			}
		}

		m.publishMessage(ctx, sessionID, generation, msg)
	}
	_ = conv.Close()

	if handle.interrupted.Load() {
		// Interrupt already recorded the result and set the status.
		return nil
	}

	if !sawResult {
		// Abnormal end: the stream was exhausted without a terminal result.
		m.setStatus(ctx, sessionID, models.StatusError, generation)
		log.Error("conversation ended without a result")
		return apperrors.InternalError("conversation ended without a result", nil)
	}

	pending, err := m.approvals.ListPending(ctx, sessionID)
	if err != nil {
		m.setStatus(ctx, sessionID, models.StatusError, generation)
		return err
	}
	if len(pending) > 0 {
		m.setStatus(ctx, sessionID, models.StatusWaiting, generation)
	} else {
		m.setStatus(ctx, sessionID, models.StatusIdle, generation)
	}
	return nil
}

// decideToolCall adapts the gate's verdict to the engine callback. Storage
// failures deny: allowing a call the store could not check would defeat the
// approval guarantee.
func (m *Manager) decideToolCall(ctx context.Context, sessionID, toolName string, input map[string]any, toolUseID string) engine.PermissionDecision {
	decision, err := m.gate.Decide(ctx, sessionID, toolName, input, toolUseID)
	if err != nil {
		m.logger.WithSessionID(sessionID).WithError(err).Error("permission gate failed")
		return engine.PermissionDecision{
			Behavior: agentwire.BehaviorDeny,
			Message:  "Permission check failed due to a storage error. Stop immediately and wait for the user.",
		}
	}
	if decision.Allow {
		return engine.PermissionDecision{Behavior: agentwire.BehaviorAllow}
	}
	return engine.PermissionDecision{
		Behavior:  agentwire.BehaviorDeny,
		Message:   decision.Message,
		Interrupt: false,
	}
}

// PermissionRequested implements gate.Notifier: a denial flips the session
// to waiting and notifies observers with the pending approval's identity.
func (m *Manager) PermissionRequested(ctx context.Context, pending *models.PendingApproval) {
	m.mu.Lock()
	generation := m.gens[pending.SessionID]
	m.mu.Unlock()

	m.setStatus(ctx, pending.SessionID, models.StatusWaiting, generation)
	m.publishPermissionRequested(ctx, pending)
}

// persistResult appends one SessionResult row from the engine's terminal
// result message.
func (m *Manager) persistResult(ctx context.Context, session *models.Session, msg *agentwire.Message) error {
	subtype := msg.Subtype
	if subtype == "" {
		if msg.IsError {
			subtype = models.ResultError
		} else {
			subtype = models.ResultSuccess
		}
	}
	result := &models.SessionResult{
		SessionID:      session.ID,
		ConversationID: session.ConversationID,
		Subtype:        subtype,
		IsError:        msg.IsError,
		NumTurns:       msg.NumTurns,
		DurationMS:     msg.DurationMS,
		CostUSD:        msg.CostUSD,
		InputTokens:    msg.TotalInputTokens,
		OutputTokens:   msg.TotalOutputTokens,
	}
	if err := m.repo.CreateResult(ctx, result); err != nil {
		return err
	}
	m.publishResult(ctx, result)
	return nil
}

// setStatus persists and broadcasts a status transition. Persistence
// failures are logged, not propagated; status is advisory for observers and
// the next operation re-reads the row.
func (m *Manager) setStatus(ctx context.Context, sessionID string, status models.Status, generation uint64) {
	if err := m.repo.UpdateStatus(ctx, sessionID, status); err != nil {
		m.logger.WithSessionID(sessionID).WithError(err).Error("failed to update session status",
			zap.String("status", string(status)))
		return
	}
	m.publishStatus(ctx, sessionID, status, generation)
}
