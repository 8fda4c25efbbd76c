// Package models defines the session domain entities persisted by the
// session repository and approval store.
package models

import "time"

// Status is the session lifecycle state.
type Status string

const (
	// StatusIdle means no conversation is running and nothing is pending.
	StatusIdle Status = "idle"
	// StatusRunning means a conversation is live.
	StatusRunning Status = "running"
	// StatusWaiting means the last turn ended with approvals outstanding.
	StatusWaiting Status = "waiting"
	// StatusError means the last conversation failed.
	StatusError Status = "error"
)

// Permission modes forwarded to the engine.
const (
	PermissionModeDefault    = "default"
	PermissionModeAcceptSafe = "acceptEdits"
	PermissionModeBypassAll  = "bypassPermissions"
	PermissionModePlan       = "plan"
)

// Session is a logical, resumable conversation thread bound to one working
// directory. ConversationID is assigned by the engine on the first init
// message and reused on every resume.
type Session struct {
	ID                       string     `db:"id" json:"id"`
	ConversationID           string     `db:"conversation_id" json:"conversation_id,omitempty"`
	Cwd                      string     `db:"cwd" json:"cwd"`
	Model                    string     `db:"model" json:"model,omitempty"`
	PermissionMode           string     `db:"permission_mode" json:"permission_mode"`
	PermissionModeExpiresAt  *time.Time `db:"permission_mode_expires_at" json:"permission_mode_expires_at,omitempty"`
	Status                   Status     `db:"status" json:"status"`
	CreatedAt                time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt                time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectivePermissionMode returns the session's permission mode, falling
// back to default once an elevated mode has expired.
func (s *Session) EffectivePermissionMode(now time.Time) string {
	if s.PermissionMode == "" {
		return PermissionModeDefault
	}
	if s.PermissionModeExpiresAt != nil && now.After(*s.PermissionModeExpiresAt) {
		return PermissionModeDefault
	}
	return s.PermissionMode
}

// PendingApproval is a durable record of one tool call awaiting a human
// decision. ToolUseID is the engine's call identifier; Fingerprint is the
// canonical hash of (tool name, tool input).
type PendingApproval struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	ToolUseID   string         `json:"tool_use_id"`
	ToolName    string         `json:"tool_name"`
	ToolInput   map[string]any `json:"tool_input"`
	Fingerprint string         `json:"fingerprint"`
	CreatedAt   time.Time      `json:"created_at"`
}

// PreApprovedFingerprint is a one-shot authorization for a specific
// (session, fingerprint) pair, consumed on first match.
type PreApprovedFingerprint struct {
	ID          string    `db:"id" json:"id"`
	SessionID   string    `db:"session_id" json:"session_id"`
	Fingerprint string    `db:"fingerprint" json:"fingerprint"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Result subtypes recorded for completed turns.
const (
	ResultSuccess     = "success"
	ResultInterrupted = "interrupted"
	ResultError       = "error"
)

// SessionResult is an immutable record of one completed turn's outcome,
// append-only per session.
type SessionResult struct {
	ID             string    `db:"id" json:"id"`
	SessionID      string    `db:"session_id" json:"session_id"`
	ConversationID string    `db:"conversation_id" json:"conversation_id,omitempty"`
	Subtype        string    `db:"subtype" json:"subtype"`
	IsError        bool      `db:"is_error" json:"is_error"`
	NumTurns       int       `db:"num_turns" json:"num_turns"`
	DurationMS     int64     `db:"duration_ms" json:"duration_ms"`
	CostUSD        float64   `db:"cost_usd" json:"cost_usd"`
	InputTokens    int64     `db:"input_tokens" json:"input_tokens"`
	OutputTokens   int64     `db:"output_tokens" json:"output_tokens"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
