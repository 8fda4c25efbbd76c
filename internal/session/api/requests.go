// Package api provides HTTP handlers for the session orchestration API.
package api

import (
	"time"

	"github.com/hive-dev/hive/internal/session/models"
)

// CreateSessionRequest for creating a session
type CreateSessionRequest struct {
	Cwd            string `json:"cwd" binding:"required"`
	Model          string `json:"model,omitempty"`
	PermissionMode string `json:"permission_mode,omitempty"`
}

// StartSessionRequest for starting or continuing a conversation
type StartSessionRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// DenyApprovalRequest for rejecting a pending tool call
type DenyApprovalRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SetPermissionModeRequest for changing the session permission mode.
// TTLSeconds limits how long an elevated mode stays in effect; zero
// means no expiry.
type SetPermissionModeRequest struct {
	Mode       string `json:"mode" binding:"required"`
	TTLSeconds int    `json:"ttl_seconds,omitempty"`
}

// Response types

// SessionResponse represents a session in API responses
type SessionResponse struct {
	ID                      string     `json:"id"`
	ConversationID          string     `json:"conversation_id,omitempty"`
	Cwd                     string     `json:"cwd"`
	Model                   string     `json:"model,omitempty"`
	PermissionMode          string     `json:"permission_mode"`
	PermissionModeExpiresAt *time.Time `json:"permission_mode_expires_at,omitempty"`
	Status                  string     `json:"status"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// SessionsListResponse for listing sessions
type SessionsListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

// ApprovalResponse represents one pending tool call awaiting a decision
type ApprovalResponse struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	ToolUseID   string         `json:"tool_use_id"`
	ToolName    string         `json:"tool_name"`
	ToolInput   map[string]any `json:"tool_input"`
	Fingerprint string         `json:"fingerprint"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ApprovalsListResponse for listing pending approvals
type ApprovalsListResponse struct {
	Approvals []*ApprovalResponse `json:"approvals"`
	Total     int                 `json:"total"`
}

// ResultResponse represents one completed turn outcome
type ResultResponse struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Subtype        string    `json:"subtype"`
	IsError        bool      `json:"is_error"`
	NumTurns       int       `json:"num_turns"`
	DurationMS     int64     `json:"duration_ms"`
	CostUSD        float64   `json:"cost_usd"`
	InputTokens    int64     `json:"input_tokens"`
	OutputTokens   int64     `json:"output_tokens"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResultsListResponse for listing a session's results
type ResultsListResponse struct {
	Results []*ResultResponse `json:"results"`
	Total   int               `json:"total"`
}

// AcceptedResponse acknowledges an operation that continues in the
// background; progress is reported over the event stream.
type AcceptedResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Helper functions to convert models to response types

func sessionToResponse(s *models.Session) *SessionResponse {
	return &SessionResponse{
		ID:                      s.ID,
		ConversationID:          s.ConversationID,
		Cwd:                     s.Cwd,
		Model:                   s.Model,
		PermissionMode:          s.PermissionMode,
		PermissionModeExpiresAt: s.PermissionModeExpiresAt,
		Status:                  string(s.Status),
		CreatedAt:               s.CreatedAt,
		UpdatedAt:               s.UpdatedAt,
	}
}

func approvalToResponse(a *models.PendingApproval) *ApprovalResponse {
	return &ApprovalResponse{
		ID:          a.ID,
		SessionID:   a.SessionID,
		ToolUseID:   a.ToolUseID,
		ToolName:    a.ToolName,
		ToolInput:   a.ToolInput,
		Fingerprint: a.Fingerprint,
		CreatedAt:   a.CreatedAt,
	}
}

func resultToResponse(r *models.SessionResult) *ResultResponse {
	return &ResultResponse{
		ID:             r.ID,
		SessionID:      r.SessionID,
		ConversationID: r.ConversationID,
		Subtype:        r.Subtype,
		IsError:        r.IsError,
		NumTurns:       r.NumTurns,
		DurationMS:     r.DurationMS,
		CostUSD:        r.CostUSD,
		InputTokens:    r.InputTokens,
		OutputTokens:   r.OutputTokens,
		CreatedAt:      r.CreatedAt,
	}
}
