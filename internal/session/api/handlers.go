package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/common/errors"
	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/session/manager"
)

// Handler contains HTTP handlers for the session API
type Handler struct {
	manager *manager.Manager
	logger  *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(mgr *manager.Manager, log *logger.Logger) *Handler {
	return &Handler{
		manager: mgr,
		logger:  log,
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	var appErr *errors.AppError
	if !stderrors.As(err, &appErr) {
		appErr = errors.InternalError("internal error", err)
	}
	c.JSON(appErr.HTTPStatus, appErr)
}

// accepted acknowledges a long-running operation and hands back to the
// event stream for progress.
func (h *Handler) accepted(c *gin.Context, sessionID string) {
	c.JSON(http.StatusAccepted, AcceptedResponse{SessionID: sessionID, Status: "accepted"})
}

// Session endpoints

// CreateSession creates a new session
// POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	session, err := h.manager.CreateSession(c.Request.Context(), req.Cwd, req.Model, req.PermissionMode)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sessionToResponse(session))
}

// ListSessions returns all sessions, newest first
// GET /api/v1/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.manager.ListSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		h.respondError(c, err)
		return
	}

	resp := SessionsListResponse{
		Sessions: make([]*SessionResponse, len(sessions)),
		Total:    len(sessions),
	}
	for i, s := range sessions {
		resp.Sessions[i] = sessionToResponse(s)
	}

	c.JSON(http.StatusOK, resp)
}

// GetSession retrieves a session by ID
// GET /api/v1/sessions/:sessionId
func (h *Handler) GetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	session, err := h.manager.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(session))
}

// DeleteSession deletes a session and its approval and result records
// DELETE /api/v1/sessions/:sessionId
func (h *Handler) DeleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.manager.DeleteSession(c.Request.Context(), sessionID); err != nil {
		h.logger.Error("failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// StartSession starts or continues a conversation with a prompt. The
// conversation runs in the background; the response only acknowledges.
// POST /api/v1/sessions/:sessionId/start
func (h *Handler) StartSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}
	if h.manager.Busy(sessionID) {
		h.respondError(c, manager.ErrSessionBusy())
		return
	}

	go func() {
		if err := h.manager.Start(context.Background(), sessionID, req.Prompt); err != nil {
			h.logger.WithSessionID(sessionID).WithError(err).Error("conversation failed")
		}
	}()

	h.accepted(c, sessionID)
}

// InterruptSession stops the session's running conversation
// POST /api/v1/sessions/:sessionId/interrupt
func (h *Handler) InterruptSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.manager.Interrupt(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetPermissionMode changes the session's permission mode, optionally
// with a TTL after which the mode falls back to default
// PUT /api/v1/sessions/:sessionId/permission-mode
func (h *Handler) SetPermissionMode(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req SetPermissionModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	var expiresAt *time.Time
	if req.TTLSeconds > 0 {
		t := time.Now().UTC().Add(time.Duration(req.TTLSeconds) * time.Second)
		expiresAt = &t
	}

	if err := h.manager.SetPermissionMode(c.Request.Context(), sessionID, req.Mode, expiresAt); err != nil {
		h.respondError(c, err)
		return
	}

	session, err := h.manager.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(session))
}

// ListResults returns the session's completed turn outcomes
// GET /api/v1/sessions/:sessionId/results
func (h *Handler) ListResults(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	results, err := h.manager.ListResults(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list results", zap.String("session_id", sessionID), zap.Error(err))
		h.respondError(c, err)
		return
	}

	resp := ResultsListResponse{
		Results: make([]*ResultResponse, len(results)),
		Total:   len(results),
	}
	for i, r := range results {
		resp.Results[i] = resultToResponse(r)
	}

	c.JSON(http.StatusOK, resp)
}

// Approval endpoints

// ListApprovals returns the session's pending tool approvals
// GET /api/v1/sessions/:sessionId/approvals
func (h *Handler) ListApprovals(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	approvals, err := h.manager.ListPendingApprovals(c.Request.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list approvals", zap.String("session_id", sessionID), zap.Error(err))
		h.respondError(c, err)
		return
	}

	resp := ApprovalsListResponse{
		Approvals: make([]*ApprovalResponse, len(approvals)),
		Total:     len(approvals),
	}
	for i, a := range approvals {
		resp.Approvals[i] = approvalToResponse(a)
	}

	c.JSON(http.StatusOK, resp)
}

// ClearApprovals discards the session's pending approvals and any
// unconsumed pre-approvals
// DELETE /api/v1/sessions/:sessionId/approvals
func (h *Handler) ClearApprovals(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.manager.ClearPendingApprovals(c.Request.Context(), sessionID); err != nil {
		h.logger.Error("failed to clear approvals", zap.String("session_id", sessionID), zap.Error(err))
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ApproveTool approves one pending tool call; the conversation resumes
// in the background once no approvals remain
// POST /api/v1/sessions/:sessionId/approvals/:approvalId/approve
func (h *Handler) ApproveTool(c *gin.Context) {
	sessionID := c.Param("sessionId")
	approvalID := c.Param("approvalId")

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	go func() {
		if err := h.manager.Approve(context.Background(), sessionID, approvalID); err != nil {
			h.logger.WithSessionID(sessionID).WithError(err).Error("approve failed")
		}
	}()

	h.accepted(c, sessionID)
}

// DenyTool rejects one pending tool call; the whole pending batch is
// discarded and the conversation resumes with the denial
// POST /api/v1/sessions/:sessionId/approvals/:approvalId/deny
func (h *Handler) DenyTool(c *gin.Context) {
	sessionID := c.Param("sessionId")
	approvalID := c.Param("approvalId")

	var req DenyApprovalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := errors.BadRequest(err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	go func() {
		if err := h.manager.Deny(context.Background(), sessionID, approvalID, req.Reason); err != nil {
			h.logger.WithSessionID(sessionID).WithError(err).Error("deny failed")
		}
	}()

	h.accepted(c, sessionID)
}

// ApproveAllTools approves every pending tool call in one batch
// POST /api/v1/sessions/:sessionId/approve-all
func (h *Handler) ApproveAllTools(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		h.respondError(c, err)
		return
	}

	go func() {
		if err := h.manager.ApproveAll(context.Background(), sessionID); err != nil {
			h.logger.WithSessionID(sessionID).WithError(err).Error("approve-all failed")
		}
	}()

	h.accepted(c, sessionID)
}
