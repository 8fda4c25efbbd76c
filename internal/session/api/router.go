package api

import (
	"github.com/gin-gonic/gin"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/session/manager"
)

// SetupRoutes configures the session API routes
func SetupRoutes(router *gin.RouterGroup, mgr *manager.Manager, log *logger.Logger) {
	handler := NewHandler(mgr, log)

	sessions := router.Group("/sessions")
	{
		sessions.POST("", handler.CreateSession)
		sessions.GET("", handler.ListSessions)
		sessions.GET("/:sessionId", handler.GetSession)
		sessions.DELETE("/:sessionId", handler.DeleteSession)

		// Conversation control
		sessions.POST("/:sessionId/start", handler.StartSession)
		sessions.POST("/:sessionId/interrupt", handler.InterruptSession)
		sessions.PUT("/:sessionId/permission-mode", handler.SetPermissionMode)
		sessions.GET("/:sessionId/results", handler.ListResults)

		// Approvals
		sessions.GET("/:sessionId/approvals", handler.ListApprovals)
		sessions.DELETE("/:sessionId/approvals", handler.ClearApprovals)
		sessions.POST("/:sessionId/approvals/:approvalId/approve", handler.ApproveTool)
		sessions.POST("/:sessionId/approvals/:approvalId/deny", handler.DenyTool)
		sessions.POST("/:sessionId/approve-all", handler.ApproveAllTools)
	}
}
