package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hive-dev/hive/internal/common/logger"
	"github.com/hive-dev/hive/internal/session/manager"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// In production, validate origin
		return true
	},
}

// WSHandler handles WebSocket connections
type WSHandler struct {
	hub     *Hub
	manager *manager.Manager
	logger  *logger.Logger
}

// NewWSHandler creates a new WebSocket handler
func NewWSHandler(hub *Hub, mgr *manager.Manager, log *logger.Logger) *WSHandler {
	return &WSHandler{
		hub:     hub,
		manager: mgr,
		logger:  log.WithFields(zap.String("component", "ws_handler")),
	}
}

// StreamSession handles WebSocket connection for a specific session
// WS /api/v1/sessions/:sessionId/stream
func (h *WSHandler) StreamSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if _, err := h.manager.GetSession(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "SESSION_NOT_FOUND",
				"message": "Session does not exist",
			},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return
	}

	clientID := uuid.New().String()

	h.logger.Info("WebSocket connection established for session",
		zap.String("client_id", clientID),
		zap.String("session_id", sessionID),
	)

	client := NewClient(clientID, conn, h.hub, h.logger)

	// Register client with hub first, then pin it to the session
	h.hub.Register(client)
	client.Subscribe(sessionID)

	go client.WritePump()
	go client.ReadPump()
}

// StreamAll handles WebSocket connection for all sessions (with subscription)
// WS /api/v1/stream
func (h *WSHandler) StreamAll(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	clientID := uuid.New().String()

	h.logger.Info("WebSocket connection established",
		zap.String("client_id", clientID),
	)

	client := NewClient(clientID, conn, h.hub, h.logger)
	h.hub.Register(client)

	// The ReadPump handles subscription messages from the client
	go client.WritePump()
	go client.ReadPump()
}

// SetupWebSocketRoutes adds WebSocket routes to the router
func SetupWebSocketRoutes(router *gin.RouterGroup, handler *WSHandler) {
	// Stream for a specific session
	router.GET("/sessions/:sessionId/stream", handler.StreamSession)

	// Stream for all sessions (with dynamic subscription)
	router.GET("/stream", handler.StreamAll)
}
