package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
)

// WebSocketHandler upgrades clients and attaches them to the hub. Inbound
// frames are passed to the InboundHandler.
type WebSocketHandler struct {
	hub      *hub.Hub
	inbound  hub.InboundHandler
	cfg      hub.WebSocketConfig
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(
	hubInstance *hub.Hub,
	inbound hub.InboundHandler,
	cfg hub.WebSocketConfig,
	logger logger.Logger,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hubInstance,
		inbound: inbound,
		cfg:     cfg,
		logger:  logger.WithField("handler", "websocket"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browser clients are served from any origin
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Connect handles WebSocket connection upgrade requests
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("Failed to upgrade connection: %v", err)
		return
	}

	wsConn := hub.NewWebSocketConnection("ws-"+uuid.NewString(), conn, h.inbound, h.cfg, h.logger)

	if err := h.hub.RegisterConnection(wsConn); err != nil {
		h.logger.Errorf("Failed to register WebSocket connection: %v", err)
		_ = wsConn.Close()
		return
	}
	wsConn.Start()

	if err := h.hub.SendToConnection(c.Request.Context(), wsConn.ID(), hub.ConnectedEvent(wsConn.ID())); err != nil {
		h.logger.Warnf("Failed to greet %s: %v", wsConn.ID(), err)
		return
	}

	h.logger.Infof("WebSocket connection %s connected and registered", wsConn.ID())

	<-wsConn.Context().Done()
	h.logger.Infof("WebSocket connection %s disconnected", wsConn.ID())
}

// GetConnections returns information about WebSocket connections
func (h *WebSocketHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.ConnectionTypeWebSocket)
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		connectionInfo[i] = gin.H{
			"id":     conn.ID(),
			"type":   conn.Type(),
			"closed": conn.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
