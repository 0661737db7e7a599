package websocket

import (
	"github.com/gin-gonic/gin"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	inbound hub.InboundHandler,
	cfg hub.WebSocketConfig,
	rg *gin.RouterGroup,
) {
	wsHandler := NewWebSocketHandler(hubInstance, inbound, cfg, logger)

	rg.GET("/ws", wsHandler.Connect)

	apiGroup := rg.Group("/api/v1/ws")
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
