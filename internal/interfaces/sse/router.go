package sse

import (
	"time"

	"github.com/gin-gonic/gin"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
)

func InitSSERouter(
	logger logger.Logger,
	hubInstance *hub.Hub,
	inbound hub.InboundHandler,
	keepAliveInterval time.Duration,
	rg *gin.RouterGroup,
) {
	sseHandler := NewServerSentEventHandler(hubInstance, inbound, keepAliveInterval, logger)

	rg.GET("/sse", sseHandler.Connect)

	apiGroup := rg.Group("/api/v1/sse")
	apiGroup.GET("/connections", sseHandler.GetConnections)
	apiGroup.POST("/:connId/events", sseHandler.PostEvent)
}
