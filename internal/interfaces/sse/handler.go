package sse

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"go-realtime-relay/internal/application/relay"
	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
)

// ServerSentEventHandler serves the SSE transport. The stream carries
// outbound events; clients post their frames to a per-connection endpoint
// and receive the acknowledgement as the response body.
type ServerSentEventHandler struct {
	hub               *hub.Hub
	inbound           hub.InboundHandler
	keepAliveInterval time.Duration
	logger            logger.Logger
}

func NewServerSentEventHandler(
	hubInstance *hub.Hub,
	inbound hub.InboundHandler,
	keepAliveInterval time.Duration,
	logger logger.Logger,
) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:               hubInstance,
		inbound:           inbound,
		keepAliveInterval: keepAliveInterval,
		logger:            logger.WithField("handler", "sse"),
	}
}

// Connect handles SSE connection requests
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), "sse-"+uuid.NewString(), c.Writer, h.keepAliveInterval, h.logger)

	if err := h.hub.RegisterConnection(conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		_ = conn.Close()
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to register connection",
		})
		return
	}

	if err := h.hub.SendToConnection(c.Request.Context(), conn.ID(), hub.ConnectedEvent(conn.ID())); err != nil {
		h.logger.Warnf("Failed to greet %s: %v", conn.ID(), err)
		_ = conn.Close()
		return
	}
	h.logger.Infof("SSE connection %s connected and registered", conn.ID())

	<-conn.Context().Done()
	_ = conn.Close()
	h.logger.Infof("SSE connection %s disconnected", conn.ID())
}

// PostEvent accepts one inbound frame on behalf of an SSE connection.
func (h *ServerSentEventHandler) PostEvent(c *gin.Context) {
	connID := c.Param("connId")
	if !h.hub.IsLive(connID) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Connection not found",
		})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}
	frame, err := hub.DecodeFrame(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ack, err := h.inbound.HandleFrame(c.Request.Context(), connID, frame)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, relay.ErrUnknownEvent) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ack)
}

// GetConnections returns information about connected connections
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnectionsByType(hub.ConnectionTypeSSE)
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
