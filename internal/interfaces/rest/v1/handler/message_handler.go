package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"go-realtime-relay/internal/application/relay"
	"go-realtime-relay/internal/infrastructure/logger"
)

// ConnectionCounter reports how many connections are registered.
type ConnectionCounter interface {
	ConnectionCount() int
}

// MessageHandler lets HTTP clients without a live connection post chat
// messages. They reach every connection and are stamped with an unknown
// sender.
type MessageHandler struct {
	relay       *relay.BroadcastRelay
	connections ConnectionCounter
	logger      logger.Logger
}

func NewMessageHandler(broadcast *relay.BroadcastRelay, connections ConnectionCounter, logger logger.Logger) *MessageHandler {
	return &MessageHandler{
		relay:       broadcast,
		connections: connections,
		logger:      logger.WithField("handler", "messages"),
	}
}

// SendMessage relays a JSON body to every connection as a message event.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || !json.Valid(body) {
		h.logger.Warnf("Invalid message body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	ack := h.relay.OnMessage(c.Request.Context(), "", body)

	c.JSON(http.StatusOK, gin.H{
		"status":      ack.Status,
		"connections": h.connections.ConnectionCount(),
	})
}
