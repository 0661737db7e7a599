package relay

import (
	"context"
	"fmt"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
)

// Gateway routes inbound frames to the broadcast relay or the session
// manager. Transports hand every decoded frame to it.
type Gateway struct {
	broadcast *BroadcastRelay
	sessions  *StreamingSessionManager
	logger    logger.Logger
}

var _ hub.InboundHandler = (*Gateway)(nil)

// NewGateway creates a gateway over the broadcast relay and session manager.
func NewGateway(broadcast *BroadcastRelay, sessions *StreamingSessionManager, logger logger.Logger) *Gateway {
	return &Gateway{
		broadcast: broadcast,
		sessions:  sessions,
		logger:    logger.WithField("component", "gateway"),
	}
}

// HandleFrame dispatches frame by event name and returns its Ack.
func (g *Gateway) HandleFrame(ctx context.Context, connID string, frame *hub.Frame) (any, error) {
	switch frame.Event {
	case EventMessage:
		return g.broadcast.OnMessage(ctx, connID, frame.Data), nil

	case EventAskLLM:
		return g.sessions.Ask(ctx, connID, frame.Data), nil

	default:
		g.logger.Debugf("Unknown event %q from %s", frame.Event, connID)
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, frame.Event)
	}
}

// Sessions exposes the session manager for status reporting and shutdown.
func (g *Gateway) Sessions() *StreamingSessionManager {
	return g.sessions
}
