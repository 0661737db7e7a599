package relay

import (
	"context"

	"go-realtime-relay/internal/infrastructure/hub"
)

// Registry is the view of the connection registry the relay needs.
// Connections are only ever referred to by ID.
type Registry interface {
	IsLive(connID string) bool
	ConnectionContext(connID string) context.Context
	SendToConnection(ctx context.Context, connID string, event *hub.Event) error
	BroadcastExcept(ctx context.Context, senderID string, event *hub.Event) int
}

var _ Registry = (*hub.Hub)(nil)
