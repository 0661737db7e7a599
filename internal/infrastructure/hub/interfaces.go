package hub

import "context"

// Connection represents any type of connection (SSE, WebSocket, etc.)
type Connection interface {
	ID() string
	Type() string
	Send(ctx context.Context, event *Event) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// InboundHandler receives frames read from a connection. The returned
// value is the acknowledgement for the sender; it is delivered only when
// the frame asked for one.
type InboundHandler interface {
	HandleFrame(ctx context.Context, connID string, frame *Frame) (ack any, err error)
}

// InboundHandlerFunc adapts a function to InboundHandler.
type InboundHandlerFunc func(ctx context.Context, connID string, frame *Frame) (any, error)

func (f InboundHandlerFunc) HandleFrame(ctx context.Context, connID string, frame *Frame) (any, error) {
	return f(ctx, connID, frame)
}
