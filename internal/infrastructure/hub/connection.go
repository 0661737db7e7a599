package hub

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gorilla/websocket"

	"go-realtime-relay/internal/infrastructure/logger"
)

const (
	ConnectionTypeSSE       = "sse"
	ConnectionTypeWebSocket = "websocket"
)

// SSEConnection implements the Connection interface for Server-Sent Events.
// It is write-only; inbound frames for it arrive over plain HTTP requests.
type SSEConnection struct {
	id     string
	writer http.ResponseWriter

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	// serializes writes to the response
	writeMu sync.Mutex

	logger logger.Logger

	keepAliveInterval time.Duration
}

// NewSSEConnection creates a new SSE connection bound to the request context.
func NewSSEConnection(
	ctx context.Context,
	id string,
	w http.ResponseWriter,
	keepAliveInterval time.Duration,
	logger logger.Logger,
) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)

	conn := &SSEConnection{
		id:                id,
		writer:            w,
		ctx:               rctx,
		cancel:            cancel,
		logger:            logger.WithField("connection_id", id),
		keepAliveInterval: keepAliveInterval,
	}

	conn.setupSSEHeaders()

	if keepAliveInterval > 0 {
		go conn.keepAlive()
	}

	return conn
}

// ID returns unique connection identifier
func (c *SSEConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *SSEConnection) Type() string {
	return ConnectionTypeSSE
}

// Send writes one SSE event and flushes it.
func (c *SSEConnection) Send(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	if err := c.write(event); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return err
		}
		c.logger.Errorf("Failed to write event %s: %v", event.Name, err)
		_ = c.Close()
		return fmt.Errorf("write sse event: %w", err)
	}
	return nil
}

func (c *SSEConnection) write(event *Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() || c.ctx.Err() != nil {
		return ErrConnectionClosed
	}

	err := sse.Encode(c.writer, sse.Event{
		Event: event.Name,
		Data:  event.Data,
	})
	if err != nil {
		return err
	}

	if flusher, ok := c.writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

// Close marks the connection closed and waits for an in-flight write, so
// the response writer is never touched once Close has returned.
func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	first := !c.closed
	c.closed = true
	c.closedMu.Unlock()
	c.cancel()

	c.writeMu.Lock()
	c.writeMu.Unlock()

	if first {
		c.logger.Info("SSE connection closed")
	}
	return nil
}

// IsClosed returns true if connection is closed
func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Context returns the connection's context (for cancellation)
func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

func (c *SSEConnection) setupSSEHeaders() {
	c.writer.Header().Set("Content-Type", "text/event-stream")
	c.writer.Header().Set("Cache-Control", "no-cache")
	c.writer.Header().Set("Connection", "keep-alive")
	c.writer.Header().Set("X-Accel-Buffering", "no") // For nginx
}

func (c *SSEConnection) keepAlive() {
	ticker := time.NewTicker(c.keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Send(c.ctx, KeepAliveEvent()); err != nil {
				c.logger.Warnf("Failed to send keep-alive: %v", err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WebSocketConfig tunes a WebSocketConnection.
type WebSocketConfig struct {
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PongTimeout    time.Duration `yaml:"pong_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	SendBuffer     int           `yaml:"send_buffer"`
	MaxMessageSize int64         `yaml:"max_message_size"`
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteTimeout:   10 * time.Second,
		PongTimeout:    60 * time.Second,
		PingInterval:   54 * time.Second, // must stay below PongTimeout
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
	}
}

// WebSocketConnection implements the Connection interface for WebSocket
// connections. Outbound events go through a buffered queue drained by a
// single writer, so events sent from one goroutine keep their order.
type WebSocketConnection struct {
	id      string
	conn    *websocket.Conn
	handler InboundHandler
	cfg     WebSocketConfig

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	startOnce sync.Once

	logger logger.Logger

	send chan *Event
}

// NewWebSocketConnection wraps an upgraded connection. Call Start once the
// connection is registered to begin reading and writing.
func NewWebSocketConnection(
	id string,
	conn *websocket.Conn,
	handler InboundHandler,
	cfg WebSocketConfig,
	logger logger.Logger,
) *WebSocketConnection {
	ctx, cancel := context.WithCancel(context.Background())

	return &WebSocketConnection{
		id:      id,
		conn:    conn,
		handler: handler,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.WithField("connection_id", id),
		send:    make(chan *Event, cfg.SendBuffer),
	}
}

// Start launches the read and write pumps.
func (c *WebSocketConnection) Start() {
	c.startOnce.Do(func() {
		c.setupWebSocket()
		go c.writePump()
		go c.readPump()
	})
}

// ID returns unique connection identifier
func (c *WebSocketConnection) ID() string {
	return c.id
}

// Type returns the connection type
func (c *WebSocketConnection) Type() string {
	return ConnectionTypeWebSocket
}

// Send queues an event for the writer.
func (c *WebSocketConnection) Send(ctx context.Context, event *Event) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.send <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close gracefully closes the WebSocket connection
func (c *WebSocketConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout),
	)
	err := c.conn.Close()

	c.logger.Info("WebSocket connection closed")
	return err
}

// IsClosed returns true if connection is closed
func (c *WebSocketConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

// Context returns the connection's context (for cancellation)
func (c *WebSocketConnection) Context() context.Context {
	return c.ctx
}

func (c *WebSocketConnection) setupWebSocket() {
	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout))
	})
}

// writePump is the only goroutine writing data frames to the socket.
func (c *WebSocketConnection) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Errorf("Failed to write event %s: %v", event.Name, err)
				_ = c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Errorf("Failed to send ping: %v", err)
				_ = c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// readPump decodes inbound frames and hands them to the handler.
func (c *WebSocketConnection) readPump() {
	defer func() {
		_ = c.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseAbnormalClosure,
			) {
				c.logger.Errorf("WebSocket error: %v", err)
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleFrame(data)

		case websocket.BinaryMessage:
			c.logger.Debugf("Ignoring binary message of length: %d", len(data))
		}
	}
}

func (c *WebSocketConnection) handleFrame(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warnf("Dropping malformed frame: %v", err)
		return
	}
	if c.handler == nil {
		return
	}

	ack, err := c.handler.HandleFrame(c.ctx, c.id, frame)
	if err != nil {
		c.logger.Debugf("Event %s not handled: %v", frame.Event, err)
	}
	if frame.Ack == "" || ack == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.WriteTimeout)
	defer cancel()
	if err := c.Send(ctx, AckEvent(frame.Ack, ack)); err != nil {
		c.logger.Warnf("Failed to send ack %s: %v", frame.Ack, err)
	}
}
