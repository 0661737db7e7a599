package hub

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-realtime-relay/internal/infrastructure/logger"
)

var (
	ErrHubNotRunning      = errors.New("hub is not running")
	ErrHubAlreadyRunning  = errors.New("hub is already running")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrConnectionClosed   = errors.New("connection is closed")
)

const (
	defaultCleanupInterval = 30 * time.Second
	defaultSendTimeout     = 10 * time.Second
	broadcastConcurrency   = 64
)

// Hub is the registry of live connections. It owns every Connection;
// other components address connections by ID only.
type Hub struct {
	connections   map[string]Connection
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	logger logger.Logger

	cleanupInterval time.Duration
	sendTimeout     time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Hub)

// WithCleanupInterval sets how often closed connections are swept.
func WithCleanupInterval(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.cleanupInterval = d
		}
	}
}

// WithSendTimeout bounds a single delivery to one connection.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// New creates a new Hub instance
func New(logger logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections:     make(map[string]Connection),
		logger:          logger.WithField("component", "hub"),
		cleanupInterval: defaultCleanupInterval,
		sendTimeout:     defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start starts the hub and its background sweep.
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return ErrHubAlreadyRunning
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	h.running = true

	go h.run()

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop closes every connection and stops the sweep.
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()

	h.connectionsMu.Lock()
	conns := h.connections
	h.connections = make(map[string]Connection)
	h.connectionsMu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}

	h.running = false

	select {
	case <-h.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	h.logger.Info("Hub stopped successfully")
	return nil
}

// IsRunning returns true if the hub is currently running
func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

// RegisterConnection makes conn addressable by its ID. The connection is
// unregistered automatically once its context ends.
func (h *Hub) RegisterConnection(conn Connection) error {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	h.connectionsMu.Lock()
	previous, replaced := h.connections[conn.ID()]
	h.connections[conn.ID()] = conn
	h.connectionsMu.Unlock()

	if replaced && previous != conn {
		_ = previous.Close()
	}

	h.logger.Infof("Connection %s registered (type: %s)", conn.ID(), conn.Type())

	hubCtx := h.ctx
	go func() {
		select {
		case <-conn.Context().Done():
			h.remove(conn.ID(), conn)
		case <-hubCtx.Done():
		}
	}()

	return nil
}

// UnregisterConnection removes and closes a connection. Unknown IDs and
// repeated calls are no-ops.
func (h *Hub) UnregisterConnection(connID string) {
	h.remove(connID, nil)
}

// remove deletes connID from the registry. When want is non-nil the entry
// is only removed if it still refers to that exact connection.
func (h *Hub) remove(connID string, want Connection) {
	h.connectionsMu.Lock()
	conn, exists := h.connections[connID]
	if exists && (want == nil || conn == want) {
		delete(h.connections, connID)
	} else {
		exists = false
	}
	h.connectionsMu.Unlock()

	if !exists {
		return
	}
	if err := conn.Close(); err != nil {
		h.logger.Warnf("Failed to close connection %s: %v", connID, err)
	}
	h.logger.Infof("Connection %s unregistered", connID)
}

// IsLive reports whether connID is registered and its transport still open.
func (h *Hub) IsLive(connID string) bool {
	conn, exists := h.GetConnection(connID)
	return exists && !conn.IsClosed()
}

// ConnectionContext returns the context of a registered connection. For
// unknown IDs it returns an already cancelled context.
func (h *Hub) ConnectionContext(connID string) context.Context {
	if conn, exists := h.GetConnection(connID); exists {
		return conn.Context()
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// GetConnection returns a connection by ID
func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

// GetConnections returns all active connections
func (h *Hub) GetConnections() []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	return connections
}

// GetConnectionsByType returns connections of a specific type
func (h *Hub) GetConnectionsByType(connType string) []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	var connections []Connection
	for _, conn := range h.connections {
		if conn.Type() == connType {
			connections = append(connections, conn)
		}
	}
	return connections
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Broadcast sends an event to all connections.
func (h *Hub) Broadcast(ctx context.Context, event *Event) int {
	return h.BroadcastExcept(ctx, "", event)
}

// BroadcastExcept sends an event to every registered connection except
// senderID and returns how many deliveries succeeded. It returns once every
// delivery has completed or failed; failed connections are unregistered.
func (h *Hub) BroadcastExcept(ctx context.Context, senderID string, event *Event) int {
	h.connectionsMu.RLock()
	targets := make([]Connection, 0, len(h.connections))
	for id, conn := range h.connections {
		if id != senderID {
			targets = append(targets, conn)
		}
	}
	h.connectionsMu.RUnlock()

	var (
		delivered int
		mu        sync.Mutex
		eg        errgroup.Group
	)
	eg.SetLimit(broadcastConcurrency)

	for _, conn := range targets {
		eg.Go(func() error {
			if err := h.deliver(ctx, conn, event); err != nil {
				return nil
			}
			mu.Lock()
			delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	h.logger.Debugf("Broadcasted %s to %d/%d connections", event.Name, delivered, len(targets))
	return delivered
}

// SendToConnection sends an event to a specific connection
func (h *Hub) SendToConnection(ctx context.Context, connID string, event *Event) error {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return ErrConnectionNotFound
	}
	return h.deliver(ctx, conn, event)
}

func (h *Hub) deliver(ctx context.Context, conn Connection, event *Event) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	if err := conn.Send(sendCtx, event); err != nil {
		h.logger.Errorf("Failed to send %s to connection %s: %v", event.Name, conn.ID(), err)
		h.remove(conn.ID(), conn)
		return err
	}
	return nil
}

// run is the background loop that sweeps closed connections.
func (h *Hub) run() {
	defer close(h.done)

	ticker := time.NewTicker(h.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-h.ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

// cleanupClosedConnections removes connections that have been closed
func (h *Hub) cleanupClosedConnections() {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	for id, conn := range h.connections {
		if conn.IsClosed() {
			delete(h.connections, id)
			h.logger.Infof("Cleaned up closed connection %s", id)
		}
	}
}
