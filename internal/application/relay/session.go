package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/infrastructure/provider"
)

// SessionStats counts stream requests by outcome.
type SessionStats struct {
	Active    int    `json:"active"`
	Started   uint64 `json:"started"`
	Completed uint64 `json:"completed"`
	Errored   uint64 `json:"errored"`
	Cancelled uint64 `json:"cancelled"`
	Rejected  uint64 `json:"rejected"`
}

// StreamingSessionManager runs the ask_llm protocol: it validates requests,
// pulls fragments from the provider, and emits llm_start, llm_chunk* and one
// terminal llm_end or llm_error to the requesting connection only.
//
// A connection may have several requests in flight; each runs in its own
// goroutine and events are addressed by (connection, request id).
type StreamingSessionManager struct {
	registry Registry
	provider provider.CompletionProvider
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[uint64]*StreamRequest
	seq    uint64
	closed bool

	started, completed, errored, cancelled, rejected atomic.Uint64
}

// NewStreamingSessionManager creates a manager that streams answers from completions.
func NewStreamingSessionManager(
	registry Registry,
	completions provider.CompletionProvider,
	logger logger.Logger,
) *StreamingSessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &StreamingSessionManager{
		registry: registry,
		provider: completions,
		logger:   logger.WithField("component", "sessions"),
		ctx:      ctx,
		cancel:   cancel,
		active:   make(map[uint64]*StreamRequest),
	}
}

// Ask handles one ask_llm payload from connID. It returns once llm_start
// has been emitted; the stream itself continues in the background.
func (m *StreamingSessionManager) Ask(ctx context.Context, connID string, payload json.RawMessage) Ack {
	req, err := ParseAskRequest(payload)
	if err != nil {
		m.rejected.Add(1)
		var invalid *InvalidPayloadError
		var id any
		if errors.As(err, &invalid) {
			id = invalid.ID
		}
		m.logger.Warnf("Rejected ask_llm from %s: %v", connID, err)
		m.send(connID, errorEvent(id, ReasonInvalidPayload))
		return AckError
	}

	sr, ok := m.track(connID, req)
	if !ok {
		m.logger.Warnf("Refusing ask_llm %s from %s: manager is shut down", req.ID, connID)
		return AckError
	}

	log := m.requestLogger(sr)
	_ = sr.advance(StateStarted)
	m.started.Add(1)

	if !m.registry.IsLive(connID) || m.send(connID, startEvent(sr.ID)) != nil {
		m.finishCancelled(sr, log)
		m.untrack(sr)
		m.wg.Done()
		return AckAccepted
	}

	go m.run(sr, log)

	return AckAccepted
}

// run drives one request from Started to a terminal state.
func (m *StreamingSessionManager) run(sr *StreamRequest, log logger.Logger) {
	defer m.wg.Done()
	defer m.untrack(sr)

	ctx, cancel := context.WithCancel(m.ctx)
	defer cancel()
	// best effort: stop the upstream call once the owner disconnects
	stop := context.AfterFunc(m.registry.ConnectionContext(sr.ConnID), cancel)
	defer stop()

	stream, err := m.provider.Complete(ctx, sr.Prompt)
	if err != nil {
		m.finishErrored(sr, err, log)
		return
	}
	defer stream.Close()

	_ = sr.advance(StateStreaming)

	for {
		fragment, ok, err := stream.Next(ctx)
		if err != nil {
			m.finishErrored(sr, err, log)
			return
		}
		if !ok {
			break
		}

		if !m.registry.IsLive(sr.ConnID) {
			m.finishCancelled(sr, log)
			return
		}
		if err := m.send(sr.ConnID, chunkEvent(sr.ID, fragment)); err != nil {
			m.finishCancelled(sr, log)
			return
		}
		sr.chunks++
	}

	if !m.registry.IsLive(sr.ConnID) || m.send(sr.ConnID, endEvent(sr.ID)) != nil {
		m.finishCancelled(sr, log)
		return
	}
	_ = sr.advance(StateCompleted)
	m.completed.Add(1)
	log.Infof("Stream completed: %d chunks in %s", sr.chunks, time.Since(sr.startedAt).Round(time.Millisecond))
}

func (m *StreamingSessionManager) finishErrored(sr *StreamRequest, cause error, log logger.Logger) {
	if !m.registry.IsLive(sr.ConnID) {
		m.finishCancelled(sr, log)
		return
	}
	if m.send(sr.ConnID, errorEvent(sr.ID, cause.Error())) != nil {
		m.finishCancelled(sr, log)
		return
	}
	_ = sr.advance(StateErrored)
	m.errored.Add(1)
	log.Errorf("Stream failed after %d chunks: %v", sr.chunks, cause)
}

func (m *StreamingSessionManager) finishCancelled(sr *StreamRequest, log logger.Logger) {
	_ = sr.advance(StateCancelled)
	m.cancelled.Add(1)
	log.Infof("Stream cancelled after %d chunks: connection gone", sr.chunks)
}

// send delivers one event to connID with the registry's own send timeout.
func (m *StreamingSessionManager) send(connID string, event *hub.Event) error {
	return m.registry.SendToConnection(context.Background(), connID, event)
}

func (m *StreamingSessionManager) track(connID string, req AskRequest) (*StreamRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false
	}
	m.seq++
	sr := newStreamRequest(m.seq, connID, req)
	m.active[sr.seq] = sr
	// added under mu so Shutdown never waits on a counter that is still growing
	m.wg.Add(1)
	return sr, true
}

func (m *StreamingSessionManager) untrack(sr *StreamRequest) {
	m.mu.Lock()
	delete(m.active, sr.seq)
	m.mu.Unlock()
}

func (m *StreamingSessionManager) requestLogger(sr *StreamRequest) logger.Logger {
	return m.logger.WithFields(logger.Fields{
		"connection_id": sr.ConnID,
		"request_id":    sr.ID,
	})
}

// ActiveCount returns the number of requests not yet in a terminal state.
func (m *StreamingSessionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Stats returns the active count and lifetime request counters.
func (m *StreamingSessionManager) Stats() SessionStats {
	return SessionStats{
		Active:    m.ActiveCount(),
		Started:   m.started.Load(),
		Completed: m.completed.Load(),
		Errored:   m.errored.Load(),
		Cancelled: m.cancelled.Load(),
		Rejected:  m.rejected.Load(),
	}
}

// Shutdown refuses new requests, cancels running provider calls and waits
// for every stream goroutine to finish or for ctx to end.
func (m *StreamingSessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
