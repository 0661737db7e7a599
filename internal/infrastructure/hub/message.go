package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// System event names emitted by the transport layer itself.
const (
	EventConnected = "connected"
	EventKeepAlive = "keepalive"
	EventAck       = "ack"
)

// Frame is an inbound envelope as read off the wire.
//
//	{"event": "ask_llm", "data": {"id": "llm-1", "text": "hi"}, "ack": "7"}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   string          `json:"ack,omitempty"`
}

// Event is an outbound envelope.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
	Ack  string `json:"ack,omitempty"`
}

var errEmptyEventName = errors.New("frame event name cannot be empty")

// DecodeFrame parses and validates a raw inbound frame.
func DecodeFrame(raw []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Event == "" {
		return nil, errEmptyEventName
	}
	return &frame, nil
}

// NewEvent builds an outbound event.
func NewEvent(name string, data any) *Event {
	return &Event{Name: name, Data: data}
}

// ConnectedEvent is the first event every connection receives.
func ConnectedEvent(connID string) *Event {
	return NewEvent(EventConnected, map[string]any{
		"connection_id": connID,
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

// KeepAliveEvent is sent periodically on transports without native pings.
func KeepAliveEvent() *Event {
	return NewEvent(EventKeepAlive, map[string]any{
		"timestamp": time.Now().Unix(),
	})
}

// AckEvent answers an inbound frame that carried an ack id.
func AckEvent(ackID string, data any) *Event {
	return &Event{Name: EventAck, Data: data, Ack: ackID}
}
