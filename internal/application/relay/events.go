package relay

import "go-realtime-relay/internal/infrastructure/hub"

// Event names of the real-time protocol.
const (
	EventMessage  = "message"
	EventAskLLM   = "ask_llm"
	EventLLMStart = "llm_start"
	EventLLMChunk = "llm_chunk"
	EventLLMEnd   = "llm_end"
	EventLLMError = "llm_error"
)

const (
	ReasonInvalidPayload = "invalid payload"

	// UnknownSender stands in for fromSocket when the sender has no connection.
	UnknownSender = "unknown"

	// TimestampLayout renders receivedAt like an ISO-8601 UTC instant with
	// millisecond precision, e.g. 2024-05-01T12:00:00.000Z.
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Ack is the acknowledgement returned to the caller of a triggering event.
type Ack struct {
	Status string `json:"status"`
}

var (
	AckOK       = Ack{Status: "ok"}
	AckAccepted = Ack{Status: "accepted"}
	AckError    = Ack{Status: "error"}
)

type StartPayload struct {
	ID string `json:"id"`
}

type ChunkPayload struct {
	ID    string `json:"id"`
	Chunk string `json:"chunk"`
}

type EndPayload struct {
	ID string `json:"id"`
	OK bool   `json:"ok"`
}

// ErrorPayload.ID is nil when the request carried no usable identifier.
type ErrorPayload struct {
	ID     any    `json:"id"`
	Reason string `json:"reason"`
}

func startEvent(id string) *hub.Event {
	return hub.NewEvent(EventLLMStart, StartPayload{ID: id})
}

func chunkEvent(id, chunk string) *hub.Event {
	return hub.NewEvent(EventLLMChunk, ChunkPayload{ID: id, Chunk: chunk})
}

func endEvent(id string) *hub.Event {
	return hub.NewEvent(EventLLMEnd, EndPayload{ID: id, OK: true})
}

func errorEvent(id any, reason string) *hub.Event {
	return hub.NewEvent(EventLLMError, ErrorPayload{ID: id, Reason: reason})
}
