package relay

import (
	"encoding/json"
	"errors"
)

var (
	ErrInvalidPayload = errors.New(ReasonInvalidPayload)
	ErrUnknownEvent   = errors.New("unknown event")
)

// AskRequest is a validated ask_llm payload.
type AskRequest struct {
	ID   string
	Text string
}

// InvalidPayloadError rejects an ask_llm payload at the boundary. ID echoes
// whatever the caller sent as "id" (nil when absent) so the error event can
// still be correlated.
type InvalidPayloadError struct {
	ID any
}

func (e *InvalidPayloadError) Error() string { return ReasonInvalidPayload }
func (e *InvalidPayloadError) Unwrap() error { return ErrInvalidPayload }

// ParseAskRequest validates raw into an AskRequest or an *InvalidPayloadError.
// Both id and text must be non-empty strings.
func ParseAskRequest(raw json.RawMessage) (AskRequest, error) {
	fields, ok := decodeRecord(raw)
	if !ok {
		return AskRequest{}, &InvalidPayloadError{}
	}

	id, _ := fields["id"].(string)
	text, _ := fields["text"].(string)

	if id == "" || text == "" {
		return AskRequest{}, &InvalidPayloadError{ID: fields["id"]}
	}
	return AskRequest{ID: id, Text: text}, nil
}

// decodeRecord accepts only a non-null JSON object.
func decodeRecord(raw json.RawMessage) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}
