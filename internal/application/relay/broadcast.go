package relay

import (
	"context"
	"encoding/json"
	"maps"
	"time"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
)

// BroadcastRelay fans chat messages out to every connection but the sender.
type BroadcastRelay struct {
	registry Registry
	logger   logger.Logger
	now      func() time.Time
}

// NewBroadcastRelay creates a relay that fans message frames out through registry.
func NewBroadcastRelay(registry Registry, logger logger.Logger) *BroadcastRelay {
	return &BroadcastRelay{
		registry: registry,
		logger:   logger.WithField("component", "broadcast"),
		now:      time.Now,
	}
}

// OnMessage relays payload from senderID. Payloads that are not a JSON
// object are dropped without telling the sender; the acknowledgement is
// always AckOK. An empty senderID is stamped as UnknownSender.
func (r *BroadcastRelay) OnMessage(ctx context.Context, senderID string, payload json.RawMessage) Ack {
	fields, ok := decodeRecord(payload)
	if !ok {
		r.logger.Debugf("Dropping non-record message from %q", senderID)
		return AckOK
	}

	from := senderID
	if from == "" {
		from = UnknownSender
	}

	out := make(map[string]any, len(fields)+2)
	maps.Copy(out, fields)
	out["receivedAt"] = r.now().UTC().Format(TimestampLayout)
	out["fromSocket"] = from

	delivered := r.registry.BroadcastExcept(ctx, senderID, hub.NewEvent(EventMessage, out))
	r.logger.Debugf("Relayed message from %s to %d connections", from, delivered)

	return AckOK
}
