package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 250_000_000, time.FixedZone("CEST", 2*60*60))

func newTestRelay(t *testing.T) (*BroadcastRelay, *recorder, []*recorder) {
	t.Helper()
	h := startHub(t)
	sender := connect(t, h, "sender")
	others := []*recorder{connect(t, h, "peer-1"), connect(t, h, "peer-2")}

	r := NewBroadcastRelay(h, quietLogger())
	r.now = func() time.Time { return fixedNow }
	return r, sender, others
}

func TestOnMessage_RelaysToEveryoneButSender(t *testing.T) {
	r, sender, others := newTestRelay(t)

	ack := r.OnMessage(context.Background(), "sender", json.RawMessage(`{"text":"hi","room":{"name":"lobby"}}`))
	require.Equal(t, AckOK, ack)

	assert.Empty(t, sender.Events())
	for _, peer := range others {
		events := peer.Events()
		require.Len(t, events, 1, peer.ID())
		require.Equal(t, EventMessage, events[0].Name)
		require.Equal(t, map[string]any{
			"text":       "hi",
			"room":       map[string]any{"name": "lobby"},
			"receivedAt": "2024-05-01T10:00:00.250Z",
			"fromSocket": "sender",
		}, events[0].Data)
	}
}

func TestOnMessage_ServerFieldsOverrideClientFields(t *testing.T) {
	r, _, others := newTestRelay(t)

	r.OnMessage(context.Background(), "sender", json.RawMessage(`{"receivedAt":"yesterday","fromSocket":"someone-else"}`))

	data := others[0].Events()[0].Data.(map[string]any)
	assert.Equal(t, "2024-05-01T10:00:00.250Z", data["receivedAt"])
	assert.Equal(t, "sender", data["fromSocket"])
}

func TestOnMessage_EmptyRecordIsRelayed(t *testing.T) {
	r, _, others := newTestRelay(t)

	r.OnMessage(context.Background(), "sender", json.RawMessage(`{}`))

	require.Len(t, others[0].Events(), 1)
	assert.Len(t, others[0].Events()[0].Data, 2)
}

func TestOnMessage_DropsNonRecords(t *testing.T) {
	for _, payload := range []string{`null`, `42`, `"hello"`, `true`, `[{"text":"hi"}]`, ``, `{broken`} {
		t.Run(payload, func(t *testing.T) {
			r, sender, others := newTestRelay(t)

			ack := r.OnMessage(context.Background(), "sender", json.RawMessage(payload))

			require.Equal(t, AckOK, ack)
			assert.Empty(t, sender.Events())
			for _, peer := range others {
				assert.Empty(t, peer.Events())
			}
		})
	}
}

func TestOnMessage_UnknownSender(t *testing.T) {
	r, sender, others := newTestRelay(t)

	r.OnMessage(context.Background(), "", json.RawMessage(`{"text":"from rest"}`))

	// without a sender connection every connection receives it
	require.Len(t, sender.Events(), 1)
	for _, peer := range others {
		require.Len(t, peer.Events(), 1)
		assert.Equal(t, UnknownSender, peer.Events()[0].Data.(map[string]any)["fromSocket"])
	}
}
