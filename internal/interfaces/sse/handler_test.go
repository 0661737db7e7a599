package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"go-realtime-relay/internal/application/relay"
	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/infrastructure/provider/loopback"
)

type streamEvent struct {
	Name string
	Data string
}

func newTestServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewLogrusLogger(logger.NewDefaultConfig())
	log.SetOutput(io.Discard)

	h := hub.New(log)
	require.NoError(t, h.Start(context.Background()))

	sessions := relay.NewStreamingSessionManager(h, loopback.New(), log)
	gateway := relay.NewGateway(relay.NewBroadcastRelay(h, log), sessions, log)

	router := gin.New()
	InitSSERouter(log, h, gateway, 0, router.Group(""))

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		_ = sessions.Shutdown(context.Background())
		_ = h.Stop(context.Background())
		srv.Close()
	})
	return srv, h
}

// subscribe opens the event stream and returns its connection id and a
// channel of parsed events.
func subscribe(t *testing.T, srv *httptest.Server) (string, <-chan streamEvent) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan streamEvent, 64)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var name string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				events <- streamEvent{Name: name, Data: strings.TrimSpace(strings.TrimPrefix(line, "data:"))}
			}
		}
	}()

	first := next(t, events)
	require.Equal(t, hub.EventConnected, first.Name)
	var greeting struct {
		ConnectionID string `json:"connection_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(first.Data), &greeting))
	require.True(t, strings.HasPrefix(greeting.ConnectionID, "sse-"))
	return greeting.ConnectionID, events
}

func next(t *testing.T, events <-chan streamEvent) streamEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event stream closed")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for an event")
		return streamEvent{}
	}
}

func post(t *testing.T, srv *httptest.Server, connID, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/sse/"+connID+"/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func TestSSE_AskLLMOverPostedFrame(t *testing.T) {
	srv, _ := newTestServer(t)
	connID, events := subscribe(t, srv)

	status, body := post(t, srv, connID, `{"event":"ask_llm","data":{"id":"llm-1","text":"hi there"}}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"accepted"}`, body)

	require.Equal(t, streamEvent{relay.EventLLMStart, `{"id":"llm-1"}`}, next(t, events))
	require.Equal(t, streamEvent{relay.EventLLMChunk, `{"id":"llm-1","chunk":"hi"}`}, next(t, events))
	require.Equal(t, streamEvent{relay.EventLLMChunk, `{"id":"llm-1","chunk":" there"}`}, next(t, events))
	require.Equal(t, streamEvent{relay.EventLLMEnd, `{"id":"llm-1","ok":true}`}, next(t, events))
}

func TestSSE_MessageReachesOtherSubscribers(t *testing.T) {
	srv, _ := newTestServer(t)
	senderID, _ := subscribe(t, srv)
	_, peer := subscribe(t, srv)

	status, body := post(t, srv, senderID, `{"event":"message","data":{"text":"hello"}}`)
	require.Equal(t, http.StatusOK, status)
	require.JSONEq(t, `{"status":"ok"}`, body)

	got := next(t, peer)
	require.Equal(t, relay.EventMessage, got.Name)
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(got.Data), &data))
	require.Equal(t, "hello", data["text"])
	require.Equal(t, senderID, data["fromSocket"])
}

func TestSSE_PostEventErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	connID, _ := subscribe(t, srv)

	status, _ := post(t, srv, "sse-missing", `{"event":"message","data":{}}`)
	require.Equal(t, http.StatusNotFound, status)

	status, _ = post(t, srv, connID, `not json`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = post(t, srv, connID, `{"data":{}}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, body := post(t, srv, connID, `{"event":"shout","data":{}}`)
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body, "unknown event")
}

func TestSSE_ConnectionsEndpoint(t *testing.T) {
	srv, h := newTestServer(t)
	connID, _ := subscribe(t, srv)
	require.True(t, h.IsLive(connID))

	resp, err := http.Get(srv.URL + "/api/v1/sse/connections")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Total       int  `json:"total_connections"`
		HubRunning  bool `json:"hub_running"`
		Connections []struct {
			ID string `json:"id"`
		} `json:"connections"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 1, out.Total)
	require.True(t, out.HubRunning)
	require.Equal(t, connID, out.Connections[0].ID)
}
