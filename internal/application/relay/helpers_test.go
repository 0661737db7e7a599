package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go-realtime-relay/internal/infrastructure/hub"
	"go-realtime-relay/internal/infrastructure/logger"
	"go-realtime-relay/internal/infrastructure/provider"
)

func quietLogger() logger.Logger {
	l := logger.NewLogrusLogger(logger.NewDefaultConfig())
	l.SetOutput(io.Discard)
	return l
}

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.New(quietLogger())
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { _ = h.Stop(context.Background()) })
	return h
}

// recorder is a hub.Connection that keeps every event it is sent.
type recorder struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	events []*hub.Event
}

func newRecorder(id string) *recorder {
	ctx, cancel := context.WithCancel(context.Background())
	return &recorder{id: id, ctx: ctx, cancel: cancel}
}

func connect(t *testing.T, h *hub.Hub, id string) *recorder {
	t.Helper()
	r := newRecorder(id)
	require.NoError(t, h.RegisterConnection(r))
	return r
}

func (r *recorder) ID() string   { return r.id }
func (r *recorder) Type() string { return "recorder" }

func (r *recorder) Send(ctx context.Context, event *hub.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return hub.ErrConnectionClosed
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	return nil
}

func (r *recorder) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *recorder) Context() context.Context { return r.ctx }

func (r *recorder) Events() []*hub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*hub.Event(nil), r.events...)
}

func (r *recorder) Names() []string {
	var names []string
	for _, ev := range r.Events() {
		names = append(names, ev.Name)
	}
	return names
}

// waitTerminal blocks until r has received llm_end or llm_error for id.
func (r *recorder) waitTerminal(t *testing.T, id string) []*hub.Event {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, ev := range r.Events() {
			switch p := ev.Data.(type) {
			case EndPayload:
				if p.ID == id {
					return true
				}
			case ErrorPayload:
				if p.ID == id {
					return true
				}
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no terminal event for %s", id)
	return r.Events()
}

// forRequest keeps the llm_* events addressed to id.
func forRequest(events []*hub.Event, id string) []*hub.Event {
	var out []*hub.Event
	for _, ev := range events {
		var got any
		switch p := ev.Data.(type) {
		case StartPayload:
			got = p.ID
		case ChunkPayload:
			got = p.ID
		case EndPayload:
			got = p.ID
		case ErrorPayload:
			got = p.ID
		default:
			continue
		}
		if got == id {
			out = append(out, ev)
		}
	}
	return out
}

func chunks(events []*hub.Event) []string {
	var out []string
	for _, ev := range events {
		if p, ok := ev.Data.(ChunkPayload); ok {
			out = append(out, p.Chunk)
		}
	}
	return out
}

func sliceProvider(fragments []string, failure error) provider.CompletionProvider {
	return provider.Func(func(ctx context.Context, prompt string) (provider.FragmentStream, error) {
		return provider.FromSlice(ctx, fragments, failure), nil
	})
}

// gatedProvider yields head, then waits for release before yielding tail.
type gatedProvider struct {
	head, tail []string
	release    chan struct{}
	aborted    chan struct{}
	once       sync.Once
}

func newGatedProvider(head, tail []string) *gatedProvider {
	return &gatedProvider{
		head:    head,
		tail:    tail,
		release: make(chan struct{}),
		aborted: make(chan struct{}),
	}
}

func (g *gatedProvider) Complete(ctx context.Context, prompt string) (provider.FragmentStream, error) {
	return provider.NewStream(ctx, func(ctx context.Context, emit func(string) error) error {
		for _, f := range g.head {
			if err := emit(f); err != nil {
				return err
			}
		}
		select {
		case <-g.release:
		case <-ctx.Done():
			g.once.Do(func() { close(g.aborted) })
			return ctx.Err()
		}
		for _, f := range g.tail {
			if err := emit(f); err != nil {
				return err
			}
		}
		return nil
	}), nil
}

var errUpstreamTimeout = errors.New("upstream timeout")
