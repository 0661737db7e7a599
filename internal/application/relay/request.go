package relay

import (
	"fmt"
	"time"
)

// State is the lifecycle position of a StreamRequest.
type State int

const (
	StateIdle State = iota
	StateStarted
	StateStreaming
	StateCompleted
	StateErrored
	StateCancelled
)

var stateNames = [...]string{"idle", "started", "streaming", "completed", "errored", "cancelled"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further events follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored || s == StateCancelled
}

var transitions = map[State][]State{
	StateIdle:      {StateStarted},
	StateStarted:   {StateStreaming, StateErrored, StateCancelled},
	StateStreaming: {StateCompleted, StateErrored, StateCancelled},
}

// StreamRequest is one ask_llm in flight. It is owned by the goroutine
// driving it; only the manager's bookkeeping map refers to it elsewhere.
type StreamRequest struct {
	ID     string
	Prompt string
	ConnID string

	seq       uint64
	state     State
	chunks    int
	startedAt time.Time
}

func newStreamRequest(seq uint64, connID string, req AskRequest) *StreamRequest {
	return &StreamRequest{
		ID:     req.ID,
		Prompt: req.Text,
		ConnID: connID,
		seq:    seq,
	}
}

func (r *StreamRequest) State() State { return r.state }

// advance moves to next if the transition is allowed.
func (r *StreamRequest) advance(next State) error {
	for _, allowed := range transitions[r.state] {
		if allowed == next {
			r.state = next
			if next == StateStarted {
				r.startedAt = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("request %s: illegal transition %s -> %s", r.ID, r.state, next)
}
