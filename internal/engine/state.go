package engine

import (
	"fmt"
	"sync"
	"time"
)

// State is a submission lifecycle state.
type State string

const (
	StateReceived      State = "Received"
	StateImageAnalyzed State = "ImageAnalyzed"
	StateTextExtracted State = "TextExtracted"
	StateAligned       State = "Aligned"
	StateScored        State = "Scored"
	StateAssembled     State = "Assembled"
	StateDelivered     State = "Delivered"
	StateFailed        State = "Failed"
)

// transitions is the allowed table. The image and text branches run
// concurrently, so either may complete first. Received may skip to
// Aligned when both branches missed the deadline, and to Assembled on a
// cache hit. Failed is reachable from every non-terminal state.
var transitions = map[State][]State{
	StateReceived:      {StateImageAnalyzed, StateTextExtracted, StateAligned, StateAssembled},
	StateImageAnalyzed: {StateTextExtracted, StateAligned},
	StateTextExtracted: {StateImageAnalyzed, StateAligned},
	StateAligned:       {StateScored},
	StateScored:        {StateAssembled},
	StateAssembled:     {StateDelivered},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDelivered || s == StateFailed
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// tracker enforces the transition table for one submission. Branch
// goroutines advance it concurrently.
type tracker struct {
	mu      sync.Mutex
	now     func() time.Time
	current State
	trace   []Transition
}

func newTracker(now func() time.Time) *tracker {
	return &tracker{now: now, current: StateReceived}
}

func (t *tracker) advance(to State, note string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !CanTransition(t.current, to) {
		return newError(CodeInternalInconsistency, "invalid state transition",
			fmt.Errorf("%s -> %s", t.current, to))
	}
	t.trace = append(t.trace, Transition{From: t.current, To: to, At: t.now(), Note: note})
	t.current = to
	return nil
}

func (t *tracker) state() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

func (t *tracker) history() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Transition(nil), t.trace...)
}
