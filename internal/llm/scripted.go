package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// Reply is one scripted outcome.
type Reply struct {
	Content json.RawMessage
	Usage   Usage
	Err     error
}

// Scripted is an offline Provider that plays back replies in order. It
// keeps every request it was given. Once the script runs out it reports
// itself unavailable.
type Scripted struct {
	mu       sync.Mutex
	script   []Reply
	requests []Request
}

// NewScripted returns a Provider that plays replies in order.
func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{script: replies}
}

func (s *Scripted) ModelID() string { return "scripted" }

func (s *Scripted) Complete(_ context.Context, req Request) (*Completion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if len(s.script) == 0 {
		return nil, &Error{Kind: KindUnavailable, Provider: "scripted"}
	}
	next := s.script[0]
	s.script = s.script[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return &Completion{Content: next.Content, Usage: next.Usage, Model: s.ModelID()}, nil
}

// Push appends replies to the script.
func (s *Scripted) Push(replies ...Reply) {
	s.mu.Lock()
	s.script = append(s.script, replies...)
	s.mu.Unlock()
}

// Requests returns a copy of every request received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}
