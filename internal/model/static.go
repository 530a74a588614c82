package model

import (
	"context"
	"sync"
)

// Static is a deterministic Model for tests and offline runs. When Fn is
// set it computes the result; otherwise Labels and Err are returned
// as-is.
type Static struct {
	ModelName    string
	ModelKind    Kind
	ModelVersion string
	Labels       []Label
	Err          error
	Fn           func(ctx context.Context, in Input) ([]Label, error)

	mu     sync.Mutex
	calls  []Input
	closed bool
}

func (s *Static) Name() string {
	if s.ModelName == "" {
		return "static"
	}
	return s.ModelName
}

func (s *Static) Kind() Kind { return s.ModelKind }

func (s *Static) Version() string {
	if s.ModelVersion == "" {
		return "0.0.0"
	}
	return s.ModelVersion
}

func (s *Static) Predict(ctx context.Context, in Input) ([]Label, error) {
	s.mu.Lock()
	s.calls = append(s.calls, in)
	s.mu.Unlock()

	if s.Fn != nil {
		return s.Fn(ctx, in)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]Label(nil), s.Labels...), nil
}

// CallCount returns the number of Predict calls made.
func (s *Static) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Close marks the model closed.
func (s *Static) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Static) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
