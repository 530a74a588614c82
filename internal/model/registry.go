package model

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// Registry owns the process-wide models, at most one per Kind. Models
// are registered during startup and released together by Close.
type Registry struct {
	mu     sync.RWMutex
	models map[Kind]Model
	order  []Model
	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[Kind]Model)}
}

// Register adds m under its Kind. Registering a second model of the same
// kind is an error.
func (r *Registry) Register(m Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if existing, ok := r.models[m.Kind()]; ok {
		return fmt.Errorf("%s model already registered: %s", m.Kind(), ID(existing))
	}
	r.models[m.Kind()] = m
	r.order = append(r.order, m)
	return nil
}

// Get returns the model registered for k.
func (r *Registry) Get(k Kind) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[k]
	return m, ok
}

// Image returns the image model, or nil when none is configured.
func (r *Registry) Image() Model {
	m, _ := r.Get(KindImage)
	return m
}

// Text returns the text model, or nil when none is configured.
func (r *Registry) Text() Model {
	m, _ := r.Get(KindText)
	return m
}

// Versions maps each registered kind to name@version.
func (r *Registry) Versions() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.models))
	for k, m := range r.models {
		out[string(k)] = ID(m)
	}
	return out
}

// Close releases every model that holds resources, newest first.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		if c, ok := r.order[i].(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", ID(r.order[i]), err))
			}
		}
	}
	r.models = map[Kind]Model{}
	r.order = nil
	return errors.Join(errs...)
}
