// Package model defines the single inference capability used by the
// grading pipeline. Image classifiers and text normalizers are variants
// of the same Model interface, selected by configuration and held in a
// Registry that is built once at startup.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Kind distinguishes the two model roles.
type Kind string

const (
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Input is the union of what the two kinds consume. Image models read
// ImageRef (and may use CaseID for lookups); text models read Mentions.
type Input struct {
	CaseID   string
	ImageRef string
	Mentions []string
}

// Label is one scored concept. For text models Mention is the index into
// Input.Mentions the label belongs to; image models leave it zero.
type Label struct {
	ConceptID  string
	Confidence float64
	Mention    int
}

// Model is a read-only inference capability.
type Model interface {
	Name() string
	Kind() Kind
	Version() string
	Predict(ctx context.Context, in Input) ([]Label, error)
}

// ErrInputUnavailable means the model ran into missing or unreadable
// input, such as an image file that does not exist.
var ErrInputUnavailable = errors.New("model input unavailable")

// ErrClosed is returned by models used after Close.
var ErrClosed = errors.New("model closed")

// ErrUnavailable indicates the model itself could not produce a result.
type ErrUnavailable struct {
	Model string
	Err   error
}

func (e *ErrUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("model %s unavailable", e.Model)
}

func (e *ErrUnavailable) Unwrap() error { return e.Err }

// ID renders name@version for provenance.
func ID(m Model) string {
	return m.Name() + "@" + m.Version()
}
