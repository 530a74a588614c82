package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/feedback"
	"github.com/abhisek/radgrade/internal/imaging"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/store"
)

// Code identifies a failure to API clients.
type Code string

const (
	CodeCaseNotFound          Code = "CaseNotFound"
	CodeInvalidInput          Code = "InvalidInput"
	CodeImageUnavailable      Code = "ImageUnavailable"
	CodeModelUnavailable      Code = "ModelUnavailable"
	CodeStoreUnavailable      Code = "StoreUnavailable"
	CodeTimeout               Code = "Timeout"
	CodeInternalInconsistency Code = "InternalInconsistency"
)

// Class groups codes by how the engine treats them.
type Class string

const (
	// ClassInput errors are the caller's fault and never retried.
	ClassInput Class = "InputError"
	// ClassResource errors are absorbed into a degraded report when any
	// modality can still run.
	ClassResource Class = "ResourceError"
	// ClassTimeout errors are absorbed into a partial report.
	ClassTimeout Class = "TimeoutError"
	// ClassInternal errors are programming faults and always surface.
	ClassInternal Class = "InternalInconsistency"
)

var codeClass = map[Code]Class{
	CodeCaseNotFound:          ClassInput,
	CodeInvalidInput:          ClassInput,
	CodeImageUnavailable:      ClassResource,
	CodeModelUnavailable:      ClassResource,
	CodeStoreUnavailable:      ClassResource,
	CodeTimeout:               ClassTimeout,
	CodeInternalInconsistency: ClassInternal,
}

// Class returns the class of c.
func (c Code) Class() Class { return codeClass[c] }

// HTTPStatus maps c to the response status used by the API.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeCaseNotFound:
		return http.StatusNotFound
	case CodeInvalidInput:
		return http.StatusBadRequest
	case CodeImageUnavailable:
		return http.StatusFailedDependency
	case CodeModelUnavailable, CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the engine's typed failure.
type Error struct {
	Code    Code
	Class   Class
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(code Code, msg string, err error) *Error {
	return &Error{Code: code, Class: code.Class(), Message: msg, Err: err}
}

// classify maps a stage error onto the taxonomy.
func classify(err error) *Error {
	var e *Error
	var imgErr *imaging.ErrImageUnavailable
	var modelErr *model.ErrUnavailable
	var ie *align.InconsistencyError
	var mp *feedback.ErrMissingPillar
	switch {
	case errors.As(err, &e):
		return e
	case errors.Is(err, store.ErrCaseNotFound):
		return newError(CodeCaseNotFound, "case not found", err)
	case errors.As(err, &imgErr):
		return newError(CodeImageUnavailable, "image unavailable", err)
	case errors.As(err, &modelErr), errors.Is(err, model.ErrClosed):
		return newError(CodeModelUnavailable, "model unavailable", err)
	case errors.Is(err, context.DeadlineExceeded):
		return newError(CodeTimeout, "deadline exceeded", err)
	case errors.As(err, &ie), errors.As(err, &mp):
		return newError(CodeInternalInconsistency, "inconsistent grading state", err)
	default:
		return newError(CodeInternalInconsistency, "unexpected failure", err)
	}
}
