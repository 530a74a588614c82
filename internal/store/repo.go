package store

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/radgrade/internal/clinical"
)

// ErrCaseNotFound is returned when a case id has no stored case.
var ErrCaseNotFound = errors.New("case not found")

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit  int       // max results (0 = unlimited)
	After  int64     // sequence > After
	Before int64     // sequence < Before
	From   time.Time // timestamp >= From
	To     time.Time // timestamp <= To
}

// CaseRepo is the clinical case library.
type CaseRepo interface {
	// Get returns the case for id, or ErrCaseNotFound.
	Get(ctx context.Context, id string) (clinical.Case, error)

	// List returns every case ordered by id.
	List(ctx context.Context) ([]clinical.Case, error)

	// Put inserts or replaces a case.
	Put(ctx context.Context, c clinical.Case) error

	// Count returns the number of stored cases.
	Count(ctx context.Context) (int, error)
}

// ModelEventData captures one model invocation. Inputs and outputs are
// deliberately absent: report text is never persisted.
type ModelEventData struct {
	Model        string
	Kind         string
	Version      string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
}

// ModelEvent is a stored ModelEventData row.
type ModelEvent struct {
	ModelEventData
	ID        int64
	Sequence  int64
	Timestamp time.Time
}

// SubmissionEventData captures the outcome of one graded submission.
type SubmissionEventData struct {
	SubmissionID string
	CaseID       string
	Outcome      string
	LatencyMs    int64
	Degraded     bool
	Partial      bool
	Score        int
}

// SubmissionEvent is a stored SubmissionEventData row.
type SubmissionEvent struct {
	SubmissionEventData
	ID        int64
	Sequence  int64
	Timestamp time.Time
}

// EventRepo provides append and query access to operational events.
type EventRepo interface {
	AppendModelCall(ctx context.Context, data ModelEventData) error
	AppendSubmission(ctx context.Context, data SubmissionEventData) error
	QueryModelEvents(ctx context.Context, opts QueryOpts) ([]ModelEvent, error)
	QuerySubmissionEvents(ctx context.Context, opts QueryOpts) ([]SubmissionEvent, error)
}
