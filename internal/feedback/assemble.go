package feedback

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/scoring"
)

// ErrMissingPillar is returned when a pillar was never produced. An
// empty pillar is valid; a nil one is not.
type ErrMissingPillar struct {
	Pillar int
}

func (e *ErrMissingPillar) Error() string {
	return fmt.Sprintf("pillar %d missing", e.Pillar)
}

// Input is everything the assembler packages.
type Input struct {
	SubmissionID string
	CaseID       string
	Scores       scoring.Result

	// Alignment and AlignInputs are re-verified before packaging.
	Alignment   align.Result
	AlignInputs align.Inputs

	ModelVersions     map[string]string
	VocabularyVersion string
	Degraded          []string
	Partial           []string
	Notes             []string
	Latency           time.Duration
}

// Assembler builds reports. The clock stamps provenance.
type Assembler struct {
	now func() time.Time
}

// NewAssembler returns an assembler using now for timestamps, or
// time.Now when nil.
func NewAssembler(now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{now: now}
}

// Assemble validates in and freezes it into a Report. It fails with
// *ErrMissingPillar or *align.InconsistencyError.
func (a *Assembler) Assemble(in Input) (*Report, error) {
	if err := checkPillars(in.Scores); err != nil {
		return nil, err
	}
	if err := align.Verify(in.Alignment, in.AlignInputs); err != nil {
		var ie *align.InconsistencyError
		if errors.As(err, &ie) {
			return nil, ie
		}
		return nil, err
	}

	prov := Provenance{
		ModelVersions:     in.ModelVersions,
		VocabularyVersion: in.VocabularyVersion,
		Timestamp:         a.now().UTC(),
		Degraded:          nonNil(in.Degraded),
		Partial:           nonNil(in.Partial),
		Notes:             nonNil(in.Notes),
	}
	if prov.ModelVersions == nil {
		prov.ModelVersions = map[string]string{}
	}
	slices.Sort(prov.Degraded)
	slices.Sort(prov.Partial)

	return &Report{
		submissionID: in.SubmissionID,
		caseID:       in.CaseID,
		scores:       cloneScores(in.Scores),
		provenance:   prov.clone(),
		latency:      in.Latency,
	}, nil
}

func checkPillars(s scoring.Result) error {
	switch {
	case s.Pillar1 == nil:
		return &ErrMissingPillar{Pillar: 1}
	case s.Pillar2 == nil:
		return &ErrMissingPillar{Pillar: 2}
	case s.Pillar3 == nil:
		return &ErrMissingPillar{Pillar: 3}
	case s.Pillar4.MissingSections == nil || s.Pillar4.StyleNotes == nil:
		return &ErrMissingPillar{Pillar: 4}
	case s.Pillar5 == nil:
		return &ErrMissingPillar{Pillar: 5}
	}
	return nil
}

func cloneScores(s scoring.Result) scoring.Result {
	s.Pillar1 = slices.Clone(s.Pillar1)
	s.Pillar2 = slices.Clone(s.Pillar2)
	s.Pillar3 = slices.Clone(s.Pillar3)
	s.Pillar4.MissingSections = slices.Clone(s.Pillar4.MissingSections)
	s.Pillar4.StyleNotes = slices.Clone(s.Pillar4.StyleNotes)
	s.Pillar5 = slices.Clone(s.Pillar5)
	return s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
