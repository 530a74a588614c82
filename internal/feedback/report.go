// Package feedback packages scored pillars into the immutable report
// returned to students.
package feedback

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/abhisek/radgrade/internal/scoring"
)

// Provenance records what produced a report.
type Provenance struct {
	// ModelVersions maps a role ("image", "text") to name@version.
	ModelVersions     map[string]string `json:"modelVersions"`
	VocabularyVersion string            `json:"vocabularyVersion"`
	Timestamp         time.Time         `json:"timestamp"`
	// Degraded lists modalities that ran in a reduced mode.
	Degraded []string `json:"degraded"`
	// Partial lists stages that did not complete before the deadline.
	Partial []string `json:"partial"`
	Notes   []string `json:"notes"`
}

func (p Provenance) clone() Provenance {
	p.ModelVersions = maps.Clone(p.ModelVersions)
	p.Degraded = slices.Clone(p.Degraded)
	p.Partial = slices.Clone(p.Partial)
	p.Notes = slices.Clone(p.Notes)
	return p
}

// Report is the five-pillar feedback for one submission. It cannot be
// modified after assembly; accessors return copies.
type Report struct {
	submissionID string
	caseID       string
	scores       scoring.Result
	provenance   Provenance
	latency      time.Duration
}

func (r *Report) SubmissionID() string { return r.submissionID }
func (r *Report) CaseID() string { return r.caseID }

func (r *Report) Pillar1() []scoring.Observation { return slices.Clone(r.scores.Pillar1) }
func (r *Report) Pillar2() []scoring.Omission { return slices.Clone(r.scores.Pillar2) }
func (r *Report) Pillar3() []scoring.Misinterpretation { return slices.Clone(r.scores.Pillar3) }
func (r *Report) Pillar5() []scoring.Recommendation { return slices.Clone(r.scores.Pillar5) }

func (r *Report) Pillar4() scoring.Clarity {
	c := r.scores.Pillar4
	c.MissingSections = slices.Clone(c.MissingSections)
	c.StyleNotes = slices.Clone(c.StyleNotes)
	return c
}

func (r *Report) Summary() scoring.Summary { return r.scores.Summary }
func (r *Report) Provenance() Provenance { return r.provenance.clone() }

// Latency is the processing time recorded at assembly.
func (r *Report) Latency() time.Duration { return r.latency }

// Degraded reports whether any modality ran in a reduced mode.
func (r *Report) Degraded() bool { return len(r.provenance.Degraded) > 0 }

// Partial reports whether any stage missed the deadline.
func (r *Report) Partial() bool { return len(r.provenance.Partial) > 0 }

type reportJSON struct {
	SubmissionID        string                      `json:"submissionId"`
	CaseID              string                      `json:"caseId"`
	Pillar1             []scoring.Observation       `json:"pillar1"`
	Pillar2             []scoring.Omission          `json:"pillar2"`
	Pillar3             []scoring.Misinterpretation `json:"pillar3"`
	Pillar4             scoring.Clarity             `json:"pillar4"`
	Pillar5             []scoring.Recommendation    `json:"pillar5"`
	Summary             scoring.Summary             `json:"summary"`
	Provenance          Provenance                  `json:"provenance"`
	ProcessingLatencyMs int64                       `json:"processingLatencyMs"`
}

// MarshalJSON renders the response body.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		SubmissionID:        r.submissionID,
		CaseID:              r.caseID,
		Pillar1:             r.scores.Pillar1,
		Pillar2:             r.scores.Pillar2,
		Pillar3:             r.scores.Pillar3,
		Pillar4:             r.scores.Pillar4,
		Pillar5:             r.scores.Pillar5,
		Summary:             r.scores.Summary,
		Provenance:          r.provenance,
		ProcessingLatencyMs: r.latency.Milliseconds(),
	})
}

// Decode rebuilds a report from its JSON form, as stored by the cache.
func Decode(data []byte) (*Report, error) {
	var j reportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	r := &Report{
		submissionID: j.SubmissionID,
		caseID:       j.CaseID,
		scores: scoring.Result{
			Pillar1: j.Pillar1,
			Pillar2: j.Pillar2,
			Pillar3: j.Pillar3,
			Pillar4: j.Pillar4,
			Pillar5: j.Pillar5,
			Summary: j.Summary,
		},
		provenance: j.Provenance,
		latency:    time.Duration(j.ProcessingLatencyMs) * time.Millisecond,
	}
	if err := checkPillars(r.scores); err != nil {
		return nil, err
	}
	return r, nil
}

// WithSubmission returns a copy of r attributed to another submission.
// Cached reports are reissued this way.
func (r *Report) WithSubmission(id string, latency time.Duration) *Report {
	out := *r
	out.submissionID = id
	out.latency = latency
	return &out
}
