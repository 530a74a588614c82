package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/cache"
	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/imaging"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/scoring"
	"github.com/abhisek/radgrade/internal/store"
	"github.com/abhisek/radgrade/internal/vocab"
)

type memCases struct {
	cases map[string]clinical.Case
	err   error
}

func (m *memCases) Get(_ context.Context, id string) (clinical.Case, error) {
	if m.err != nil {
		return clinical.Case{}, m.err
	}
	c, ok := m.cases[store.NormalizeCaseID(id)]
	if !ok {
		return clinical.Case{}, fmt.Errorf("%w: %s", store.ErrCaseNotFound, id)
	}
	return c.Clone(), nil
}

func (m *memCases) List(context.Context) ([]clinical.Case, error) { return nil, nil }
func (m *memCases) Put(context.Context, clinical.Case) error { return nil }
func (m *memCases) Count(context.Context) (int, error) { return len(m.cases), nil }

type recordedEvents struct {
	mu          sync.Mutex
	submissions []store.SubmissionEventData
}

func (r *recordedEvents) AppendModelCall(context.Context, store.ModelEventData) error { return nil }

func (r *recordedEvents) AppendSubmission(_ context.Context, d store.SubmissionEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submissions = append(r.submissions, d)
	return nil
}

func (r *recordedEvents) QueryModelEvents(context.Context, store.QueryOpts) ([]store.ModelEvent, error) {
	return nil, nil
}

func (r *recordedEvents) QuerySubmissionEvents(context.Context, store.QueryOpts) ([]store.SubmissionEvent, error) {
	return nil, nil
}

const caseID = "00013118_005"

type fixture struct {
	cases     *memCases
	events    *recordedEvents
	imageM    model.Model
	textM     model.Model
	cache     cache.Cache
	tracer    *sdktrace.TracerProvider
	recorder  *tracetest.SpanRecorder
	cfg       Config
	idCounter int
}

func newFixture() *fixture {
	rec := tracetest.NewSpanRecorder()
	return &fixture{
		cases: &memCases{cases: map[string]clinical.Case{
			caseID: {
				ID:       caseID,
				ImageRef: caseID + ".png",
				GroundTruthFindings: []clinical.Finding{
					{CanonicalID: "pneumothorax", Polarity: clinical.PolarityPresent},
				},
			},
		}},
		events:   &recordedEvents{},
		textM:    &model.Static{ModelName: "fake-text", ModelKind: model.KindText},
		recorder: rec,
		tracer:   sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)),
		cfg:      DefaultConfig(),
	}
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	v := vocab.Default()
	scorer, err := scoring.NewScorer(v, scoring.DefaultConfig())
	require.NoError(t, err)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e, err := New(f.cfg, Deps{
		Cases:      f.cases,
		Events:     f.events,
		Vocabulary: v,
		Predictor:  imaging.NewPredictor(f.imageM, v, imaging.DefaultThreshold),
		Pipeline:   extract.NewPipeline(v, f.textM, extract.DefaultOptions()),
		Scorer:     scorer,
		Alignment:  align.DefaultOptions(),
		Cache:      f.cache,
		Tracer:     f.tracer.Tracer("test"),
		Now:        func() time.Time { return fixed },
		NewID: func() string {
			f.idCounter++
			return fmt.Sprintf("sub-%d", f.idCounter)
		},
	})
	require.NoError(t, err)
	return e
}

func states(tr []Transition) []State {
	out := make([]State, 0, len(tr)+1)
	if len(tr) > 0 {
		out = append(out, tr[0].From)
	}
	for _, t := range tr {
		out = append(out, t.To)
	}
	return out
}

func blocking(kind model.Kind) *model.Static {
	return &model.Static{ModelKind: kind, Fn: func(ctx context.Context, _ model.Input) ([]model.Label, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
}

func TestProcess_ContradictionWithoutImage(t *testing.T) {
	f := newFixture()
	run, err := f.engine(t).Process(context.Background(), Submission{
		CaseID:     caseID + ".png",
		ReportText: "No pneumothorax. Mild cardiomegaly noted.",
	})
	require.NoError(t, err)

	r := run.Report
	require.Len(t, r.Pillar3(), 2)
	assert.Equal(t, align.KindContradiction, r.Pillar3()[0].Kind)
	assert.Equal(t, align.KindOvercall, r.Pillar3()[1].Kind)
	assert.True(t, r.Degraded())
	assert.False(t, r.Partial())
	assert.Equal(t, []string{"image"}, r.Provenance().Degraded)
	assert.Equal(t, "sub-1", r.SubmissionID())
	assert.Equal(t, caseID, r.CaseID())

	require.Len(t, run.Absorbed, 1)
	assert.Equal(t, CodeImageUnavailable, run.Absorbed[0].Code)

	got := states(run.Trace)
	require.Len(t, got, 7)
	assert.Equal(t, StateReceived, got[0])
	assert.ElementsMatch(t, []State{StateImageAnalyzed, StateTextExtracted}, got[1:3])
	assert.Equal(t, []State{StateAligned, StateScored, StateAssembled, StateDelivered}, got[3:])

	require.Len(t, f.events.submissions, 1)
	assert.Equal(t, "OK", f.events.submissions[0].Outcome)
	assert.True(t, f.events.submissions[0].Degraded)
}

func TestProcess_ImageConfirmsFinding(t *testing.T) {
	f := newFixture()
	f.imageM = &model.Static{ModelName: "fake-image", ModelKind: model.KindImage, Labels: []model.Label{
		{ConceptID: "cardiomegaly", Confidence: 0.9},
		{ConceptID: "edema", Confidence: 0.3},
	}}
	e := f.engine(t)
	run, err := e.Process(context.Background(), Submission{
		CaseID:     caseID,
		ReportText: "Findings: Pneumothorax on the right. Mild cardiomegaly noted.\nImpression: Pneumothorax.",
	})
	require.NoError(t, err)

	r := run.Report
	assert.Len(t, r.Pillar1(), 2)
	assert.Empty(t, r.Pillar2())
	assert.Empty(t, r.Pillar3())
	assert.False(t, r.Degraded())
	assert.Equal(t, map[string]string{"image": "fake-image@0.0.0", "text": "fake-text@0.0.0"}, r.Provenance().ModelVersions)
	assert.Equal(t, e.ModelVersions(), r.Provenance().ModelVersions)
}

func TestProcess_InputErrors(t *testing.T) {
	tests := []struct {
		name  string
		sub   Submission
		want  Code
		state State
	}{
		{"unknown case", Submission{CaseID: "nope", ReportText: "No effusion."}, CodeCaseNotFound, StateFailed},
		{"empty report", Submission{CaseID: caseID, ReportText: "  "}, CodeInvalidInput, StateFailed},
		{"missing case id", Submission{ReportText: "No effusion."}, CodeInvalidInput, StateFailed},
		{"invalid utf8", Submission{CaseID: caseID, ReportText: "\xff\xfe"}, CodeInvalidInput, StateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			run, err := f.engine(t).Process(context.Background(), tt.sub)

			var ee *Error
			require.True(t, errors.As(err, &ee), "got %v", err)
			assert.Equal(t, tt.want, ee.Code)
			assert.Equal(t, ClassInput, ee.Class)
			got := states(run.Trace)
			assert.Equal(t, []State{StateReceived, tt.state}, got)
		})
	}
}

func TestProcess_StoreFailure(t *testing.T) {
	f := newFixture()
	f.cases.err = errors.New("disk gone")
	_, err := f.engine(t).Process(context.Background(), Submission{CaseID: caseID, ReportText: "No effusion."})
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, CodeStoreUnavailable, ee.Code)
	assert.Equal(t, http.StatusServiceUnavailable, ee.Code.HTTPStatus())
}

func TestProcess_ImageTimeoutIsPartial(t *testing.T) {
	f := newFixture()
	f.imageM = blocking(model.KindImage)
	f.cfg.ImageTimeout = 20 * time.Millisecond

	run, err := f.engine(t).Process(context.Background(), Submission{CaseID: caseID, ReportText: "No pneumothorax."})
	require.NoError(t, err)

	r := run.Report
	assert.True(t, r.Partial())
	assert.Equal(t, []string{"image"}, r.Provenance().Partial)
	require.Len(t, r.Pillar3(), 1)
	assert.Equal(t, "pneumothorax", r.Pillar3()[0].CanonicalID)
	assert.Equal(t, []State{StateReceived, StateTextExtracted, StateAligned, StateScored, StateAssembled, StateDelivered}, states(run.Trace))
}

func TestProcess_TextTimeoutKeepsLexicalFindings(t *testing.T) {
	f := newFixture()
	f.textM = blocking(model.KindText)
	f.cfg.TextTimeout = 20 * time.Millisecond

	run, err := f.engine(t).Process(context.Background(), Submission{CaseID: caseID, ReportText: "No pneumothorax. Osteopenia noted."})
	require.NoError(t, err)

	r := run.Report
	assert.True(t, r.Partial())
	assert.Equal(t, []string{"text"}, r.Provenance().Partial)
	assert.Equal(t, []string{"image"}, r.Provenance().Degraded)
	require.Len(t, r.Pillar3(), 1)
	assert.Equal(t, "pneumothorax", r.Pillar3()[0].CanonicalID)
	assert.Equal(t, align.KindContradiction, r.Pillar3()[0].Kind)
}

func TestProcess_ImageModelErrorDegrades(t *testing.T) {
	f := newFixture()
	f.imageM = &model.Static{ModelName: "fake-image", ModelKind: model.KindImage, Err: errors.New("cuda out of memory")}

	run, err := f.engine(t).Process(context.Background(), Submission{
		CaseID:     caseID,
		ReportText: "Pneumothorax on the right. Mild cardiomegaly noted.",
	})
	require.NoError(t, err)

	r := run.Report
	assert.Equal(t, []string{"image"}, r.Provenance().Degraded)
	require.Len(t, run.Absorbed, 1)
	assert.Equal(t, CodeModelUnavailable, run.Absorbed[0].Code)

	// Pneumothorax is confirmed by ground truth; cardiomegaly has no
	// image to back it and stays an overcall.
	require.Len(t, r.Pillar1(), 1)
	assert.Equal(t, "pneumothorax", r.Pillar1()[0].CanonicalID)
	assert.Empty(t, r.Pillar2())
	require.Len(t, r.Pillar3(), 1)
	assert.Equal(t, align.KindOvercall, r.Pillar3()[0].Kind)
}

func TestProcess_AllModelsDown(t *testing.T) {
	f := newFixture()
	f.imageM = &model.Static{ModelKind: model.KindImage, Err: &model.ErrUnavailable{Model: "img", Err: errors.New("down")}}
	f.textM = &model.Static{ModelKind: model.KindText, Err: errors.New("offline")}

	run, err := f.engine(t).Process(context.Background(), Submission{CaseID: caseID, ReportText: "No pneumothorax. Osteopenia noted."})
	var ee *Error
	require.True(t, errors.As(err, &ee), "got %v", err)
	assert.Equal(t, CodeModelUnavailable, ee.Code)
	assert.Equal(t, ClassResource, ee.Class)
	assert.Equal(t, StateFailed, states(run.Trace)[len(run.Trace)])
}

func TestProcess_TextModelDownDegrades(t *testing.T) {
	f := newFixture()
	f.textM = &model.Static{ModelKind: model.KindText, Err: errors.New("offline")}

	run, err := f.engine(t).Process(context.Background(), Submission{CaseID: caseID, ReportText: "No pneumothorax. Osteopenia noted."})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"image", "text"}, run.Report.Provenance().Degraded)
	assert.Len(t, run.Report.Pillar3(), 1)
}

func TestProcess_Cache(t *testing.T) {
	f := newFixture()
	f.cache = cache.NewMemory(time.Hour, nil)
	e := f.engine(t)
	sub := Submission{CaseID: caseID, ReportText: "No pneumothorax.\nMild cardiomegaly noted."}

	first, err := e.Process(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	sub.ReportText = "No pneumothorax.\r\nMild cardiomegaly noted."
	second, err := e.Process(context.Background(), sub)
	require.NoError(t, err)
	require.True(t, second.Cached)
	assert.Equal(t, "sub-2", second.Report.SubmissionID())
	assert.Equal(t, first.Report.Pillar3(), second.Report.Pillar3())
	assert.Equal(t, first.Report.Summary(), second.Report.Summary())
	assert.Equal(t, []State{StateReceived, StateAssembled, StateDelivered}, states(second.Trace))
}

func TestProcess_CacheFollowsGroundTruth(t *testing.T) {
	f := newFixture()
	f.cache = cache.NewMemory(time.Hour, nil)
	e := f.engine(t)
	sub := Submission{CaseID: caseID, ReportText: "No pneumothorax."}

	first, err := e.Process(context.Background(), sub)
	require.NoError(t, err)
	require.Len(t, first.Report.Pillar3(), 1)

	c := f.cases.cases[caseID]
	c.GroundTruthFindings = []clinical.Finding{{CanonicalID: "pneumothorax", Polarity: clinical.PolarityAbsent}}
	f.cases.cases[caseID] = c

	second, err := e.Process(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, second.Cached)
	assert.Empty(t, second.Report.Pillar3())
	assert.Len(t, second.Report.Pillar1(), 1)
}

func TestProcess_PartialNotCached(t *testing.T) {
	f := newFixture()
	f.cache = cache.NewMemory(time.Hour, nil)
	f.imageM = blocking(model.KindImage)
	f.cfg.ImageTimeout = 10 * time.Millisecond
	e := f.engine(t)

	sub := Submission{CaseID: caseID, ReportText: "No pneumothorax."}
	_, err := e.Process(context.Background(), sub)
	require.NoError(t, err)
	again, err := e.Process(context.Background(), sub)
	require.NoError(t, err)
	assert.False(t, again.Cached)
}

func TestProcess_Spans(t *testing.T) {
	f := newFixture()
	_, err := f.engine(t).Process(context.Background(), Submission{CaseID: caseID, ReportText: "No pneumothorax."})
	require.NoError(t, err)

	names := map[string]bool{}
	for _, s := range f.recorder.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"submission", "image", "text", "align", "score", "assemble"} {
		assert.True(t, names[want], "missing span %q", want)
	}
}

func TestProcess_Deterministic(t *testing.T) {
	f := newFixture()
	f.imageM = &model.Static{ModelName: "fake-image", ModelKind: model.KindImage, Labels: []model.Label{
		{ConceptID: "cardiomegaly", Confidence: 0.9},
		{ConceptID: "edema", Confidence: 0.7},
	}}
	e := f.engine(t)
	sub := Submission{CaseID: caseID, ReportText: "Findings: No pneumothorax. Possible edema. Cardiomegaly."}

	body := func() map[string]any {
		r, err := e.Grade(context.Background(), sub)
		require.NoError(t, err)
		raw, err := json.Marshal(r)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		delete(m, "submissionId")
		return m
	}

	first := body()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, body())
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateReceived, StateImageAnalyzed, true},
		{StateReceived, StateTextExtracted, true},
		{StateImageAnalyzed, StateTextExtracted, true},
		{StateTextExtracted, StateAligned, true},
		{StateAligned, StateScored, true},
		{StateScored, StateAssembled, true},
		{StateAssembled, StateDelivered, true},
		{StateReceived, StateScored, false},
		{StateAligned, StateDelivered, false},
		{StateDelivered, StateFailed, false},
		{StateFailed, StateFailed, false},
		{StateScored, StateFailed, true},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTracker_RejectsInvalid(t *testing.T) {
	tr := newTracker(time.Now)
	err := tr.advance(StateScored, "")
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, CodeInternalInconsistency, ee.Code)
	assert.Equal(t, StateReceived, tr.state())
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := map[Code]int{
		CodeCaseNotFound:          http.StatusNotFound,
		CodeInvalidInput:          http.StatusBadRequest,
		CodeImageUnavailable:      http.StatusFailedDependency,
		CodeModelUnavailable:      http.StatusServiceUnavailable,
		CodeTimeout:               http.StatusGatewayTimeout,
		CodeInternalInconsistency: http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", code, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	ie := &align.InconsistencyError{Missing: []string{"edema"}}
	assert.Equal(t, CodeInternalInconsistency, classify(fmt.Errorf("wrap: %w", ie)).Code)
	assert.Equal(t, CodeTimeout, classify(context.DeadlineExceeded).Code)
	assert.Equal(t, CodeImageUnavailable, classify(&imaging.ErrImageUnavailable{ImageRef: "x"}).Code)
	assert.Equal(t, CodeModelUnavailable, classify(model.ErrClosed).Code)
}
