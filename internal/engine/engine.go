// Package engine orchestrates one submission through image analysis,
// text extraction, alignment, scoring and assembly.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/cache"
	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/feedback"
	"github.com/abhisek/radgrade/internal/imaging"
	"github.com/abhisek/radgrade/internal/scoring"
	"github.com/abhisek/radgrade/internal/store"
	"github.com/abhisek/radgrade/internal/vocab"
)

// Config holds the per-submission deadlines and input limits.
type Config struct {
	SubmissionTimeout time.Duration `yaml:"submissionTimeout"`
	ImageTimeout      time.Duration `yaml:"imageTimeout"`
	TextTimeout       time.Duration `yaml:"textTimeout"`
	// MaxReportRunes bounds accepted report text.
	MaxReportRunes int `yaml:"maxReportRunes"`
}

// DefaultConfig returns the stock deadlines.
func DefaultConfig() Config {
	return Config{
		SubmissionTimeout: 30 * time.Second,
		ImageTimeout:      20 * time.Second,
		TextTimeout:       25 * time.Second,
		MaxReportRunes:    20000,
	}
}

// Validate checks the deadlines.
func (c Config) Validate() error {
	if c.SubmissionTimeout <= 0 || c.ImageTimeout <= 0 || c.TextTimeout <= 0 {
		return fmt.Errorf("engine timeouts must be positive")
	}
	if c.MaxReportRunes <= 0 {
		return fmt.Errorf("engine.maxReportRunes must be positive")
	}
	return nil
}

// Submission is a student report to grade. It is never persisted.
type Submission struct {
	CaseID     string `json:"caseId"`
	ReportText string `json:"reportText"`
	// ImageRef overrides the case's image when set.
	ImageRef string `json:"imageRef,omitempty"`
}

// Run is the outcome of one submission.
type Run struct {
	Report *feedback.Report
	Trace  []Transition
	// Absorbed lists resource and timeout errors folded into the report.
	Absorbed []*Error
	Cached   bool
}

// Deps wires the engine's collaborators.
type Deps struct {
	Cases      store.CaseRepo
	Events     store.EventRepo
	Vocabulary *vocab.Vocabulary
	Predictor  *imaging.Predictor
	Pipeline   *extract.Pipeline
	Scorer     *scoring.Scorer
	Alignment  align.Options
	Cache      cache.Cache
	Tracer     trace.Tracer
	Logger     *slog.Logger
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Engine grades submissions. It is safe for concurrent use; each
// submission is processed independently.
type Engine struct {
	cfg       Config
	deps      Deps
	assembler *feedback.Assembler
	log       *slog.Logger
}

// New validates cfg and fills defaults for optional deps.
func New(cfg Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Cases == nil || deps.Vocabulary == nil || deps.Predictor == nil || deps.Pipeline == nil || deps.Scorer == nil {
		return nil, errors.New("engine: cases, vocabulary, predictor, pipeline and scorer are required")
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("radgrade")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Engine{
		cfg:       cfg,
		deps:      deps,
		assembler: feedback.NewAssembler(deps.Now),
		log:       deps.Logger,
	}, nil
}

// ModelVersions returns name@version per configured model role.
func (e *Engine) ModelVersions() map[string]string {
	out := make(map[string]string, 2)
	if id := e.deps.Predictor.ModelID(); id != "" {
		out["image"] = id
	}
	if id := e.deps.Pipeline.ModelID(); id != "" {
		out["text"] = id
	}
	return out
}

// Grade processes sub and returns its report.
func (e *Engine) Grade(ctx context.Context, sub Submission) (*feedback.Report, error) {
	run, err := e.Process(ctx, sub)
	if err != nil {
		return nil, err
	}
	return run.Report, nil
}

// branches collects the concurrent stage outputs.
type branches struct {
	mu       sync.Mutex
	image    []clinical.ImagePrediction
	imageOK  bool
	text     extract.Result
	textOK   bool
	degraded []string
	partial  []string
	notes    []string
	absorbed []*Error

	imageModelDown bool
	textModelDown  bool
}

func (b *branches) absorb(stage string, err *Error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.absorbed = append(b.absorbed, err)
	if err.Class == ClassTimeout {
		b.partial = append(b.partial, stage)
		b.notes = append(b.notes, fmt.Sprintf("%s stage did not complete before the deadline", stage))
		return
	}
	b.degraded = append(b.degraded, stage)
	b.notes = append(b.notes, fmt.Sprintf("%s: %v", stage, err.Err))
}

// Process runs the full state machine for sub. On failure the returned
// error is always *Error.
func (e *Engine) Process(ctx context.Context, sub Submission) (*Run, error) {
	start := e.deps.Now()
	id := e.deps.NewID()
	tr := newTracker(e.deps.Now)
	log := e.log.With("submission_id", id, "case_id", sub.CaseID)

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SubmissionTimeout)
	defer cancel()
	ctx, span := e.deps.Tracer.Start(ctx, "submission",
		trace.WithAttributes(attribute.String("submission.id", id), attribute.String("case.id", sub.CaseID)))
	defer span.End()

	fail := func(err *Error) (*Run, error) {
		_ = tr.advance(StateFailed, string(err.Code))
		span.SetStatus(codes.Error, string(err.Code))
		span.RecordError(err)
		log.Warn("submission failed", "code", err.Code, "state", tr.state(), "error", err)
		e.recordSubmission(ctx, store.SubmissionEventData{
			SubmissionID: id,
			CaseID:       sub.CaseID,
			Outcome:      string(err.Code),
			LatencyMs:    e.deps.Now().Sub(start).Milliseconds(),
		})
		return &Run{Trace: tr.history()}, err
	}

	if err := e.validate(sub); err != nil {
		return fail(err)
	}

	c, err := e.deps.Cases.Get(ctx, sub.CaseID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCaseNotFound):
			return fail(newError(CodeCaseNotFound, fmt.Sprintf("no case %q", sub.CaseID), err))
		case ctx.Err() != nil:
			return fail(newError(CodeTimeout, "deadline expired before the case was loaded", ctx.Err()))
		default:
			return fail(newError(CodeStoreUnavailable, "case store unavailable", err))
		}
	}
	imageRef := strings.TrimSpace(sub.ImageRef)
	if imageRef == "" {
		imageRef = c.ImageRef
	}

	versions := e.ModelVersions()
	key := cache.Key(cache.KeyParts{
		CaseID:            c.ID,
		ReportText:        extract.Normalize(sub.ReportText),
		ImageRef:          imageRef,
		ModelVersions:     versions,
		VocabularyVersion: e.deps.Vocabulary.Version(),
		GroundTruth:       c.GroundTruthFindings,
	})
	if report, ok := e.fromCache(ctx, key, log); ok {
		report = report.WithSubmission(id, e.deps.Now().Sub(start))
		if err := tr.advance(StateAssembled, "cache hit"); err != nil {
			return fail(classify(err))
		}
		return e.deliver(ctx, tr, span, log, &Run{Report: report, Cached: true}, start)
	}

	var b branches
	var g errgroup.Group
	g.Go(func() error {
		return e.imageStage(ctx, c, imageRef, tr, &b)
	})
	g.Go(func() error {
		return e.textStage(ctx, sub.ReportText, tr, &b)
	})
	if err := g.Wait(); err != nil {
		return fail(classify(err))
	}

	if err := e.surfaceUnavailable(&b); err != nil {
		return fail(err)
	}

	al, inputs, err := e.alignStage(ctx, c, tr, &b)
	if err != nil {
		return fail(classify(err))
	}

	scores, err := e.scoreStage(ctx, al, tr, &b)
	if err != nil {
		return fail(classify(err))
	}

	_, aspan := e.deps.Tracer.Start(ctx, "assemble")
	report, err := e.assembler.Assemble(feedback.Input{
		SubmissionID:      id,
		CaseID:            c.ID,
		Scores:            scores,
		Alignment:         al,
		AlignInputs:       inputs,
		ModelVersions:     versions,
		VocabularyVersion: e.deps.Vocabulary.Version(),
		Degraded:          b.degraded,
		Partial:           b.partial,
		Notes:             b.notes,
		Latency:           e.deps.Now().Sub(start),
	})
	aspan.End()
	if err != nil {
		return fail(classify(err))
	}
	if err := tr.advance(StateAssembled, ""); err != nil {
		return fail(classify(err))
	}

	if cacheable(&b) {
		e.toCache(ctx, key, report, log)
	}
	return e.deliver(ctx, tr, span, log, &Run{Report: report, Absorbed: b.absorbed}, start)
}

func (e *Engine) validate(sub Submission) *Error {
	if strings.TrimSpace(sub.CaseID) == "" {
		return newError(CodeInvalidInput, "caseId is required", nil)
	}
	if strings.TrimSpace(sub.ReportText) == "" {
		return newError(CodeInvalidInput, "reportText is required", nil)
	}
	if !utf8.ValidString(sub.ReportText) {
		return newError(CodeInvalidInput, "reportText must be valid UTF-8", nil)
	}
	if n := utf8.RuneCountInString(sub.ReportText); n > e.cfg.MaxReportRunes {
		return newError(CodeInvalidInput, fmt.Sprintf("reportText exceeds %d characters", e.cfg.MaxReportRunes), nil)
	}
	return nil
}

func (e *Engine) imageStage(ctx context.Context, c clinical.Case, imageRef string, tr *tracker, b *branches) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ImageTimeout)
	defer cancel()
	ctx, span := e.deps.Tracer.Start(ctx, "image")
	defer span.End()

	began := e.deps.Now()
	preds, err := e.deps.Predictor.Predict(ctx, imageRef, c.ID)
	switch {
	case err == nil:
		b.mu.Lock()
		b.image, b.imageOK = preds, true
		b.mu.Unlock()
		span.SetAttributes(attribute.Int("image.predictions", len(preds)))
		e.log.Debug("image analyzed", "stage", "image", "case_id", c.ID, "predictions", len(preds), "latency_ms", e.deps.Now().Sub(began).Milliseconds())
		return tr.advance(StateImageAnalyzed, "")
	case ctx.Err() != nil:
		b.absorb("image", newError(CodeTimeout, "image stage timed out", ctx.Err()))
		span.SetAttributes(attribute.Bool("partial", true))
		return nil
	default:
		ee := classify(err)
		if ee.Class == ClassInternal {
			// An unrecognised image model failure is still an outage.
			ee = newError(CodeModelUnavailable, "image model failed", err)
		}
		b.absorb("image", ee)
		if ee.Code == CodeModelUnavailable {
			b.mu.Lock()
			b.imageModelDown = true
			b.mu.Unlock()
		}
		span.SetAttributes(attribute.Bool("degraded", true))
		e.log.Info("image stage degraded", "stage", "image", "case_id", c.ID, "code", ee.Code, "error", err)
		return tr.advance(StateImageAnalyzed, "degraded")
	}
}

func (e *Engine) textStage(ctx context.Context, raw string, tr *tracker, b *branches) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TextTimeout)
	defer cancel()
	ctx, span := e.deps.Tracer.Start(ctx, "text")
	defer span.End()

	began := e.deps.Now()
	res, err := e.deps.Pipeline.Run(ctx, raw)
	if err != nil {
		b.absorb("text", newError(CodeTimeout, "text stage did not complete", err))
		span.SetAttributes(attribute.Bool("partial", true))
		return nil
	}

	b.mu.Lock()
	b.text, b.textOK = res, true
	b.textModelDown = res.Degraded && !res.Partial
	b.mu.Unlock()
	span.SetAttributes(
		attribute.Int("text.findings", len(res.Findings)),
		attribute.Int("text.unclassified", res.UnclassifiedCount),
		attribute.Bool("degraded", res.Degraded),
	)
	note := ""
	switch {
	case res.Partial:
		note = "partial"
		b.absorb("text", newError(CodeTimeout, "text model cut off", errors.New(strings.Join(res.Notes, "; "))))
		span.SetAttributes(attribute.Bool("partial", true))
	case res.Degraded:
		note = "degraded"
		ee := newError(CodeModelUnavailable, "text model unavailable", errors.New(strings.Join(res.Notes, "; ")))
		b.absorb("text", ee)
	}
	e.log.Debug("text extracted", "stage", "text", "findings", len(res.Findings), "unclassified", res.UnclassifiedCount,
		"degraded", res.Degraded, "latency_ms", e.deps.Now().Sub(began).Milliseconds())
	return tr.advance(StateTextExtracted, note)
}

// surfaceUnavailable fails the submission when both models are down.
// Lexical matching alone is not enough to grade against an image that
// could not be analyzed either.
func (e *Engine) surfaceUnavailable(b *branches) *Error {
	if !b.imageModelDown || !b.textModelDown {
		return nil
	}
	errs := make([]error, len(b.absorbed))
	for i, ae := range b.absorbed {
		errs[i] = ae
	}
	return newError(CodeModelUnavailable, "no model available for grading", errors.Join(errs...))
}

func (e *Engine) alignStage(ctx context.Context, c clinical.Case, tr *tracker, b *branches) (align.Result, align.Inputs, error) {
	_, span := e.deps.Tracer.Start(ctx, "align")
	defer span.End()

	var in align.Inputs
	var res align.Result
	if b.textOK {
		in = align.Inputs{
			GroundTruth: c.GroundTruthFindings,
			Image:       e.deps.Predictor.AboveThreshold(b.image),
			Extracted:   b.text.Findings,
		}
		res = align.Align(in, e.deps.Alignment)
	} else {
		res = align.Result{Correct: []align.Entry{}, Missed: []align.Entry{}, Misinterpreted: []align.Entry{}}
	}
	if err := align.Verify(res, in); err != nil {
		span.RecordError(err)
		return align.Result{}, in, err
	}
	span.SetAttributes(
		attribute.Int("align.correct", len(res.Correct)),
		attribute.Int("align.missed", len(res.Missed)),
		attribute.Int("align.misinterpreted", len(res.Misinterpreted)),
	)
	return res, in, tr.advance(StateAligned, "")
}

func (e *Engine) scoreStage(ctx context.Context, al align.Result, tr *tracker, b *branches) (scoring.Result, error) {
	_, span := e.deps.Tracer.Start(ctx, "score")
	defer span.End()

	var text *extract.Result
	if b.textOK {
		text = &b.text
	}
	res, err := e.deps.Scorer.Score(al, text)
	if err != nil {
		span.RecordError(err)
		return scoring.Result{}, err
	}
	span.SetAttributes(attribute.Int("score", res.Summary.Score), attribute.Bool("score.computed", res.Summary.Computed))
	return res, tr.advance(StateScored, "")
}

func (e *Engine) deliver(ctx context.Context, tr *tracker, span trace.Span, log *slog.Logger, run *Run, start time.Time) (*Run, error) {
	if err := tr.advance(StateDelivered, ""); err != nil {
		return nil, classify(err)
	}
	run.Trace = tr.history()

	r := run.Report
	span.SetAttributes(
		attribute.Bool("degraded", r.Degraded()),
		attribute.Bool("partial", r.Partial()),
		attribute.Bool("cached", run.Cached),
	)
	latency := e.deps.Now().Sub(start)
	log.Info("submission graded",
		"latency_ms", latency.Milliseconds(),
		"score", r.Summary().Score,
		"degraded", r.Degraded(),
		"partial", r.Partial(),
		"cached", run.Cached,
	)
	e.recordSubmission(ctx, store.SubmissionEventData{
		SubmissionID: r.SubmissionID(),
		CaseID:       r.CaseID(),
		Outcome:      "OK",
		LatencyMs:    latency.Milliseconds(),
		Degraded:     r.Degraded(),
		Partial:      r.Partial(),
		Score:        r.Summary().Score,
	})
	return run, nil
}

func (e *Engine) recordSubmission(ctx context.Context, data store.SubmissionEventData) {
	if e.deps.Events == nil {
		return
	}
	if err := e.deps.Events.AppendSubmission(context.WithoutCancel(ctx), data); err != nil {
		e.log.Warn("failed to record submission event", "submission_id", data.SubmissionID, "error", err)
	}
}

func (e *Engine) fromCache(ctx context.Context, key string, log *slog.Logger) (*feedback.Report, bool) {
	data, ok, err := e.deps.Cache.Get(ctx, key)
	if err != nil {
		log.Warn("cache read failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	report, err := feedback.Decode(data)
	if err != nil {
		log.Warn("discarding unreadable cache entry", "error", err)
		return nil, false
	}
	return report, true
}

func (e *Engine) toCache(ctx context.Context, key string, r *feedback.Report, log *slog.Logger) {
	data, err := r.MarshalJSON()
	if err != nil {
		log.Warn("cache encode failed", "error", err)
		return
	}
	if err := e.deps.Cache.Set(context.WithoutCancel(ctx), key, data); err != nil {
		log.Warn("cache write failed", "error", err)
	}
}

// cacheable excludes partial reports and reports degraded by a model
// outage, which may grade differently on retry.
func cacheable(b *branches) bool {
	for _, ae := range b.absorbed {
		if ae.Code != CodeImageUnavailable {
			return false
		}
	}
	return true
}
