package extract

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/vocab"
)

// DefaultSimilarityThreshold is τ, the minimum text model similarity for
// a mention to map onto a concept.
const DefaultSimilarityThreshold = 0.82

// Options configures a Pipeline.
type Options struct {
	SimilarityThreshold float64
	Lexicon             Lexicon
	ScopeWindow         int
	// Sections are additional header names recognized by segmentation.
	Sections []string
}

// DefaultOptions returns the default extraction settings.
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: DefaultSimilarityThreshold,
		Lexicon:             DefaultLexicon(),
		ScopeWindow:         DefaultScopeWindow,
	}
}

// Result is the output of one extraction run.
type Result struct {
	// Text is the normalized report that all spans index into.
	Text      string
	Sentences []Sentence
	Headers   []string

	Findings     []clinical.ExtractedFinding
	Unclassified []clinical.ExtractedFinding
	// Unresolved mentions could not be sent to the text model.
	Unresolved []clinical.ExtractedFinding

	UnclassifiedCount int
	// UnclassifiedRatio is unclassified / (matched + unclassified), or 0
	// when there are no mentions.
	UnclassifiedRatio float64

	Degraded bool
	// Partial is set when the text model was cut off by the deadline.
	// Degraded is set too, and Findings hold the lexical matches.
	Partial  bool
	Notes    []string
}

// Words returns the number of words across all sentences.
func (r Result) Words() int {
	n := 0
	for _, s := range r.Sentences {
		n += s.Words()
	}
	return n
}

// Pipeline extracts findings from report text. It is safe for
// concurrent use.
type Pipeline struct {
	vocab   *vocab.Vocabulary
	model   model.Model
	terms   termIndex
	lexicon compiledLexicon
	opts    Options
}

// NewPipeline creates a pipeline. m is the text model used for semantic
// matching; when nil, only lexical matching runs and results are marked
// degraded.
func NewPipeline(v *vocab.Vocabulary, m model.Model, opts Options) *Pipeline {
	if opts.SimilarityThreshold <= 0 || opts.SimilarityThreshold > 1 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.ScopeWindow < 0 {
		opts.ScopeWindow = DefaultScopeWindow
	}
	return &Pipeline{
		vocab:   v,
		model:   m,
		terms:   newTermIndex(v),
		lexicon: opts.Lexicon.compile(),
		opts:    opts,
	}
}

// ModelID returns name@version of the text model, or "" when none is
// configured.
func (p *Pipeline) ModelID() string {
	if p.model == nil {
		return ""
	}
	return model.ID(p.model)
}

type sentenceWork struct {
	scope      scopeAnalysis
	lexical    []lexicalHit
	candidates []candidate
	// first index of this sentence's candidates in the mention list.
	offset int
}

// Run extracts findings from raw report text. Text model failures and
// deadlines degrade to lexical matching. Run fails only when ctx is
// canceled.
func (p *Pipeline) Run(ctx context.Context, raw string) (Result, error) {
	text := Normalize(raw)
	seg := Segment(text, p.opts.Sections...)
	res := Result{Text: text, Sentences: seg.Sentences, Headers: seg.Headers}

	work := make([]sentenceWork, len(seg.Sentences))
	var mentions []string
	for i, s := range seg.Sentences {
		claimed := make([]bool, len(s.Tokens))
		w := sentenceWork{offset: len(mentions)}
		w.lexical = p.terms.matchTerms(s.Tokens, claimed)
		w.scope = scopeAnalysis{
			tokens:      s.Tokens,
			modifiers:   p.lexicon.matchModifiers(s.Tokens, claimed),
			terminators: p.lexicon.matchTerminators(s.Tokens, claimed),
			window:      p.opts.ScopeWindow,
		}
		w.candidates = candidates(s.Tokens, claimed)
		for _, c := range w.candidates {
			mentions = append(mentions, c.text)
		}
		work[i] = w
	}

	outcomes, err := p.classify(ctx, mentions)
	switch {
	case err == nil:
	case errors.Is(ctx.Err(), context.Canceled):
		return Result{}, ctx.Err()
	case ctx.Err() != nil, errors.Is(err, context.DeadlineExceeded):
		res.Degraded, res.Partial = true, true
		res.Notes = append(res.Notes, "text model did not answer before the deadline, lexical matching only")
	default:
		res.Degraded = true
		res.Notes = append(res.Notes, fmt.Sprintf("text model unavailable, lexical matching only: %v", err))
	}

	runes := []rune(text)
	span := func(s Sentence, r tokenRange) clinical.Span {
		start, end := s.Tokens[r.from].Start, s.Tokens[r.to-1].End
		return clinical.Span{Start: start, End: end, Text: string(runes[start:end])}
	}

	matched := 0
	for i, s := range seg.Sentences {
		w := work[i]
		for _, h := range w.lexical {
			res.Findings = append(res.Findings, clinical.ExtractedFinding{
				SourceSpan:  span(s, h.tokenRange),
				CanonicalID: h.id,
				Polarity:    w.scope.polarityOf(h.from, h.to),
				Confidence:  1,
			})
			matched++
		}
		for k, c := range w.candidates {
			o := outcomes[w.offset+k]
			f := clinical.ExtractedFinding{
				SourceSpan: span(s, c.tokenRange),
				Polarity:   w.scope.polarityOf(c.from, c.to),
				Confidence: o.Similarity,
			}
			switch o.Kind {
			case Matched:
				f.CanonicalID = o.ConceptID
				res.Findings = append(res.Findings, f)
				matched++
			case Unclassified:
				res.Unclassified = append(res.Unclassified, f)
			case Failed:
				res.Unresolved = append(res.Unresolved, f)
			}
		}
	}

	sortBySpan(res.Findings)
	sortBySpan(res.Unclassified)
	sortBySpan(res.Unresolved)
	res.UnclassifiedCount = len(res.Unclassified)
	if total := matched + res.UnclassifiedCount; total > 0 {
		res.UnclassifiedRatio = float64(res.UnclassifiedCount) / float64(total)
	}
	return res, nil
}

// classify runs the text model over all mentions at once. On failure
// every mention gets a Failed outcome and the error is returned.
func (p *Pipeline) classify(ctx context.Context, mentions []string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(mentions))
	if len(mentions) == 0 {
		return outcomes, nil
	}
	fail := func(err error) ([]Outcome, error) {
		for i := range outcomes {
			outcomes[i] = Outcome{Kind: Failed, Err: err}
		}
		return outcomes, err
	}
	if p.model == nil {
		return fail(fmt.Errorf("no text model configured"))
	}

	labels, err := p.model.Predict(ctx, model.Input{Mentions: mentions})
	if err != nil {
		return fail(err)
	}

	byMention := make([][]model.Label, len(mentions))
	for _, l := range labels {
		if l.Mention >= 0 && l.Mention < len(mentions) && p.vocab.Has(l.ConceptID) {
			byMention[l.Mention] = append(byMention[l.Mention], l)
		}
	}
	for i := range mentions {
		outcomes[i] = ResolveLabels(byMention[i], p.opts.SimilarityThreshold)
	}
	return outcomes, nil
}

func sortBySpan(fs []clinical.ExtractedFinding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].SourceSpan.Start != fs[j].SourceSpan.Start {
			return fs[i].SourceSpan.Start < fs[j].SourceSpan.Start
		}
		return fs[i].SourceSpan.End < fs[j].SourceSpan.End
	})
}
