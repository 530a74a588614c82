// Package scoring turns an alignment into the five feedback pillars and
// an overall grade.
package scoring

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/vocab"
)

// Summary score deductions per item.
const (
	penaltyMissed         = 15
	penaltyMissedNegative = 5
	penaltyOvercall       = 20
	penaltyContradiction  = 25
	penaltyStyleNote      = 5

	contradictionFactor = 1.0
	omissionFactor      = 1.0
)

var recommendationTemplates = template.Must(template.New("recommendations").Parse(`
{{define "omission"}}Mention {{.Name}}{{with .Region}} ({{.}}){{end}}. It is a {{.Criticality}}-criticality finding in this study and the report does not mention it.{{end}}
{{define "pertinent-negative"}}State explicitly that there is no {{.Name}}. Its absence is a pertinent negative for this study.{{end}}
{{define "contradiction"}}The report describes {{.Name}} as {{.Reported}}{{with .Quote}} ("{{.}}"){{end}}, but it is {{.Expected}} in this study. Re-examine the image and correct the statement.{{end}}
{{define "overcall"}}{{.Name}} is not supported by the reference findings or the image{{with .Quote}} ("{{.}}"){{end}}. Report only what the study shows.{{end}}
{{define "tip"}}Include a "{{.Section}}:" section. Conclude with a concise impression summarizing the most critical findings.{{end}}
`))

type recommendationData struct {
	Name        string
	Region      string
	Criticality vocab.Criticality
	Expected    clinical.Polarity
	Reported    clinical.Polarity
	Quote       string
	Section     string
}

// Scorer is stateless after construction and safe for concurrent use.
type Scorer struct {
	vocab *vocab.Vocabulary
	cfg   Config
}

// NewScorer validates cfg and returns a scorer over v.
func NewScorer(v *vocab.Vocabulary, cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	phrases := make([]string, 0, len(cfg.Style.Unprofessional))
	for _, p := range cfg.Style.Unprofessional {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			phrases = append(phrases, p)
		}
	}
	cfg.Style.Unprofessional = phrases
	return &Scorer{vocab: v, cfg: cfg}, nil
}

// Config returns the grading policy in use.
func (s *Scorer) Config() Config { return s.cfg }

type ranked struct {
	rec   Recommendation
	order int
}

// Score builds the pillars. text is nil when extraction never completed;
// clarity and the summary are then marked not computed.
func (s *Scorer) Score(al align.Result, text *extract.Result) (Result, error) {
	res := Result{
		Pillar1: []Observation{},
		Pillar2: []Omission{},
		Pillar3: []Misinterpretation{},
		Pillar4: Clarity{MissingSections: []string{}, StyleNotes: []string{}},
		Pillar5: []Recommendation{},
	}
	var recs []ranked
	var counts Counts

	for _, e := range al.Correct {
		res.Pillar1 = append(res.Pillar1, Observation{
			CanonicalID: e.Finding.CanonicalID,
			Name:        s.name(e.Finding.CanonicalID),
			Polarity:    e.Finding.Polarity,
			Kind:        e.Kind,
			Evidence:    spans(e.Evidence),
			Sources:     e.Sources,
		})
		counts.Correct++
	}

	for _, e := range al.Missed {
		crit := s.criticality(e.Finding.CanonicalID)
		pn := e.Expected == clinical.PolarityAbsent
		factor, kind := omissionFactor, RecommendOmission
		if pn {
			factor, kind = s.cfg.PertinentNegativeFactor, RecommendPertinentNegative
			counts.MissedPertinentNegatives++
		} else {
			counts.MissedPresent++
		}
		o := Omission{
			CanonicalID:       e.Finding.CanonicalID,
			Name:              s.name(e.Finding.CanonicalID),
			Expected:          e.Expected,
			Criticality:       crit,
			Severity:          crit.Weight() * factor,
			PertinentNegative: pn,
			ImageConfidence:   e.ImageConfidence,
			Sources:           e.Sources,
		}
		res.Pillar2 = append(res.Pillar2, o)

		msg, err := render(string(kind), recommendationData{
			Name:        o.Name,
			Region:      s.region(e.Finding),
			Criticality: crit,
			Expected:    e.Expected,
		})
		if err != nil {
			return Result{}, err
		}
		recs = append(recs, ranked{Recommendation{o.CanonicalID, kind, o.Severity, msg}, e.Order})
	}

	for _, e := range al.Misinterpreted {
		crit := s.criticality(e.Finding.CanonicalID)
		factor, kind := contradictionFactor, RecommendContradiction
		if e.Kind == align.KindOvercall {
			factor, kind = s.cfg.OvercallFactor, RecommendOvercall
			counts.Overcalls++
		} else {
			counts.Contradictions++
		}
		m := Misinterpretation{
			CanonicalID: e.Finding.CanonicalID,
			Name:        s.name(e.Finding.CanonicalID),
			Kind:        e.Kind,
			Expected:    e.Expected,
			Reported:    e.Reported,
			Criticality: crit,
			Severity:    crit.Weight() * factor,
			Evidence:    spans(e.Evidence),
		}
		res.Pillar3 = append(res.Pillar3, m)

		var quote string
		if len(e.Evidence) > 0 {
			quote = e.Evidence[0].Text
		}
		msg, err := render(string(kind), recommendationData{
			Name:     m.Name,
			Expected: e.Expected,
			Reported: e.Reported,
			Quote:    quote,
		})
		if err != nil {
			return Result{}, err
		}
		recs = append(recs, ranked{Recommendation{m.CanonicalID, kind, m.Severity, msg}, e.Order})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].rec.Severity != recs[j].rec.Severity {
			return recs[i].rec.Severity > recs[j].rec.Severity
		}
		return recs[i].order < recs[j].order
	})
	for _, r := range recs {
		res.Pillar5 = append(res.Pillar5, r.rec)
	}

	if text == nil {
		res.Summary = Summary{Counts: counts}
		return res, nil
	}

	res.Pillar4 = s.clarity(text)
	for _, section := range res.Pillar4.MissingSections {
		tip, err := render(string(RecommendTip), recommendationData{Section: section})
		if err != nil {
			return Result{}, err
		}
		res.Pillar5 = append(res.Pillar5, Recommendation{Kind: RecommendTip, Text: tip})
	}

	counts.StyleNotes = len(res.Pillar4.StyleNotes)
	res.Summary = Summary{Computed: true, Score: overall(counts), Counts: counts}
	return res, nil
}

// overall is 100 minus fixed deductions per item, clamped to 0..100.
func overall(c Counts) int {
	score := 100 -
		penaltyMissed*c.MissedPresent -
		penaltyMissedNegative*c.MissedPertinentNegatives -
		penaltyOvercall*c.Overcalls -
		penaltyContradiction*c.Contradictions -
		penaltyStyleNote*c.StyleNotes
	return max(0, min(100, score))
}

func (s *Scorer) name(id string) string {
	if e, ok := s.vocab.Lookup(id); ok && e.Name != "" {
		return e.Name
	}
	return id
}

func (s *Scorer) region(f clinical.Finding) string {
	if f.BodyRegion != "" {
		return f.BodyRegion
	}
	if e, ok := s.vocab.Lookup(f.CanonicalID); ok {
		return e.BodyRegion
	}
	return ""
}

func (s *Scorer) criticality(id string) vocab.Criticality {
	if e, ok := s.vocab.Lookup(id); ok && e.Criticality.Valid() {
		return e.Criticality
	}
	return s.cfg.DefaultCriticality
}

func render(name string, data recommendationData) (string, error) {
	var buf bytes.Buffer
	if err := recommendationTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s recommendation: %w", name, err)
	}
	return buf.String(), nil
}

func spans(s []clinical.Span) []clinical.Span {
	if s == nil {
		return []clinical.Span{}
	}
	return s
}
