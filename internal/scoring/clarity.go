package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/abhisek/radgrade/internal/extract"
)

func (s *Scorer) clarity(text *extract.Result) Clarity {
	cfg := s.cfg.Clarity
	c := Clarity{
		Computed:          true,
		Sentences:         len(text.Sentences),
		Words:             len(strings.Fields(text.Text)),
		UnclassifiedRatio: text.UnclassifiedRatio,
		MissingSections:   []string{},
		StyleNotes:        s.styleNotes(text.Text),
	}

	if n := len(text.Sentences); n > 0 {
		counts := make([]float64, n)
		inRange, sum := 0, 0.0
		for i, sent := range text.Sentences {
			w := sent.Words()
			counts[i] = float64(w)
			sum += float64(w)
			if w >= cfg.MinWords && w <= cfg.MaxWords {
				inRange++
			}
		}
		mean := sum / float64(n)
		c.MeanSentenceWords = mean
		c.LengthScore = float64(inRange) / float64(n) * (1 - math.Min(coefficientOfVariation(counts, mean), 1)/2)
	}

	have := make(map[string]bool, len(text.Headers))
	for _, h := range text.Headers {
		have[strings.ToLower(h)] = true
	}
	for _, want := range cfg.Sections {
		if !have[strings.ToLower(want)] {
			c.MissingSections = append(c.MissingSections, want)
		}
	}
	if len(cfg.Sections) == 0 {
		c.TemplateScore = 1
	} else {
		c.TemplateScore = float64(len(cfg.Sections)-len(c.MissingSections)) / float64(len(cfg.Sections))
	}

	c.VocabularyScore = 1 - text.UnclassifiedRatio

	total := cfg.LengthWeight + cfg.TemplateWeight + cfg.VocabularyWeight
	blend := (cfg.LengthWeight*c.LengthScore + cfg.TemplateWeight*c.TemplateScore + cfg.VocabularyWeight*c.VocabularyScore) / total
	c.Score = round1(100 * blend)
	c.LengthScore = round3(c.LengthScore)
	c.TemplateScore = round3(c.TemplateScore)
	c.VocabularyScore = round3(c.VocabularyScore)
	c.MeanSentenceWords = round1(c.MeanSentenceWords)
	return c
}

func coefficientOfVariation(xs []float64, mean float64) float64 {
	if len(xs) < 2 || mean == 0 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss/float64(len(xs))) / mean
}

// styleNotes flags unprofessional phrasing and reports that are too
// brief or too long.
func (s *Scorer) styleNotes(text string) []string {
	notes := []string{}
	lower := strings.ToLower(text)
	for _, phrase := range s.cfg.Style.Unprofessional {
		if strings.Contains(lower, phrase) {
			notes = append(notes, fmt.Sprintf("The phrase %q is unprofessional. Prefer objective wording such as \"consistent with\" or \"suggestive of\".", phrase))
		}
	}
	words := len(strings.Fields(text))
	switch {
	case words < s.cfg.Style.BriefWords:
		notes = append(notes, "The report is very brief. Document all relevant positive and negative findings.")
	case s.cfg.Style.LongWords > 0 && words > s.cfg.Style.LongWords:
		notes = append(notes, "The report is quite long. Aim for concise wording, especially in the impression.")
	}
	return notes
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
func round3(x float64) float64 { return math.Round(x*1000) / 1000 }
