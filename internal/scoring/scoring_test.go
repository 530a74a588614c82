package scoring

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/radgrade/internal/align"
	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/vocab"
)

// grade runs extraction, alignment and scoring with a text model that
// recognizes nothing beyond the lexical matches.
func grade(t *testing.T, report string, gt []clinical.Finding) (Result, extract.Result) {
	t.Helper()
	v := vocab.Default()
	m := &model.Static{ModelKind: model.KindText}
	text, err := extract.NewPipeline(v, m, extract.DefaultOptions()).Run(context.Background(), report)
	require.NoError(t, err)

	in := align.Inputs{GroundTruth: gt, Extracted: text.Findings}
	al := align.Align(in, align.DefaultOptions())
	require.NoError(t, align.Verify(al, in))

	s, err := NewScorer(v, DefaultConfig())
	require.NoError(t, err)
	res, err := s.Score(al, &text)
	require.NoError(t, err)
	return res, text
}

func present(id string) clinical.Finding {
	return clinical.Finding{CanonicalID: id, Polarity: clinical.PolarityPresent}
}

func TestScore_ContradictionAndOvercall(t *testing.T) {
	res, _ := grade(t, "No pneumothorax. Mild cardiomegaly noted.", []clinical.Finding{present("pneumothorax")})

	assert.Empty(t, res.Pillar1)
	assert.Empty(t, res.Pillar2)
	require.Len(t, res.Pillar3, 2)

	ptx, cm := res.Pillar3[0], res.Pillar3[1]
	assert.Equal(t, "pneumothorax", ptx.CanonicalID)
	assert.Equal(t, align.KindContradiction, ptx.Kind)
	assert.Equal(t, vocab.CriticalityCritical, ptx.Criticality)
	assert.Equal(t, 4.0, ptx.Severity)
	assert.Equal(t, "pneumothorax", ptx.Evidence[0].Text)

	assert.Equal(t, "cardiomegaly", cm.CanonicalID)
	assert.Equal(t, align.KindOvercall, cm.Kind)
	assert.Equal(t, 1.5, cm.Severity)

	require.GreaterOrEqual(t, len(res.Pillar5), 2)
	assert.Equal(t, RecommendContradiction, res.Pillar5[0].Kind)
	assert.Contains(t, res.Pillar5[0].Text, "as absent")
	assert.Equal(t, RecommendOvercall, res.Pillar5[1].Kind)

	assert.Equal(t, Counts{Contradictions: 1, Overcalls: 1, StyleNotes: 1}, res.Summary.Counts)
	assert.Equal(t, 50, res.Summary.Score)
}

func TestScore_MissedCarriesCriticality(t *testing.T) {
	res, _ := grade(t, "Findings: Lungs are clear. No pneumothorax.", []clinical.Finding{present("cardiomegaly")})

	require.Len(t, res.Pillar2, 1)
	o := res.Pillar2[0]
	assert.Equal(t, "cardiomegaly", o.CanonicalID)
	assert.Equal(t, vocab.CriticalityModerate, o.Criticality)
	assert.Equal(t, 2.0, o.Severity)
	assert.False(t, o.PertinentNegative)

	require.Len(t, res.Pillar1, 1)
	assert.Equal(t, align.KindPertinentNegative, res.Pillar1[0].Kind)
	assert.Equal(t, "Pneumothorax", res.Pillar1[0].Name)
}

func TestScore_CriticalMissRanksFirst(t *testing.T) {
	gt := []clinical.Finding{
		present("cardiomegaly"),
		{CanonicalID: "edema", Polarity: clinical.PolarityAbsent},
		present("pneumothorax"),
	}
	res, _ := grade(t, "Findings: The lungs are clear.\nImpression: Normal chest.", gt)

	require.Len(t, res.Pillar5, 3)
	assert.Equal(t, "pneumothorax", res.Pillar5[0].CanonicalID)
	assert.Equal(t, "cardiomegaly", res.Pillar5[1].CanonicalID)
	assert.Equal(t, "edema", res.Pillar5[2].CanonicalID)
	assert.Equal(t, RecommendPertinentNegative, res.Pillar5[2].Kind)
	assert.Equal(t, 1.5, res.Pillar5[2].Severity)

	assert.Equal(t, 1, res.Summary.Counts.MissedPertinentNegatives)
	assert.Equal(t, 2, res.Summary.Counts.MissedPresent)
}

func TestScore_UnclassifiedOnlyAffectsClarity(t *testing.T) {
	res, text := grade(t, "Findings: Small pleural effusion. Osteopenia.\nImpression: Effusion.",
		[]clinical.Finding{present("pleural_effusion")})

	require.Equal(t, 1, text.UnclassifiedCount)
	assert.Len(t, res.Pillar1, 1)
	assert.Empty(t, res.Pillar2)
	assert.Empty(t, res.Pillar3)
	assert.InDelta(t, 1.0/3.0, res.Pillar4.UnclassifiedRatio, 1e-9)
	assert.InDelta(t, 0.667, res.Pillar4.VocabularyScore, 1e-9)
	assert.Equal(t, 1.0, res.Pillar4.TemplateScore)
}

func TestScore_Deterministic(t *testing.T) {
	gt := []clinical.Finding{present("pneumothorax"), present("cardiomegaly")}
	first, _ := grade(t, "Findings: No pneumothorax. Possible edema.", gt)
	for i := 0; i < 5; i++ {
		again, _ := grade(t, "Findings: No pneumothorax. Possible edema.", gt)
		assert.Equal(t, first, again)
	}
}

func TestScore_TextNotComputed(t *testing.T) {
	s, err := NewScorer(vocab.Default(), DefaultConfig())
	require.NoError(t, err)

	res, err := s.Score(align.Result{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Pillar4.Computed)
	assert.False(t, res.Summary.Computed)
	assert.NotNil(t, res.Pillar1)
	assert.NotNil(t, res.Pillar5)
}

func TestClarity(t *testing.T) {
	s, err := NewScorer(vocab.Default(), DefaultConfig())
	require.NoError(t, err)

	tests := []struct {
		name        string
		text        string
		wantMissing []string
		wantNotes   int
		minScore    float64
		maxScore    float64
	}{
		{
			name:     "well formed",
			text:     "Findings: The heart size is within normal limits. There is no focal consolidation or effusion. No pneumothorax is seen on this frontal view.\nImpression: No acute cardiopulmonary process identified today.",
			minScore: 90, maxScore: 100,
			wantMissing: []string{},
		},
		{
			name:        "terse without sections",
			text:        "effusion. i think stuff.",
			wantMissing: []string{"Findings", "Impression"},
			wantNotes:   3,
			minScore:    0, maxScore: 50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := extract.Result{Text: tt.text}
			seg := extract.Segment(tt.text)
			res.Sentences, res.Headers = seg.Sentences, seg.Headers

			c := s.clarity(&res)
			assert.True(t, c.Computed)
			assert.Equal(t, tt.wantMissing, c.MissingSections)
			assert.Len(t, c.StyleNotes, tt.wantNotes)
			assert.GreaterOrEqual(t, c.Score, tt.minScore)
			assert.LessOrEqual(t, c.Score, tt.maxScore)
		})
	}
}

func TestStyleNotes(t *testing.T) {
	s, err := NewScorer(vocab.Default(), DefaultConfig())
	require.NoError(t, err)

	long := strings.Repeat("normal ", 101)
	tests := []struct {
		text string
		want []string
	}{
		{"It looks like a bad finding.", []string{"looks like", "bad finding", "very brief"}},
		{long, []string{"quite long"}},
		{strings.Repeat("word ", 20), nil},
	}
	for _, tt := range tests {
		notes := s.styleNotes(tt.text)
		if len(notes) != len(tt.want) {
			t.Fatalf("styleNotes(%.20q) = %d notes, want %d: %v", tt.text, len(notes), len(tt.want), notes)
		}
		for i, w := range tt.want {
			if !strings.Contains(notes[i], w) {
				t.Errorf("note %d = %q, want it to contain %q", i, notes[i], w)
			}
		}
	}
}

func TestStyleNotes_PhrasesIgnoreCase(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Style.Unprofessional = []string{"I Think", "  Obviously "}
	s, err := NewScorer(vocab.Default(), cfg)
	require.NoError(t, err)

	notes := s.styleNotes(strings.Repeat("word ", 20) + "i think this is OBVIOUSLY edema.")
	require.Len(t, notes, 2)
	assert.Contains(t, notes[0], `"i think"`)
	assert.Contains(t, notes[1], `"obviously"`)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"overcall factor above one", func(c *Config) { c.OvercallFactor = 1.5 }, true},
		{"unknown criticality", func(c *Config) { c.DefaultCriticality = "urgent" }, true},
		{"inverted bounds", func(c *Config) { c.Clarity.MinWords, c.Clarity.MaxWords = 10, 5 }, true},
		{"zero weights", func(c *Config) {
			c.Clarity.LengthWeight, c.Clarity.TemplateWeight, c.Clarity.VocabularyWeight = 0, 0, 0
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
