package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"
	"time"

	"github.com/abhisek/radgrade/internal/llm"
	"github.com/abhisek/radgrade/internal/vocab"
)

// LLMText asks a language model to map mentions onto vocabulary
// concepts. Only ids present in the vocabulary are accepted.
type LLMText struct {
	provider  llm.Provider
	vocab     *vocab.Vocabulary
	maxTokens int
	timeout   time.Duration
}

// NewLLMText creates an LLM-backed text model. A positive timeout bounds
// each Predict call.
func NewLLMText(p llm.Provider, v *vocab.Vocabulary, maxTokens int, timeout time.Duration) *LLMText {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &LLMText{provider: p, vocab: v, maxTokens: maxTokens, timeout: timeout}
}

func (m *LLMText) Name() string    { return "llm:" + m.provider.ModelID() }
func (m *LLMText) Kind() Kind      { return KindText }
func (m *LLMText) Version() string { return m.vocab.Version() }

// NormalizationSchema is the structured output the model must return.
var NormalizationSchema = &llm.Schema{
	Name:        "finding-normalization",
	Description: "Mapping of radiology report phrases onto canonical finding ids",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"matches": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"mention": map[string]any{
							"type":        "integer",
							"minimum":     0,
							"description": "Index of the phrase in the numbered list",
						},
						"conceptId": map[string]any{
							"type":        "string",
							"description": "Canonical finding id from the list",
						},
						"similarity": map[string]any{
							"type":        "number",
							"minimum":     0.0,
							"maximum":     1.0,
							"description": "How closely the phrase denotes the finding",
						},
					},
					"required":             []any{"mention", "conceptId", "similarity"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"matches"},
		"additionalProperties": false,
	},
}

type normalizationOutput struct {
	Matches []struct {
		Mention    int     `json:"mention"`
		ConceptID  string  `json:"conceptId"`
		Similarity float64 `json:"similarity"`
	} `json:"matches"`
}

func (m *LLMText) Predict(ctx context.Context, in Input) ([]Label, error) {
	if len(in.Mentions) == 0 {
		return nil, nil
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	msg, err := buildNormalizationMessage(in.Mentions, m.vocab.Entries())
	if err != nil {
		return nil, fmt.Errorf("build normalization prompt: %w", err)
	}

	resp, err := m.provider.Complete(ctx, llm.Request{
		Purpose:   NormalizationSchema.Name,
		System:    normalizationSystemPrompt,
		Prompt:    msg,
		Schema:    NormalizationSchema,
		MaxTokens: m.maxTokens,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ErrUnavailable{Model: ID(m), Err: err}
	}

	var raw normalizationOutput
	if err := json.Unmarshal(resp.Content, &raw); err != nil {
		return nil, &ErrUnavailable{Model: ID(m), Err: fmt.Errorf("parse normalization response: %w", err)}
	}

	labels := make([]Label, 0, len(raw.Matches))
	for _, match := range raw.Matches {
		// Ids outside the vocabulary and out-of-range indices are ignored.
		if match.Mention < 0 || match.Mention >= len(in.Mentions) || !m.vocab.Has(match.ConceptID) {
			continue
		}
		labels = append(labels, Label{
			ConceptID:  match.ConceptID,
			Confidence: match.Similarity,
			Mention:    match.Mention,
		})
	}
	return labels, nil
}

const normalizationSystemPrompt = `You are a radiology terminology expert. You map phrases taken from a student's chest radiograph report onto a fixed list of canonical findings.

Instructions:
- For each numbered phrase, return the canonical finding ids it denotes, with a similarity from 0.0 to 1.0.
- Ignore negation and hedging words; judge only what finding the phrase names.
- Omit phrases that name no listed finding.
- Do NOT invent ids. Only use ids from the list provided.`

var normalizationUserTemplate = template.Must(template.New("normalization").Parse(`Canonical findings:
{{range .Entries}}- {{.ID}}: {{.Name}}{{if .Synonyms}} (also: {{range $i, $s := .Synonyms}}{{if $i}}, {{end}}{{$s}}{{end}}){{end}}
{{end}}
Phrases:
{{range $i, $m := .Mentions}}{{$i}}. {{$m}}
{{end}}`))

func buildNormalizationMessage(mentions []string, entries []vocab.Entry) (string, error) {
	var buf bytes.Buffer
	err := normalizationUserTemplate.Execute(&buf, struct {
		Entries  []vocab.Entry
		Mentions []string
	}{entries, mentions})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
