package vocab

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// fileSchema describes the external vocabulary document.
var fileSchema = map[string]any{
	"type":     "object",
	"required": []any{"version", "entries"},
	"properties": map[string]any{
		"version": map[string]any{"type": "string", "minLength": 1},
		"entries": map[string]any{
			"type":          "object",
			"minProperties": 1,
			"additionalProperties": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":          map[string]any{"type": "string"},
					"synonyms":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"bodyRegion":    map[string]any{"type": "string"},
					"pathologyType": map[string]any{"type": "string"},
					"category":      map[string]any{"type": "string"},
					"criticality": map[string]any{
						"type": "string",
						"enum": []any{"critical", "high", "moderate", "low"},
					},
				},
				"additionalProperties": false,
			},
		},
	},
	"additionalProperties": false,
}

type fileEntry struct {
	Name          string   `yaml:"name,omitempty"`
	Synonyms      []string `yaml:"synonyms,omitempty"`
	BodyRegion    string   `yaml:"bodyRegion,omitempty"`
	PathologyType string   `yaml:"pathologyType,omitempty"`
	Category      string   `yaml:"category,omitempty"`
	Criticality   string   `yaml:"criticality,omitempty"`
}

type fileDoc struct {
	Version string               `yaml:"version"`
	Entries map[string]fileEntry `yaml:"entries"`
}

// LoadFile reads a YAML vocabulary file. Entries without a criticality
// get defaultCriticality.
func LoadFile(path string, defaultCriticality Criticality) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	return Parse(data, defaultCriticality)
}

// Parse decodes and validates a YAML vocabulary document.
func Parse(data []byte, defaultCriticality Criticality) (*Vocabulary, error) {
	if err := validateDocument(data); err != nil {
		return nil, err
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}

	ids := make([]string, 0, len(doc.Entries))
	for id := range doc.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		fe := doc.Entries[id]
		crit := Criticality(fe.Criticality)
		if crit == "" {
			crit = defaultCriticality
		}
		entries = append(entries, Entry{
			ID:            id,
			Name:          fe.Name,
			Synonyms:      fe.Synonyms,
			BodyRegion:    fe.BodyRegion,
			PathologyType: fe.PathologyType,
			Category:      fe.Category,
			Criticality:   crit,
		})
	}

	return New(doc.Version, entries)
}

func validateDocument(data []byte) error {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("decode vocabulary: %w", err)
	}

	// Round-trip through JSON so numbers and maps have the shapes the
	// validator expects.
	raw, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("vocabulary is not representable as JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse vocabulary JSON: %w", err)
	}

	schemaRaw, err := json.Marshal(fileSchema)
	if err != nil {
		return fmt.Errorf("marshal vocabulary schema: %w", err)
	}
	schemaDoc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaRaw))
	if err != nil {
		return fmt.Errorf("parse vocabulary schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema://vocabulary.json", schemaDoc); err != nil {
		return fmt.Errorf("add vocabulary schema: %w", err)
	}
	sch, err := c.Compile("schema://vocabulary.json")
	if err != nil {
		return fmt.Errorf("compile vocabulary schema: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("invalid vocabulary document: %w", err)
	}
	return nil
}

// MarshalYAML renders the vocabulary in the external file format.
func (v *Vocabulary) MarshalYAML() (any, error) {
	doc := fileDoc{Version: v.version, Entries: make(map[string]fileEntry, len(v.ordered))}
	for _, e := range v.ordered {
		doc.Entries[e.ID] = fileEntry{
			Name:          e.Name,
			Synonyms:      e.Synonyms,
			BodyRegion:    e.BodyRegion,
			PathologyType: e.PathologyType,
			Category:      e.Category,
			Criticality:   string(e.Criticality),
		}
	}
	return doc, nil
}
