package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaSet compiles each named schema once.
type schemaSet struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaSet() *schemaSet {
	return &schemaSet{compiled: make(map[string]*jsonschema.Schema)}
}

func (s *schemaSet) get(schema *Schema) (*jsonschema.Schema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.compiled[schema.Name]; ok {
		return c, nil
	}

	// The compiler wants decoded JSON values, not Go maps with typed
	// slices, so round-trip the definition.
	raw, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	url := "mem://schemas/" + schema.Name + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, doc); err != nil {
		return nil, err
	}
	c, err := compiler.Compile(url)
	if err != nil {
		return nil, err
	}
	s.compiled[schema.Name] = c
	return c, nil
}

// conform checks a reply against the request schema. Without a schema
// any valid JSON passes.
func (s *schemaSet) conform(provider string, schema *Schema, content json.RawMessage) error {
	malformed := func(err error) error {
		return &Error{Kind: KindMalformed, Provider: provider, Content: content, Err: err}
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
	if err != nil {
		return malformed(fmt.Errorf("decode reply: %w", err))
	}
	if schema == nil {
		return nil
	}
	compiled, err := s.get(schema)
	if err != nil {
		return malformed(fmt.Errorf("compile schema %s: %w", schema.Name, err))
	}
	if err := compiled.Validate(doc); err != nil {
		return malformed(err)
	}
	return nil
}
