package model

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LabelsImage serves precomputed classifier outputs from a YAML file,
// for deployments where inference ran offline:
//
//	version: chexnet-1.0.0
//	predictions:
//	  "00013118_005":
//	    pleural_effusion: 0.91
//	    cardiomegaly: 0.42
type LabelsImage struct {
	version     string
	predictions map[string]map[string]float64
}

type labelsFile struct {
	Version     string                        `yaml:"version"`
	Predictions map[string]map[string]float64 `yaml:"predictions"`
}

// LoadLabelsImage reads a predictions file.
func LoadLabelsImage(path string) (*LabelsImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	return ParseLabelsImage(data)
}

// ParseLabelsImage parses predictions from YAML bytes.
func ParseLabelsImage(data []byte) (*LabelsImage, error) {
	var f labelsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse labels file: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("labels file: version is required")
	}
	for caseID, scores := range f.Predictions {
		for label, c := range scores {
			if c < 0 || c > 1 {
				return nil, fmt.Errorf("labels file: %s/%s confidence %v outside [0,1]", caseID, label, c)
			}
		}
	}
	return &LabelsImage{version: f.Version, predictions: f.Predictions}, nil
}

func (m *LabelsImage) Name() string    { return "labels" }
func (m *LabelsImage) Kind() Kind      { return KindImage }
func (m *LabelsImage) Version() string { return m.version }

// Predict looks the case up by id, falling back to the image file name
// without extension.
func (m *LabelsImage) Predict(_ context.Context, in Input) ([]Label, error) {
	scores, ok := m.predictions[in.CaseID]
	if !ok && in.ImageRef != "" {
		scores, ok = m.predictions[stripImageExt(in.ImageRef)]
	}
	if !ok {
		return nil, fmt.Errorf("%w: no precomputed predictions for %q", ErrInputUnavailable, in.CaseID)
	}

	labels := make([]Label, 0, len(scores))
	for id, c := range scores {
		labels = append(labels, Label{ConceptID: id, Confidence: c})
	}
	return labels, nil
}

func stripImageExt(ref string) string {
	base := ref
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
