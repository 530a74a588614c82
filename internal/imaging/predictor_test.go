package imaging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/vocab"
)

func TestPredictor_SortsDedupesAndDropsUnknown(t *testing.T) {
	m := &model.Static{ModelKind: model.KindImage, Labels: []model.Label{
		{ConceptID: "edema", Confidence: 0.7},
		{ConceptID: "cardiomegaly", Confidence: 0.7},
		{ConceptID: "no_finding", Confidence: 0.9},
		{ConceptID: "pleural_effusion", Confidence: 0.4},
		{ConceptID: "Pleural Effusion", Confidence: 0.8},
		{ConceptID: "pneumothorax", Confidence: math.NaN()},
		{ConceptID: "fracture", Confidence: 1.3},
	}}
	p := NewPredictor(m, vocab.Default(), 0)

	got, err := p.Predict(context.Background(), "a.png", "a")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	want := []clinical.ImagePrediction{
		{CanonicalID: "fracture", Confidence: 1},
		{CanonicalID: "pleural_effusion", Confidence: 0.8},
		{CanonicalID: "cardiomegaly", Confidence: 0.7},
		{CanonicalID: "edema", Confidence: 0.7},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("predictions mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictor_Deterministic(t *testing.T) {
	m := &model.Static{ModelKind: model.KindImage, Labels: []model.Label{
		{ConceptID: "edema", Confidence: 0.65},
		{ConceptID: "atelectasis", Confidence: 0.65},
		{ConceptID: "hernia", Confidence: 0.65},
	}}
	p := NewPredictor(m, vocab.Default(), 0)

	first, _ := p.Predict(context.Background(), "x", "x")
	for i := 0; i < 20; i++ {
		again, _ := p.Predict(context.Background(), "x", "x")
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs:\n%s", i, diff)
		}
	}
}

func TestPredictor_ImageUnavailable(t *testing.T) {
	m := &model.Static{ModelKind: model.KindImage, Err: fmt.Errorf("%w: gone", model.ErrInputUnavailable)}
	p := NewPredictor(m, vocab.Default(), 0)

	_, err := p.Predict(context.Background(), "gone.png", "gone")
	var unavailable *ErrImageUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want *ErrImageUnavailable", err)
	}
	if unavailable.ImageRef != "gone.png" {
		t.Errorf("got ref %q, want gone.png", unavailable.ImageRef)
	}
}

func TestPredictor_NoModel(t *testing.T) {
	p := NewPredictor(nil, vocab.Default(), 0)
	_, err := p.Predict(context.Background(), "a.png", "a")
	if !errors.Is(err, ErrNoImageModel) {
		t.Errorf("got %v, want ErrNoImageModel", err)
	}
	if p.ModelID() != "" {
		t.Errorf("got model id %q, want empty", p.ModelID())
	}
}

func TestPredictor_ModelFailurePassesThrough(t *testing.T) {
	m := &model.Static{ModelKind: model.KindImage, Err: &model.ErrUnavailable{Model: "x"}}
	p := NewPredictor(m, vocab.Default(), 0)

	_, err := p.Predict(context.Background(), "a.png", "a")
	var unavailable *model.ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Errorf("got %v, want *model.ErrUnavailable", err)
	}
	var img *ErrImageUnavailable
	if errors.As(err, &img) {
		t.Error("model failure must not be reported as image unavailable")
	}
}

func TestPredictor_PlainModelErrorIsUnavailable(t *testing.T) {
	cause := errors.New("cuda out of memory")
	m := &model.Static{ModelName: "densenet", ModelKind: model.KindImage, Err: cause}
	p := NewPredictor(m, vocab.Default(), 0)

	_, err := p.Predict(context.Background(), "a.png", "a")
	var unavailable *model.ErrUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want *model.ErrUnavailable", err)
	}
	if unavailable.Model != "densenet@0.0.0" {
		t.Errorf("got model %q, want densenet@0.0.0", unavailable.Model)
	}
	if !errors.Is(err, cause) {
		t.Error("cause should stay reachable")
	}
}

func TestAboveThreshold(t *testing.T) {
	preds := []clinical.ImagePrediction{
		{CanonicalID: "a", Confidence: 0.9},
		{CanonicalID: "b", Confidence: 0.6},
		{CanonicalID: "c", Confidence: 0.59},
	}
	p := NewPredictor(nil, vocab.Default(), 0)
	if p.Threshold() != DefaultThreshold {
		t.Fatalf("got threshold %v, want %v", p.Threshold(), DefaultThreshold)
	}
	got := p.AboveThreshold(preds)
	if len(got) != 2 || got[1].CanonicalID != "b" {
		t.Errorf("got %v, want a and b", got)
	}
}
