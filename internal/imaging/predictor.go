// Package imaging turns raw image model output into canonical image
// predictions.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/abhisek/radgrade/internal/clinical"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/vocab"
)

// DefaultThreshold is the minimum confidence for a prediction to count
// as a reference finding.
const DefaultThreshold = 0.6

// ErrImageUnavailable indicates the image could not be analyzed. The
// submission continues on ground truth alone.
type ErrImageUnavailable struct {
	ImageRef string
	Err      error
}

func (e *ErrImageUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image %q unavailable: %v", e.ImageRef, e.Err)
	}
	return fmt.Sprintf("image %q unavailable", e.ImageRef)
}

func (e *ErrImageUnavailable) Unwrap() error { return e.Err }

// ErrNoImageModel is wrapped by ErrImageUnavailable when no image model
// is configured.
var ErrNoImageModel = errors.New("no image model configured")

// Predictor runs the image model and maps its labels onto the
// vocabulary.
type Predictor struct {
	model     model.Model
	vocab     *vocab.Vocabulary
	threshold float64
}

// NewPredictor creates a Predictor. m may be nil, in which case every
// call reports the image unavailable. A threshold outside (0,1] selects
// DefaultThreshold.
func NewPredictor(m model.Model, v *vocab.Vocabulary, threshold float64) *Predictor {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Predictor{model: m, vocab: v, threshold: threshold}
}

// Threshold returns the confidence cut-off used by AboveThreshold.
func (p *Predictor) Threshold() float64 { return p.threshold }

// ModelID returns name@version of the image model, or "" when none is
// configured.
func (p *Predictor) ModelID() string {
	if p.model == nil {
		return ""
	}
	return model.ID(p.model)
}

// Predict returns every known finding the model scored, sorted by
// descending confidence with ties broken by canonical id. A canonical id
// appears at most once, with its highest confidence.
//
// A missing or unreadable image yields *ErrImageUnavailable. Model
// failures are returned as *model.ErrUnavailable.
func (p *Predictor) Predict(ctx context.Context, imageRef, caseID string) ([]clinical.ImagePrediction, error) {
	if p.model == nil {
		return nil, &ErrImageUnavailable{ImageRef: imageRef, Err: ErrNoImageModel}
	}

	labels, err := p.model.Predict(ctx, model.Input{CaseID: caseID, ImageRef: imageRef})
	if err != nil {
		if errors.Is(err, model.ErrInputUnavailable) {
			return nil, &ErrImageUnavailable{ImageRef: imageRef, Err: err}
		}
		var mu *model.ErrUnavailable
		if errors.As(err, &mu) || errors.Is(err, model.ErrClosed) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &model.ErrUnavailable{Model: model.ID(p.model), Err: err}
	}

	best := make(map[string]float64, len(labels))
	for _, l := range labels {
		id, ok := p.vocab.Resolve(l.ConceptID)
		if !ok || math.IsNaN(l.Confidence) {
			continue
		}
		c := min(max(l.Confidence, 0), 1)
		if prev, seen := best[id]; !seen || c > prev {
			best[id] = c
		}
	}

	preds := make([]clinical.ImagePrediction, 0, len(best))
	for id, c := range best {
		preds = append(preds, clinical.ImagePrediction{CanonicalID: id, Confidence: c})
	}
	sortPredictions(preds)
	return preds, nil
}

// AboveThreshold returns the predictions at or above the Predictor's
// threshold, preserving order.
func (p *Predictor) AboveThreshold(preds []clinical.ImagePrediction) []clinical.ImagePrediction {
	return AboveThreshold(preds, p.threshold)
}

// AboveThreshold filters preds to those with confidence >= threshold.
func AboveThreshold(preds []clinical.ImagePrediction, threshold float64) []clinical.ImagePrediction {
	out := make([]clinical.ImagePrediction, 0, len(preds))
	for _, pr := range preds {
		if pr.Confidence >= threshold {
			out = append(out, pr)
		}
	}
	return out
}

func sortPredictions(preds []clinical.ImagePrediction) {
	sort.Slice(preds, func(i, j int) bool {
		if preds[i].Confidence != preds[j].Confidence {
			return preds[i].Confidence > preds[j].Confidence
		}
		return preds[i].CanonicalID < preds[j].CanonicalID
	})
}
