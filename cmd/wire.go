package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/abhisek/radgrade/internal/cache"
	"github.com/abhisek/radgrade/internal/engine"
	"github.com/abhisek/radgrade/internal/extract"
	"github.com/abhisek/radgrade/internal/imaging"
	"github.com/abhisek/radgrade/internal/logging"
	"github.com/abhisek/radgrade/internal/model"
	"github.com/abhisek/radgrade/internal/scoring"
	"github.com/abhisek/radgrade/internal/store"
	"github.com/abhisek/radgrade/internal/vocab"
)

// services holds everything a grading command needs. Close releases
// them in reverse order of construction.
type services struct {
	store    *store.Store
	vocab    *vocab.Vocabulary
	registry *model.Registry
	cache    cache.Cache
	engine   *engine.Engine
}

func (s *services) Close() error {
	var errs []error
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	if s.registry != nil {
		errs = append(errs, s.registry.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// loadVocabulary returns the configured vocabulary, or the built-in seed.
func loadVocabulary() (*vocab.Vocabulary, error) {
	if cfg.Vocabulary.File == "" {
		return vocab.Default(), nil
	}
	return vocab.LoadFile(cfg.Vocabulary.File, cfg.Scoring.DefaultCriticality)
}

// buildServices opens the store, builds models and wires the engine.
func buildServices(ctx context.Context, cmd *cobra.Command) (*services, error) {
	svc := &services{}
	fail := func(err error) (*services, error) {
		_ = svc.Close()
		return nil, err
	}

	st, err := openStore(cmd)
	if err != nil {
		return fail(fmt.Errorf("open store: %w", err))
	}
	svc.store = st

	v, err := loadVocabulary()
	if err != nil {
		return fail(fmt.Errorf("load vocabulary: %w", err))
	}
	svc.vocab = v

	reg, err := model.Build(ctx, cfg.Models, model.Deps{
		Vocabulary: v,
		Events:     st.EventRepo(),
		Logger:     logging.New("model"),
		LLM:        &cfg.LLM,
	})
	if err != nil {
		return fail(err)
	}
	svc.registry = reg

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return fail(fmt.Errorf("open cache: %w", err))
	}
	svc.cache = c

	scorer, err := scoring.NewScorer(v, cfg.Scoring)
	if err != nil {
		return fail(fmt.Errorf("scoring: %w", err))
	}

	eng, err := engine.New(cfg.Engine, engine.Deps{
		Cases:      st.CaseRepo(),
		Events:     st.EventRepo(),
		Vocabulary: v,
		Predictor:  imaging.NewPredictor(reg.Image(), v, cfg.Alignment.ImageThreshold),
		Pipeline:   extract.NewPipeline(v, reg.Text(), cfg.Extraction.Options()),
		Scorer:     scorer,
		Alignment:  cfg.Alignment.Options(),
		Cache:      c,
		Tracer:     otel.Tracer("github.com/abhisek/radgrade"),
		Logger:     logging.New("engine"),
	})
	if err != nil {
		return fail(err)
	}
	svc.engine = eng
	return svc, nil
}
