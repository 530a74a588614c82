package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abhisek/radgrade/internal/llm"
	"github.com/abhisek/radgrade/internal/store"
	"github.com/abhisek/radgrade/internal/vocab"
)

// Config selects and configures one model per kind.
type Config struct {
	Image ImageConfig `yaml:"image"`
	Text  TextConfig  `yaml:"text"`

	// QueueDepth is the number of jobs that may wait for a serialized
	// model. Default: 16.
	QueueDepth int `yaml:"queueDepth"`

	// OnnxRuntimeLib is the path to the onnxruntime shared library.
	OnnxRuntimeLib string `yaml:"onnxRuntimeLib"`
}

// ImageConfig configures the image model.
type ImageConfig struct {
	// Backend: "onnx", "http", "labels" or "none".
	Backend string `yaml:"backend"`
	Version string `yaml:"version"`

	// onnx
	ModelPath  string   `yaml:"modelPath"`
	ImageRoot  string   `yaml:"imageRoot"`
	InputName  string   `yaml:"inputName"`
	OutputName string   `yaml:"outputName"`
	InputSize  int      `yaml:"inputSize"`
	Labels     []string `yaml:"labels"`
	Sigmoid    bool     `yaml:"sigmoid"`

	// http
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`

	// labels
	LabelsFile string `yaml:"labelsFile"`
}

// TextConfig configures the text model.
type TextConfig struct {
	// Backend: "lexical", "onnx" or "llm".
	Backend string `yaml:"backend"`
	Version string `yaml:"version"`
	TopK    int    `yaml:"topK"`

	// onnx
	ModelPath     string `yaml:"modelPath"`
	TokenizerPath string `yaml:"tokenizerPath"`
	MaxSeqLen     int    `yaml:"maxSeqLen"`
	Pooling       string `yaml:"pooling"`
	OutputName    string `yaml:"outputName"`
	TypeIDs       bool   `yaml:"typeIds"`
}

// CheXpertLabels is the output order of the common 14-label CheXpert
// classifiers.
var CheXpertLabels = []string{
	"no_finding", "enlarged_cardiomediastinum", "cardiomegaly", "lung_opacity",
	"lung_lesion", "edema", "consolidation", "pneumonia", "atelectasis",
	"pneumothorax", "pleural_effusion", "pleural_other", "fracture", "support_devices",
}

// DefaultConfig returns the offline configuration: no image model and
// the lexical text model.
func DefaultConfig() Config {
	return Config{
		Image: ImageConfig{
			Backend:   "none",
			InputSize: 224,
			Labels:    CheXpertLabels,
			Timeout:   15 * time.Second,
		},
		Text: TextConfig{
			Backend:   "lexical",
			TopK:      DefaultTopK,
			MaxSeqLen: 64,
			Pooling:   "mean",
		},
		QueueDepth: 16,
	}
}

// Validate checks backend names and the settings each backend needs.
func (c Config) Validate() error {
	switch c.Image.Backend {
	case "none", "":
	case "onnx":
		if c.Image.ModelPath == "" {
			return fmt.Errorf("models.image.modelPath is required for the onnx backend")
		}
	case "http":
		if c.Image.Endpoint == "" {
			return fmt.Errorf("models.image.endpoint is required for the http backend")
		}
	case "labels":
		if c.Image.LabelsFile == "" {
			return fmt.Errorf("models.image.labelsFile is required for the labels backend")
		}
	default:
		return fmt.Errorf("unknown image model backend: %q", c.Image.Backend)
	}

	switch c.Text.Backend {
	case "lexical", "", "llm":
	case "onnx":
		if c.Text.ModelPath == "" || c.Text.TokenizerPath == "" {
			return fmt.Errorf("models.text.modelPath and models.text.tokenizerPath are required for the onnx backend")
		}
	default:
		return fmt.Errorf("unknown text model backend: %q", c.Text.Backend)
	}
	return nil
}

// Deps are the collaborators models are built with.
type Deps struct {
	Vocabulary *vocab.Vocabulary
	Events     store.EventRepo
	Logger     *slog.Logger
	// LLM is required for the llm text backend.
	LLM *llm.Config
}

// Build constructs the configured models and registers them. On error
// every model built so far is closed.
func Build(ctx context.Context, cfg Config, deps Deps) (*Registry, error) {
	if deps.Vocabulary == nil {
		return nil, fmt.Errorf("build models: vocabulary is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	reg := NewRegistry()
	fail := func(err error) (*Registry, error) {
		_ = reg.Close()
		return nil, err
	}

	img, err := buildImage(cfg, deps, log)
	if err != nil {
		return fail(fmt.Errorf("build image model: %w", err))
	}
	if img != nil {
		if err := reg.Register(img); err != nil {
			return fail(err)
		}
	}

	txt, err := buildText(ctx, cfg, deps, log)
	if err != nil {
		return fail(fmt.Errorf("build text model: %w", err))
	}
	if err := reg.Register(txt); err != nil {
		return fail(err)
	}

	for kind, id := range reg.Versions() {
		log.Info("model ready", "kind", kind, "model", id)
	}
	return reg, nil
}

func buildImage(cfg Config, deps Deps, log *slog.Logger) (Model, error) {
	c := cfg.Image
	switch c.Backend {
	case "onnx":
		m, err := NewOnnxImage(OnnxImageConfig{
			ModelPath:  c.ModelPath,
			Version:    c.Version,
			ImageRoot:  c.ImageRoot,
			InputName:  c.InputName,
			OutputName: c.OutputName,
			InputSize:  c.InputSize,
			Labels:     c.Labels,
			Sigmoid:    c.Sigmoid,
		}, cfg.OnnxRuntimeLib)
		if err != nil {
			return nil, err
		}
		return Serialize(Instrument(m, deps.Events, log), cfg.QueueDepth), nil
	case "http":
		m, err := NewHTTPImage(c.Endpoint, c.APIKey, c.Version, c.Timeout)
		if err != nil {
			return nil, err
		}
		return Instrument(m, deps.Events, log), nil
	case "labels":
		m, err := LoadLabelsImage(c.LabelsFile)
		if err != nil {
			return nil, err
		}
		return Instrument(m, deps.Events, log), nil
	default:
		return nil, nil
	}
}

func buildText(ctx context.Context, cfg Config, deps Deps, log *slog.Logger) (Model, error) {
	c := cfg.Text
	switch c.Backend {
	case "onnx":
		m, err := NewOnnxText(ctx, OnnxTextConfig{
			ModelPath:     c.ModelPath,
			TokenizerPath: c.TokenizerPath,
			Version:       c.Version,
			MaxSeqLen:     c.MaxSeqLen,
			Pooling:       c.Pooling,
			OutputName:    c.OutputName,
			TypeIDs:       c.TypeIDs,
			TopK:          c.TopK,
		}, deps.Vocabulary, cfg.OnnxRuntimeLib)
		if err != nil {
			return nil, err
		}
		return Serialize(Instrument(m, deps.Events, log), cfg.QueueDepth), nil
	case "llm":
		if deps.LLM == nil {
			return nil, fmt.Errorf("llm backend selected but no llm configuration given")
		}
		if err := deps.LLM.Validate(); err != nil {
			return nil, err
		}
		p, err := llm.NewProvider(ctx, *deps.LLM, deps.Events)
		if err != nil {
			return nil, err
		}
		// Provider calls are already recorded by the llm logging decorator.
		return NewLLMText(p, deps.Vocabulary, deps.LLM.MaxTokens, deps.LLM.Timeout), nil
	default:
		return Instrument(NewLexicalText(deps.Vocabulary, c.TopK), deps.Events, log), nil
	}
}
