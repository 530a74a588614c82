package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxImageConfig describes a multi-label chest radiograph classifier
// exported to ONNX.
type OnnxImageConfig struct {
	ModelPath  string
	Version    string
	ImageRoot  string
	InputName  string
	OutputName string
	InputSize  int
	// Labels are the canonical ids of the output columns, in order.
	Labels []string
	// Sigmoid is applied to raw outputs when the graph emits logits.
	Sigmoid bool
}

// OnnxImage runs the classifier with bound input and output tensors.
// It is not safe for concurrent use; wrap it with Serialize.
type OnnxImage struct {
	cfg     OnnxImageConfig
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewOnnxImage loads the model. libPath locates the onnxruntime shared
// library and may be empty to use the system default.
func NewOnnxImage(cfg OnnxImageConfig, libPath string) (*OnnxImage, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("onnx image model: model path is required")
	}
	if len(cfg.Labels) == 0 {
		return nil, errors.New("onnx image model: labels are required")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = 224
	}
	if cfg.InputName == "" {
		cfg.InputName = "input"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "output"
	}

	if err := acquireORT(libPath); err != nil {
		return nil, err
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(cfg.InputSize), int64(cfg.InputSize)))
	if err != nil {
		_ = releaseORT()
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(cfg.Labels))))
	if err != nil {
		input.Destroy()
		_ = releaseORT()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if err != nil {
		output.Destroy()
		input.Destroy()
		_ = releaseORT()
		return nil, fmt.Errorf("load %s: %w", filepath.Base(cfg.ModelPath), err)
	}

	return &OnnxImage{cfg: cfg, session: session, input: input, output: output}, nil
}

func (m *OnnxImage) Name() string { return "onnx-image:" + filepath.Base(m.cfg.ModelPath) }
func (m *OnnxImage) Kind() Kind   { return KindImage }

func (m *OnnxImage) Version() string {
	if m.cfg.Version != "" {
		return m.cfg.Version
	}
	return "0.0.0"
}

func (m *OnnxImage) Predict(ctx context.Context, in Input) ([]Label, error) {
	if m.session == nil {
		return nil, ErrClosed
	}
	path, err := resolveImagePath(m.cfg.ImageRoot, in.ImageRef)
	if err != nil {
		return nil, err
	}
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	copy(m.input.GetData(), preprocess(img, m.cfg.InputSize))
	if err := m.session.Run(); err != nil {
		return nil, &ErrUnavailable{Model: ID(m), Err: err}
	}

	scores := m.output.GetData()
	labels := make([]Label, 0, len(m.cfg.Labels))
	for i, id := range m.cfg.Labels {
		if i >= len(scores) {
			break
		}
		p := float64(scores[i])
		if m.cfg.Sigmoid {
			p = 1 / (1 + math.Exp(-p))
		}
		labels = append(labels, Label{ConceptID: id, Confidence: p})
	}
	return labels, nil
}

// Close destroys the session and its tensors.
func (m *OnnxImage) Close() error {
	if m.session == nil {
		return nil
	}
	var errs []error
	if err := m.session.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := m.input.Destroy(); err != nil {
		errs = append(errs, err)
	}
	if err := m.output.Destroy(); err != nil {
		errs = append(errs, err)
	}
	m.session = nil
	if err := releaseORT(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
