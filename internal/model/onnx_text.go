package model

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/abhisek/radgrade/internal/vocab"
)

// OnnxTextConfig describes a sentence-embedding model (for example a
// clinical BERT variant) exported to ONNX with a HuggingFace
// tokenizer.json.
type OnnxTextConfig struct {
	ModelPath     string
	TokenizerPath string
	Version       string
	MaxSeqLen     int
	// Pooling is "mean" (attention-masked) or "cls".
	Pooling    string
	OutputName string
	// TypeIDs feeds token_type_ids for models that declare it.
	TypeIDs bool
	TopK    int
}

// OnnxText scores mentions by cosine similarity between their embedding
// and the embeddings of every vocabulary term.
type OnnxText struct {
	cfg     OnnxTextConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession

	index []termVector

	mu    sync.RWMutex
	cache map[string][]float32
}

type termVector struct {
	entryID string
	vec     []float32
}

// NewOnnxText loads the tokenizer and model and embeds the vocabulary.
func NewOnnxText(ctx context.Context, cfg OnnxTextConfig, v *vocab.Vocabulary, libPath string) (*OnnxText, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx text model: model and tokenizer paths are required")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = 64
	}
	if cfg.Pooling == "" {
		cfg.Pooling = "mean"
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	if err := acquireORT(libPath); err != nil {
		return nil, err
	}
	inputs := []string{"input_ids", "attention_mask"}
	if cfg.TypeIDs {
		inputs = append(inputs, "token_type_ids")
	}
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputs, []string{cfg.OutputName}, nil)
	if err != nil {
		_ = releaseORT()
		return nil, fmt.Errorf("load %s: %w", filepath.Base(cfg.ModelPath), err)
	}

	m := &OnnxText{
		cfg:     cfg,
		tk:      tk,
		session: session,
		cache:   make(map[string][]float32),
	}
	for _, t := range v.Terms() {
		if err := ctx.Err(); err != nil {
			_ = m.Close()
			return nil, err
		}
		vec, err := m.embed(t.Phrase)
		if err != nil {
			_ = m.Close()
			return nil, fmt.Errorf("embed term %q: %w", t.Phrase, err)
		}
		m.index = append(m.index, termVector{entryID: t.EntryID, vec: vec})
	}
	return m, nil
}

func (m *OnnxText) Name() string { return "onnx-text:" + filepath.Base(m.cfg.ModelPath) }
func (m *OnnxText) Kind() Kind   { return KindText }

func (m *OnnxText) Version() string {
	if m.cfg.Version != "" {
		return m.cfg.Version
	}
	return "0.0.0"
}

func (m *OnnxText) Predict(ctx context.Context, in Input) ([]Label, error) {
	if m.session == nil {
		return nil, ErrClosed
	}
	var out []Label
	for i, mention := range in.Mentions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := m.embedCached(vocab.NormalizeTerm(mention))
		if err != nil {
			return nil, &ErrUnavailable{Model: ID(m), Err: err}
		}
		best := make(map[string]float64)
		for _, t := range m.index {
			s := float64(cosineSimilarity(vec, t.vec))
			if s > best[t.entryID] {
				best[t.entryID] = s
			}
		}
		out = append(out, topLabels(best, i, m.cfg.TopK)...)
	}
	return out, nil
}

func (m *OnnxText) embedCached(text string) ([]float32, error) {
	key := m.cacheKey(text)
	m.mu.RLock()
	vec, ok := m.cache[key]
	m.mu.RUnlock()
	if ok {
		return vec, nil
	}

	vec, err := m.embed(text)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.cache[key] = vec
	m.mu.Unlock()
	return vec, nil
}

func (m *OnnxText) cacheKey(text string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, m.Version())
	_, _ = io.WriteString(h, "|")
	_, _ = io.WriteString(h, text)
	return hex.EncodeToString(h.Sum(nil))
}

func (m *OnnxText) embed(text string) ([]float32, error) {
	enc, err := m.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	n := min(len(enc.Ids), m.cfg.MaxSeqLen)
	if n == 0 {
		return nil, errors.New("tokenize: empty encoding")
	}
	ids := make([]int64, n)
	mask := make([]int64, n)
	types := make([]int64, n)
	for i := 0; i < n; i++ {
		ids[i] = int64(enc.Ids[i])
		if i < len(enc.AttentionMask) {
			mask[i] = int64(enc.AttentionMask[i])
		} else {
			mask[i] = 1
		}
		if i < len(enc.TypeIds) {
			types[i] = int64(enc.TypeIds[i])
		}
	}

	shape := ort.NewShape(1, int64(n))
	var inputs []ort.Value
	for _, data := range [][]int64{ids, mask, types}[:m.numInputs()] {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			destroyAll(inputs)
			return nil, fmt.Errorf("create input tensor: %w", err)
		}
		inputs = append(inputs, t)
	}
	defer destroyAll(inputs)

	outputs := []ort.Value{nil}
	if err := m.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("run session: %w", err)
	}
	defer destroyAll(outputs)

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}
	dims := hidden.GetShape()
	if len(dims) != 3 || dims[1] != int64(n) {
		return nil, fmt.Errorf("unexpected output shape %v", dims)
	}
	return pool(hidden.GetData(), mask, int(dims[2]), m.cfg.Pooling), nil
}

func (m *OnnxText) numInputs() int {
	if m.cfg.TypeIDs {
		return 3
	}
	return 2
}

// Close releases the session.
func (m *OnnxText) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	m.mu.Lock()
	m.cache = nil
	m.mu.Unlock()
	return errors.Join(err, releaseORT())
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			_ = v.Destroy()
		}
	}
}

// pool reduces a [seq, hidden] matrix to one L2-normalized vector.
func pool(data []float32, mask []int64, hidden int, mode string) []float32 {
	out := make([]float32, hidden)
	if mode == "cls" {
		copy(out, data[:hidden])
	} else {
		var count float32
		for t, w := range mask {
			if w == 0 {
				continue
			}
			row := data[t*hidden : (t+1)*hidden]
			for j, x := range row {
				out[j] += x
			}
			count++
		}
		if count > 0 {
			for j := range out {
				out[j] /= count
			}
		}
	}

	var norm float64
	for _, x := range out {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for j := range out {
			out[j] *= inv
		}
	}
	return out
}

func cosineSimilarity(a, b []float32) float32 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		fa, fb := float64(a[i]), float64(b[i])
		dot += fa * fb
		na += fa * fa
		nb += fb * fb
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
