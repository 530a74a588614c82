package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPImage delegates classification to an external inference service.
// The service answers POST {endpoint}/predict with
// {"version": "...", "predictions": [{"label": "...", "confidence": 0.9}]}.
type HTTPImage struct {
	endpoint string
	apiKey   string
	version  string
	http     *http.Client
}

// NewHTTPImage creates a client for endpoint. version is reported when
// the service does not name its own.
func NewHTTPImage(endpoint, apiKey, version string, timeout time.Duration) (*HTTPImage, error) {
	if endpoint == "" {
		return nil, errors.New("http image model: endpoint is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPImage{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		version:  version,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

func (c *HTTPImage) Name() string { return "http-image" }
func (c *HTTPImage) Kind() Kind   { return KindImage }

func (c *HTTPImage) Version() string {
	if c.version == "" {
		return "0.0.0"
	}
	return c.version
}

type httpPrediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (c *HTTPImage) Predict(ctx context.Context, in Input) ([]Label, error) {
	payload := map[string]any{
		"caseId":   in.CaseID,
		"imageRef": in.ImageRef,
	}
	var resp struct {
		Predictions []httpPrediction `json:"predictions"`
	}
	if err := c.post(ctx, "/predict", payload, &resp); err != nil {
		return nil, err
	}

	labels := make([]Label, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		labels = append(labels, Label{ConceptID: p.Label, Confidence: p.Confidence})
	}
	return labels, nil
}

func (c *HTTPImage) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &ErrUnavailable{Model: ID(c), Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: service returned %s", ErrInputUnavailable, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return &ErrUnavailable{Model: ID(c), Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &ErrUnavailable{Model: ID(c), Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
