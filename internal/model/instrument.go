package model

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/abhisek/radgrade/internal/store"
)

// Instrumented records every Predict call as a model event and a debug
// log line. Inputs and outputs are not recorded.
type Instrumented struct {
	Model
	events store.EventRepo
	log    *slog.Logger
}

// Instrument wraps m. events may be nil, in which case only logging
// happens.
func Instrument(m Model, events store.EventRepo, log *slog.Logger) *Instrumented {
	if log == nil {
		log = slog.Default()
	}
	return &Instrumented{Model: m, events: events, log: log}
}

func (i *Instrumented) Predict(ctx context.Context, in Input) ([]Label, error) {
	start := time.Now()
	labels, err := i.Model.Predict(ctx, in)
	latency := time.Since(start)

	attrs := []any{
		"model", i.Name(),
		"kind", i.Kind(),
		"version", i.Version(),
		"latency_ms", latency.Milliseconds(),
		"labels", len(labels),
	}
	if err != nil {
		i.log.Warn("model prediction failed", append(attrs, "error", err)...)
	} else {
		i.log.Debug("model prediction", attrs...)
	}

	if i.events != nil {
		data := store.ModelEventData{
			Model:     i.Name(),
			Kind:      string(i.Kind()),
			Version:   i.Version(),
			LatencyMs: latency.Milliseconds(),
			Success:   err == nil,
		}
		if err != nil {
			data.ErrorMessage = err.Error()
		}
		if logErr := i.events.AppendModelCall(context.WithoutCancel(ctx), data); logErr != nil {
			i.log.Warn("failed to record model event", "error", logErr)
		}
	}

	return labels, err
}

// Close releases the wrapped model when it holds resources.
func (i *Instrumented) Close() error {
	if c, ok := i.Model.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
