package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/abhisek/radgrade/internal/store"
)

type recording struct {
	next     Provider
	provider string
	events   store.EventRepo
	now      func() time.Time
}

// WithRecorder appends a model event for every call. Prompts and
// replies are left out because they contain student text.
func WithRecorder(p Provider, provider string, events store.EventRepo) Provider {
	return &recording{next: p, provider: provider, events: events, now: time.Now}
}

func (r *recording) ModelID() string { return r.next.ModelID() }

func (r *recording) Complete(ctx context.Context, req Request) (*Completion, error) {
	start := r.now()
	c, err := r.next.Complete(ctx, req)

	ev := store.ModelEventData{
		Model:     r.next.ModelID(),
		Kind:      "llm:" + r.provider,
		Purpose:   req.Purpose,
		LatencyMs: r.now().Sub(start).Milliseconds(),
		Success:   err == nil,
	}
	if ev.Purpose == "" {
		ev.Purpose = "unspecified"
	}
	if c != nil {
		ev.Version = c.Model
		ev.InputTokens = c.Usage.InputTokens
		ev.OutputTokens = c.Usage.OutputTokens
	}
	if err != nil {
		ev.ErrorMessage = err.Error()
	}

	if appendErr := r.events.AppendModelCall(context.WithoutCancel(ctx), ev); appendErr != nil {
		slog.Warn("record llm call", "model", ev.Model, "error", appendErr)
	}
	return c, err
}
