package llm

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

type retrying struct {
	next  Provider
	cfg   RetryConfig
	sleep func(context.Context, time.Duration) error
}

// WithRetry re-sends requests that the backend refused for rate
// limiting. Anything else, including malformed replies, is returned on
// the first failure: re-running an inference could change the grade.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &retrying{next: p, cfg: cfg, sleep: sleepCtx}
}

func (r *retrying) ModelID() string { return r.next.ModelID() }

func (r *retrying) Complete(ctx context.Context, req Request) (*Completion, error) {
	for attempt := 1; ; attempt++ {
		c, err := r.next.Complete(ctx, req)
		if err == nil {
			return c, nil
		}
		var e *Error
		if !errors.As(err, &e) || !e.Retryable() || attempt >= r.cfg.MaxAttempts {
			return nil, err
		}
		if err := r.sleep(ctx, r.wait(attempt, e.RetryAfter)); err != nil {
			return nil, err
		}
	}
}

// wait is the pause before the next attempt: the server's Retry-After
// when given, otherwise exponential backoff with 20% jitter, capped at
// MaxWait.
func (r *retrying) wait(attempt int, hint time.Duration) time.Duration {
	if hint > 0 {
		return hint
	}
	d := float64(r.cfg.InitialWait)
	for range attempt - 1 {
		d *= r.cfg.Multiplier
	}
	if limit := float64(r.cfg.MaxWait); limit > 0 && d > limit {
		d = limit
	}
	d *= 0.8 + 0.4*rand.Float64()
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
