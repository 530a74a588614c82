package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/radgrade/internal/store"
)

var constructors = map[string]func(context.Context, Config) (Provider, error){
	"anthropic": func(_ context.Context, c Config) (Provider, error) { return NewAnthropic(c.Anthropic) },
	"openai":    func(_ context.Context, c Config) (Provider, error) { return NewOpenAI(c.OpenAI) },
	"openrouter": func(_ context.Context, c Config) (Provider, error) {
		return NewOpenRouter(c.OpenRouter)
	},
	"gemini":   func(ctx context.Context, c Config) (Provider, error) { return NewGemini(ctx, c.Gemini) },
	"scripted": func(context.Context, Config) (Provider, error) { return NewScripted(), nil },
}

// NewProvider builds the configured provider. Calls pass through the
// retry layer first and are recorded per attempt when events is non-nil.
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo) (Provider, error) {
	build, ok := constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	p, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if events != nil {
		p = WithRecorder(p, cfg.Provider, events)
	}
	return WithRetry(p, cfg.Retry), nil
}
