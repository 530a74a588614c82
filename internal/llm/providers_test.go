package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
)

const normalizedContent = `{"matches":[{"mention":0,"conceptId":"pneumothorax","similarity":0.91}]}`

func matchSchema() *Schema {
	return &Schema{
		Name:        "test-matches",
		Description: "Mention to concept matches",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"matches": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"mention":    map[string]any{"type": "integer", "minimum": 0},
							"conceptId":  map[string]any{"type": "string"},
							"similarity": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						},
						"required": []any{"mention", "conceptId", "similarity"},
					},
				},
			},
			"required": []any{"matches"},
		},
	}
}

func respond(status int, body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}

func anthropicServer(t *testing.T, h http.HandlerFunc) Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewAnthropic(AnthropicConfig{APIKey: "test-key", Model: "claude-haiku"}, option.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func openaiServer(t *testing.T, h http.HandlerFunc) Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", Model: "gpt-4o-mini", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func anthropicMessage(text, stop string) map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"content":     []map[string]any{{"type": "text", "text": text}},
		"model":       "claude-haiku-4-5-20251001",
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 120, "output_tokens": 30},
	}
}

func openaiCompletion(content, finish string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "gpt-4o-mini-2024-07-18",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 25, "total_tokens": 65},
	}
}

func TestAnthropic_Complete(t *testing.T) {
	var sent map[string]any
	p := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &sent)
		respond(http.StatusOK, anthropicMessage(normalizedContent, "end_turn"))(w, r)
	})

	if p.ModelID() != "claude-haiku-4-5-20251001" {
		t.Errorf("alias not resolved: %q", p.ModelID())
	}

	c, err := p.Complete(context.Background(), Request{
		System:    "Map radiology mentions to concepts.",
		Prompt:    "0. air in the pleural space",
		Schema:    matchSchema(),
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(c.Content) != normalizedContent {
		t.Errorf("content = %s", c.Content)
	}
	if c.Usage.Total() != 150 {
		t.Errorf("got %d total tokens, want 150", c.Usage.Total())
	}
	if sent["temperature"] != float64(0) {
		t.Errorf("temperature = %v, want 0", sent["temperature"])
	}
	if !strings.Contains(string(mustJSON(t, sent["messages"])), "air in the pleural space") {
		t.Errorf("prompt not sent: %v", sent["messages"])
	}
}

func TestOpenAI_Complete(t *testing.T) {
	var sent map[string]any
	p := openaiServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &sent)
		respond(http.StatusOK, openaiCompletion(normalizedContent, "stop"))(w, r)
	})

	c, err := p.Complete(context.Background(), Request{
		System:    "sys",
		Prompt:    "0. blunted costophrenic angle",
		Schema:    matchSchema(),
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Usage.InputTokens != 40 || c.Usage.OutputTokens != 25 {
		t.Errorf("usage = %+v", c.Usage)
	}
	if c.Model != "gpt-4o-mini-2024-07-18" {
		t.Errorf("model = %q", c.Model)
	}

	format, _ := sent["response_format"].(map[string]any)
	if format["type"] != "json_schema" {
		t.Errorf("response_format = %v", sent["response_format"])
	}
	if msgs, _ := sent["messages"].([]any); len(msgs) != 2 {
		t.Errorf("got %d messages, want system and user", len(msgs))
	}
}

func TestComplete_ReplyFailures(t *testing.T) {
	tests := []struct {
		name     string
		provider func(t *testing.T) Provider
		want     Kind
	}{
		{"anthropic truncated", func(t *testing.T) Provider {
			return anthropicServer(t, respond(http.StatusOK, anthropicMessage(`{"matches":[`, "max_tokens")))
		}, KindTruncated},
		{"anthropic breaks schema", func(t *testing.T) Provider {
			return anthropicServer(t, respond(http.StatusOK, anthropicMessage(`{"matches":[{"mention":"zero"}]}`, "end_turn")))
		}, KindMalformed},
		{"openai truncated", func(t *testing.T) Provider {
			return openaiServer(t, respond(http.StatusOK, openaiCompletion(`{"mat`, "length")))
		}, KindTruncated},
		{"openai not json", func(t *testing.T) Provider {
			return openaiServer(t, respond(http.StatusOK, openaiCompletion(`sure, here you go`, "stop")))
		}, KindMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.provider(t).Complete(context.Background(), Request{Prompt: "x", Schema: matchSchema(), MaxTokens: 16})
			if !IsKind(err, tt.want) {
				t.Fatalf("got %v, want kind %s", err, tt.want)
			}
		})
	}
}

func TestComplete_StatusMapping(t *testing.T) {
	anthropicErr := func(status int, typ string) http.HandlerFunc {
		return respond(status, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": typ, "message": typ},
		})
	}
	openaiErr := func(status int, typ string) http.HandlerFunc {
		return respond(status, map[string]any{
			"error": map[string]any{"type": typ, "message": typ},
		})
	}

	tests := []struct {
		name     string
		provider func(t *testing.T) Provider
		want     Kind
	}{
		{"anthropic 429", func(t *testing.T) Provider {
			return anthropicServer(t, anthropicErr(http.StatusTooManyRequests, "rate_limit_error"))
		}, KindRateLimited},
		{"anthropic 500", func(t *testing.T) Provider {
			return anthropicServer(t, anthropicErr(http.StatusInternalServerError, "api_error"))
		}, KindUnavailable},
		{"anthropic 401", func(t *testing.T) Provider {
			return anthropicServer(t, anthropicErr(http.StatusUnauthorized, "authentication_error"))
		}, KindUnavailable},
		{"openai 429", func(t *testing.T) Provider {
			return openaiServer(t, openaiErr(http.StatusTooManyRequests, "rate_limit_exceeded"))
		}, KindRateLimited},
		{"openai 503", func(t *testing.T) Provider {
			return openaiServer(t, openaiErr(http.StatusServiceUnavailable, "server_error"))
		}, KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.provider(t).Complete(context.Background(), Request{Prompt: "x", MaxTokens: 16})
			var e *Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *Error, got %T (%v)", err, err)
			}
			if e.Kind != tt.want {
				t.Errorf("kind = %s, want %s", e.Kind, tt.want)
			}
			if e.Retryable() != (tt.want == KindRateLimited) {
				t.Errorf("Retryable() = %v for %s", e.Retryable(), e.Kind)
			}
		})
	}
}

func TestComplete_CancelledContextIsNotWrapped(t *testing.T) {
	p := openaiServer(t, respond(http.StatusOK, openaiCompletion(`{}`, "stop")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Complete(ctx, Request{Prompt: "x", MaxTokens: 16})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	var e *Error
	if errors.As(err, &e) {
		t.Errorf("cancellation should not be classified, got kind %s", e.Kind)
	}
}

func TestNewOpenRouter(t *testing.T) {
	p, err := NewOpenRouter(OpenRouterConfig{APIKey: "sk-or-test", Model: "anthropic/claude-3-haiku"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ModelID() != "anthropic/claude-3-haiku" {
		t.Errorf("model = %q, want pass-through", p.ModelID())
	}
	if _, err := NewOpenRouter(OpenRouterConfig{Model: "x"}); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestResolveModel(t *testing.T) {
	tests := []struct {
		aliases map[string]string
		in      string
		want    string
	}{
		{anthropicAliases, "claude-haiku", "claude-haiku-4-5-20251001"},
		{anthropicAliases, "claude-opus-4-1", "claude-opus-4-1"},
		{geminiAliases, "gemini-flash", "gemini-2.0-flash"},
		{openaiAliases, "gpt-4o", "gpt-4o"},
	}
	for _, tt := range tests {
		if got := resolveModel(tt.in, tt.aliases); got != tt.want {
			t.Errorf("resolveModel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGeminiSchema(t *testing.T) {
	s := geminiSchema(matchSchema().Definition)

	if s.Type != "OBJECT" {
		t.Fatalf("expected OBJECT type, got %s", s.Type)
	}
	items := s.Properties["matches"].Items
	if items == nil || items.Properties["mention"].Type != "INTEGER" {
		t.Fatalf("nested items not converted: %+v", items)
	}
	sim := items.Properties["similarity"]
	if sim.Minimum == nil || *sim.Minimum != 0 || sim.Maximum == nil || *sim.Maximum != 1 {
		t.Errorf("similarity bounds not carried: %+v", sim)
	}
	if len(items.Required) != 3 {
		t.Errorf("got %d required item fields, want 3", len(items.Required))
	}

	enum := geminiSchema(map[string]any{"type": "string", "enum": []any{"edema", "pneumothorax"}})
	if len(enum.Enum) != 2 {
		t.Errorf("expected 2 enum values, got %d", len(enum.Enum))
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}
