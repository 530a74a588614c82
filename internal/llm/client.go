package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// backend is one vendor SDK. It sends the request and reports the raw
// reply; classification and validation happen in client.
type backend interface {
	send(ctx context.Context, model string, req Request) (reply, error)
	// status extracts the HTTP status and headers from an SDK error,
	// or zero when the error carries none.
	status(err error) (int, http.Header)
}

type reply struct {
	text      string
	usage     Usage
	model     string
	truncated bool
}

// client adapts a backend to Provider.
type client struct {
	provider string
	model    string
	backend  backend
	schemas  *schemaSet
}

func newClient(provider, model string, b backend) *client {
	return &client{provider: provider, model: model, backend: b, schemas: newSchemaSet()}
}

func (c *client) ModelID() string { return c.model }

func (c *client) Complete(ctx context.Context, req Request) (*Completion, error) {
	r, err := c.backend.send(ctx, c.model, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		status, header := c.backend.status(err)
		return nil, fromStatus(c.provider, status, header, err)
	}

	content := json.RawMessage(strings.TrimSpace(r.text))
	if r.truncated {
		return nil, &Error{Kind: KindTruncated, Provider: c.provider, Content: content}
	}
	if err := c.schemas.conform(c.provider, req.Schema, content); err != nil {
		return nil, err
	}

	model := r.model
	if model == "" {
		model = c.model
	}
	return &Completion{Content: content, Usage: r.usage, Model: model}, nil
}

// resolveModel expands a configured alias. Unknown names are passed
// through as literal model ids.
func resolveModel(name string, aliases map[string]string) string {
	if id, ok := aliases[name]; ok {
		return id
	}
	return name
}
