package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"genesis-ai/internal/domain"
)

// validatedTool checks Execute params against the tool's compiled JSON
// Schema before delegating to the wrapped tool.
type validatedTool struct {
	inner    domain.Tool
	compiled *jsonschema.Schema
}

// WithSchemaValidation wraps t so that malformed or schema-violating params
// come back as error results instead of reaching the tool. Tools without a
// parameter schema are returned unwrapped. Compile failures are returned to
// the caller, which decides whether to register the tool anyway.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiled, err := jsonschema.NewCompiler().Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}
	return &validatedTool{inner: t, compiled: compiled}, nil
}

func (v *validatedTool) Name() string              { return v.inner.Name() }
func (v *validatedTool) Description() string       { return v.inner.Description() }
func (v *validatedTool) Schema() domain.ToolSchema { return v.inner.Schema() }

func (v *validatedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}

	var decoded any
	if err := json.Unmarshal(params, &decoded); err != nil {
		return ErrResult("invalid JSON: %v", err)
	}

	if verdict := v.compiled.Validate(decoded); !verdict.IsValid() {
		return ErrResult("schema validation failed: %v", verdict.Error())
	}

	return v.inner.Execute(ctx, params)
}
