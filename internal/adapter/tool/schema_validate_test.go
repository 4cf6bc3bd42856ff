package tool

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"genesis-ai/internal/domain"
)

// stubTool is a minimal tool for testing schema validation.
type stubTool struct {
	name   string
	schema json.RawMessage
	result *domain.ToolResult
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        s.name,
		Description: "stub",
		Parameters:  s.schema,
	}
}
func (s *stubTool) Execute(_ context.Context, _ json.RawMessage) (*domain.ToolResult, error) {
	return s.result, nil
}

func TestSchemaValidationValidParams(t *testing.T) {
	inner := &stubTool{
		name: "test",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"}
			},
			"required": ["name"]
		}`),
		result: &domain.ToolResult{Content: "ok"},
	}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{"name":"alice"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "ok" {
		t.Errorf("expected 'ok', got %q", result.Content)
	}
}

func TestSchemaValidationMissingRequired(t *testing.T) {
	inner := &stubTool{
		name: "test",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"name": {"type": "string"}
			},
			"required": ["name"]
		}`),
		result: &domain.ToolResult{Content: "should not run"},
	}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("validation failures must be error results, not errors: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for missing required field")
	}
	if !strings.Contains(result.Content, "validation") {
		t.Errorf("expected validation message, got %q", result.Content)
	}
}

func TestSchemaValidationWrongType(t *testing.T) {
	inner := &stubTool{
		name: "test",
		schema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"count": {"type": "integer"}
			}
		}`),
		result: &domain.ToolResult{Content: "should not run"},
	}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{"count":"three"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for wrong type")
	}
}

func TestSchemaValidationInvalidJSON(t *testing.T) {
	inner := &stubTool{
		name:   "test",
		schema: json.RawMessage(`{"type":"object"}`),
		result: &domain.ToolResult{Content: "should not run"},
	}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := wrapped.Execute(context.Background(), json.RawMessage(`{not json`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result for malformed JSON")
	}
}

func TestSchemaValidationNoSchemaPassThrough(t *testing.T) {
	inner := &stubTool{
		name:   "test",
		result: &domain.ToolResult{Content: "ok"},
	}

	wrapped, err := WithSchemaValidation(inner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wrapped != domain.Tool(inner) {
		t.Error("expected tool without schema to pass through unwrapped")
	}
}
