package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"genesis-ai/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(NewDatetimeTool(testLogger())); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Get("get_current_datetime")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name() != "get_current_datetime" {
		t.Errorf("expected datetime tool, got %q", got.Name())
	}
}

func TestRegistryDuplicateRejected(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(NewDatetimeTool(testLogger())); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(NewDatetimeTool(testLogger())); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := NewRegistry(testLogger())
	_, err := r.Get("no_such_tool")
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(NewDatetimeTool(testLogger())); err != nil {
		t.Fatalf("register datetime: %v", err)
	}
	if err := r.Register(NewCalculateTool(testLogger())); err != nil {
		t.Fatalf("register calculate: %v", err)
	}

	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("expected 2 schemas, got %d", len(schemas))
	}
	names := map[string]bool{}
	for _, s := range schemas {
		names[s.Name] = true
		if len(s.Parameters) == 0 {
			t.Errorf("schema %q has empty parameters", s.Name)
		}
	}
	if !names["get_current_datetime"] || !names["calculate"] {
		t.Errorf("unexpected schema names: %v", names)
	}
}

func TestRegistryWrapsWithSchemaValidation(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(NewCalculateTool(testLogger())); err != nil {
		t.Fatalf("register: %v", err)
	}

	calc, err := r.Get("calculate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Missing required "expression" must be rejected before the tool runs.
	res, err := calc.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected validation error result, got %q", res.Content)
	}
}
