package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"genesis-ai/internal/domain"
)

// Registry holds named tools. Registration happens at startup; lookups from
// concurrent turns only read.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]domain.Tool
	logger *slog.Logger
}

// NewRegistry creates an empty registry. A non-nil logger enables schema
// validation wrapping on Register; a tool whose schema fails to compile is
// registered unwrapped with a warning.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byName: make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool, rejecting duplicate names.
func (r *Registry) Register(t domain.Tool) error {
	name := t.Name()

	if r.logger != nil {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool",
				"tool", name, "error", err)
		} else {
			t = wrapped
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.byName[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	t, ok := r.byName[name]
	r.mu.RUnlock()

	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns the registered tools in name order.
func (r *Registry) List() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Tool, 0, len(r.byName))
	for _, name := range r.sortedNames() {
		out = append(out, r.byName[name])
	}
	return out
}

// Schemas returns every tool schema in name order, so the function list
// presented to the model is stable across turns.
func (r *Registry) Schemas() []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ToolSchema, 0, len(r.byName))
	for _, name := range r.sortedNames() {
		out = append(out, r.byName[name].Schema())
	}
	return out
}

// sortedNames assumes the caller holds at least a read lock.
func (r *Registry) sortedNames() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
