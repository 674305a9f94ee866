package tools

import (
	"context"
)

// Tool is a single capability a step can invoke. Arguments arrive as the
// raw JSON string produced by the model; errors returned from Execute mean
// the tool itself broke, not that the task it ran failed.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	Execute(ctx context.Context, input string) (string, error)
}

// Registry holds the tools available to a run. Registration order is
// preserved so the model is always offered the same tool list.
type Registry struct {
	byName map[string]Tool
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]Tool),
	}
}

// Register adds or replaces a tool under its name.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.byName[name]; !exists {
		r.order = append(r.order, name)
	}
	r.byName[name] = t
}

// Get returns the named tool, or nil when it is not registered.
func (r *Registry) Get(name string) Tool {
	return r.byName[name]
}

// All returns the tools in registration order.
func (r *Registry) All() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
