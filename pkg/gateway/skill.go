package gateway

import (
	"context"
	"encoding/json"
	"sync"
)

// Skill is a named gateway operation with a documented input schema.
// Implementations return either a JSON-serializable result or a typed
// *Error.
type Skill interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Handle(ctx context.Context, input json.RawMessage) (any, error)
}

type typedSkill[I any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, in I) (any, error)
}

// NewSkill wraps a typed handler as a Skill. The raw input is decoded
// into I before the handler runs; malformed input never reaches business
// logic.
func NewSkill[I any](name, description string, schema map[string]any, fn func(ctx context.Context, in I) (any, error)) Skill {
	return &typedSkill[I]{name: name, description: description, schema: schema, fn: fn}
}

func (s *typedSkill[I]) Name() string                { return s.name }
func (s *typedSkill[I]) Description() string         { return s.description }
func (s *typedSkill[I]) InputSchema() map[string]any { return s.schema }

func (s *typedSkill[I]) Handle(ctx context.Context, input json.RawMessage) (any, error) {
	var in I
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, NewError(KindInvalidInput, "malformed input for skill %s: %v", s.name, err)
		}
	}
	return s.fn(ctx, in)
}

// Registry maps skill names to handlers. Registration order is preserved
// so the capability card and tool listings are stable.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	order  []string
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds a skill. Re-registering a name replaces the handler but
// keeps its position.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.skills[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.skills[s.Name()] = s
}

// Get looks up a skill by name.
func (r *Registry) Get(name string) (Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.skills[name]
	return s, ok
}

// List returns all skills in registration order.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Skill, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.skills[name])
	}
	return out
}

// Dispatch resolves and invokes a skill by name.
func (r *Registry) Dispatch(ctx context.Context, name string, input json.RawMessage) (any, error) {
	s, ok := r.Get(name)
	if !ok {
		return nil, NewError(KindUnknownSkill, "unknown skill %q", name)
	}
	return s.Handle(ctx, input)
}

// objectSchema builds the conventional JSON-schema shape used in
// capability cards and MCP tool listings.
func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
