// Package tools defines the registry of operations the agent can invoke.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"
)

// Tool represents a callable operation wrapping one backend call.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	// Mutating marks operations that change remote state (incident
	// acknowledge/resolve). They must never be retried automatically:
	// a repeat against already-changed remote state is not safe.
	Mutating bool                                                        `json:"-"`
	Handler  func(ctx context.Context, args map[string]any) (any, error) `json:"-"`
}

// snapshot is an immutable view of the registered tools. The registry
// swaps whole snapshots so a rebuild never disturbs a turn already
// executing tools against the old view.
type snapshot struct {
	tools map[string]*Tool
	defs  []map[string]any
}

// Registry holds the available tools behind an atomically swappable
// snapshot.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates a registry with the given tools.
func NewRegistry(tools []*Tool) *Registry {
	r := &Registry{}
	r.Swap(tools)
	return r
}

// Swap atomically replaces the registered tool set. In-flight Execute
// calls keep the snapshot they started with.
func (r *Registry) Swap(tools []*Tool) {
	snap := &snapshot{
		tools: make(map[string]*Tool, len(tools)),
	}
	for _, t := range tools {
		snap.tools[t.Name] = t
	}

	names := make([]string, 0, len(snap.tools))
	for name := range snap.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := snap.tools[name]
		snap.defs = append(snap.defs, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}

	r.snap.Store(snap)
}

// Get retrieves a tool by name, or nil when unregistered.
func (r *Registry) Get(name string) *Tool {
	return r.snap.Load().tools[name]
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	return len(r.snap.Load().tools)
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	snap := r.snap.Load()
	names := make([]string, 0, len(snap.tools))
	for _, def := range snap.defs {
		fn := def["function"].(map[string]any)
		names = append(names, fn["name"].(string))
	}
	return names
}

// List returns the tool definitions in the function format the model
// client expects.
func (r *Registry) List() []map[string]any {
	return r.snap.Load().defs
}

// Execute runs a tool by name and returns its result as a JSON string.
// Every failure — unknown name, argument validation, backend error —
// is absorbed into a {"error": message} payload so the model can react
// to it inside the same turn. No error ever crosses this boundary.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) string {
	tool := r.snap.Load().tools[name]
	if tool == nil {
		return errorPayload(fmt.Sprintf("unknown tool: %s", name))
	}

	if args == nil {
		args = map[string]any{}
	}

	if err := validateArgs(tool.Parameters, args); err != nil {
		return errorPayload(err.Error())
	}

	result, err := tool.Handler(ctx, args)
	if err != nil {
		return errorPayload(err.Error())
	}

	data, err := json.Marshal(result)
	if err != nil {
		return errorPayload(fmt.Sprintf("encode result for %s: %v", name, err))
	}
	return string(data)
}

// errorPayload renders a structured error result.
func errorPayload(msg string) string {
	data, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"internal error"}`
	}
	return string(data)
}

// validateArgs checks args against a JSON-schema-shaped parameter
// declaration: required fields must be present, and provided fields
// must match their declared primitive type.
func validateArgs(params map[string]any, args map[string]any) error {
	if params == nil {
		return nil
	}

	if required, ok := params["required"].([]string); ok {
		for _, field := range required {
			if _, present := args[field]; !present {
				return fmt.Errorf("missing required parameter: %s", field)
			}
		}
	}

	props, ok := params["properties"].(map[string]any)
	if !ok {
		return nil
	}

	for field, value := range args {
		prop, ok := props[field].(map[string]any)
		if !ok {
			continue
		}
		declared, _ := prop["type"].(string)
		if declared == "" || value == nil {
			continue
		}
		if !typeMatches(declared, value) {
			return fmt.Errorf("parameter %s: expected %s, got %T", field, declared, value)
		}
	}

	return nil
}

// typeMatches checks a decoded JSON value against a schema type name.
// Numbers arrive as float64 from JSON decoding, so "integer" accepts
// any float64 with no fractional part.
func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		switch value.(type) {
		case float64, int:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	}
	return true
}
