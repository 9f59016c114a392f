// Package tool defines the tools agents can invoke during a turn, plus a
// typed constructor that derives a tool's JSON schema from its argument
// struct and validates incoming arguments against it before the tool runs.
package tool

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool is a capability an agent can invoke.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells the model what the tool does and when to use it.
	Description() string

	// Schema returns the JSON schema of the tool's arguments. Nil means
	// the tool takes no arguments.
	Schema() map[string]any

	// Call executes the tool. Args have already been validated against
	// the schema when the tool was built with New.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Definition is a tool description in the shape LLM function-calling APIs
// expect.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToDefinition converts a tool to its function-calling definition.
func ToDefinition(t Tool) Definition {
	return Definition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Schema(),
	}
}

// ToolCall is a model's request to invoke a tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the outcome of a tool invocation, for building the next
// model request.
type ToolResult struct {
	ToolCallID string
	Name       string
	Content    map[string]any
	Error      string
}

// ============================================================================
// REGISTRY
// ============================================================================

// Registry holds the tools available to an agent. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get looks a tool up by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the function-calling definitions of every registered
// tool, sorted by name for stable prompts.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, ToDefinition(t))
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke runs the named tool. Unknown tool names and argument mismatches
// come back as errors rather than panics so the agent can report them to
// the model.
func (r *Registry) Invoke(ctx context.Context, call ToolCall) ToolResult {
	res := ToolResult{ToolCallID: call.ID, Name: call.Name}

	t, ok := r.Get(call.Name)
	if !ok {
		res.Error = fmt.Sprintf("unknown tool %q", call.Name)
		return res
	}

	out, err := t.Call(ctx, call.Args)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Content = out
	return res
}
