package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/schema"
)

// ToolFunction defines the signature for a tool implementation.
// It receives a context and a map of arguments, and returns the text handed back to the model.
type ToolFunction func(ctx context.Context, args map[string]any) (string, error)

type entry struct {
	spec      domain.Tool
	fn        ToolFunction
	args      *schema.Schema
	schemaErr error
}

// Registry manages the available tools. It implements ports.ToolDispatcher.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]entry
}

var _ ports.ToolDispatcher = (*Registry)(nil)

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]entry),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten.
// Calls are checked against spec.Parameters before fn runs.
func (r *Registry) Register(spec domain.Tool, fn ToolFunction) {
	args, err := schema.Compile(spec.Parameters)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[spec.Name] = entry{spec: spec, fn: fn, args: args, schemaErr: err}
}

// Len reports how many tools are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Tools returns the registered tool specs sorted by name.
func (r *Registry) Tools() []domain.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Tool, 0, len(r.tools))
	for _, e := range r.tools {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute looks up a tool by name and executes it.
// Returns an error if the tool is not found.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (out string, err error) {
	r.mu.RLock()
	e, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tool not found: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return e.fn(ctx, args)
}

// Dispatch runs a tool call and reports every failure in the result.
func (r *Registry) Dispatch(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	res := domain.ToolResult{ID: call.ID, Name: call.Name}

	r.mu.RLock()
	e, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		res.Content = fmt.Sprintf("Error: Unknown tool '%s'", call.Name)
		res.IsError = true
		return res
	}
	if e.schemaErr != nil {
		res.Content = fmt.Sprintf("Error: Tool '%s' advertises an invalid parameter schema: %v", call.Name, e.schemaErr)
		res.IsError = true
		return res
	}
	if err := e.args.Validate(call.Args); err != nil {
		res.Content = fmt.Sprintf("Error: Invalid arguments for tool '%s': %v", call.Name, err)
		res.IsError = true
		return res
	}

	out, err := r.Execute(ctx, call.Name, call.Args)
	if err != nil {
		res.Content = fmt.Sprintf("Error executing tool '%s': %v", call.Name, err)
		res.IsError = true
		return res
	}
	res.Content = out
	return res
}
