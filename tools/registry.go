// Package tools provides the registry of tool adapters a workflow branch may
// invoke. A Registry is populated once at startup, then shared read-only
// across concurrently running sessions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/queryloom/queryloom/core/protocol"
)

// Handler is the function signature for tool implementations. Handlers
// receive the request context and the JSON-encoded arguments produced by the
// generation capability.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is the tool execution output that feeds back into the next
// generation turn. IsError signals that the invocation failed; the content
// is still inserted into the message log so the next call can react to it.
type Result struct {
	Content string
	IsError bool
}

type entry struct {
	tool    protocol.Tool
	handler Handler
}

// Registry maps tool names to definitions and handlers. Thread-safe; steps
// only read from it, so a fully registered Registry is safe to share across
// sessions.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a new tool. Returns ErrAlreadyExists if a tool with the same
// name is already registered.
func (r *Registry) Register(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Get retrieves a handler by tool name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// List returns the definitions of all registered tools.
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]protocol.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}
	return tools
}

// Execute dispatches a tool call to the registered handler by name.
// Returns ErrNotFound if the tool is not registered. Handler errors are
// wrapped with the tool name for context.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	result, err := e.handler(ctx, args)
	if err != nil {
		return Result{}, fmt.Errorf("tool %s execution failed: %w", name, err)
	}

	return result, nil
}
