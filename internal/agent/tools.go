package agent

import (
	"context"
	"errors"
	"fmt"
)

// ToolName identifies one of the built-in tools.
type ToolName string

const (
	ToolListTables    ToolName = "list_tables"
	ToolDescribeTable ToolName = "describe_table"
	ToolSchemaLookup  ToolName = "schema_lookup"
	ToolSQLQuery      ToolName = "sql_query"
)

// ErrDuplicateTool is returned when a tool name is registered twice.
var ErrDuplicateTool = errors.New("duplicate tool name")

// ErrUnknownTool is returned when executing a name that is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// Tool is a named capability the planner can invoke with a text input.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input string) (string, error)
}

// ToolHandler executes a tool call and returns the observation text.
type ToolHandler func(ctx context.Context, input string) (string, error)

type funcTool struct {
	name        string
	description string
	handler     ToolHandler
}

// NewTool wraps a handler as a Tool.
func NewTool(name, description string, handler ToolHandler) Tool {
	return &funcTool{name: name, description: description, handler: handler}
}

func (t *funcTool) Name() string        { return t.name }
func (t *funcTool) Description() string { return t.description }
func (t *funcTool) Invoke(ctx context.Context, input string) (string, error) {
	return t.handler(ctx, input)
}

// ToolRegistry holds available tools in registration order.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Names must be non-empty and unique.
func (r *ToolRegistry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("register tool: empty name")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("register tool %s: %w", name, ErrDuplicateTool)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

// Get returns a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *ToolRegistry) Names() []string {
	return append([]string(nil), r.order...)
}

// Tools returns the tools in registration order.
func (r *ToolRegistry) Tools() []Tool {
	out := make([]Tool, len(r.order))
	for i, name := range r.order {
		out[i] = r.tools[name]
	}
	return out
}

// Execute runs a tool by name.
func (r *ToolRegistry) Execute(ctx context.Context, name, input string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Invoke(ctx, input)
}
