package model

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrToolNotFound is matched by FunctionNotFoundError via errors.Is.
var ErrToolNotFound = errors.New("tool not found")

// ToolResult is what a tool returns to the reasoning loop.
type ToolResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Data    any    `json:"data,omitempty"`
}

// ToolSpec describes a tool to the capability provider.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}

// Tool is a named, described, schema-typed operation the agent may invoke.
type Tool interface {
	Spec() ToolSpec
	Execute(ctx context.Context, args map[string]any) (ToolResult, error)
}

// ToolFunction is the signature for tool execution functions
type ToolFunction func(ctx context.Context, args map[string]any) (ToolResult, error)

type funcTool struct {
	spec ToolSpec
	fn   ToolFunction
}

func (t *funcTool) Spec() ToolSpec { return t.spec }

func (t *funcTool) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	return t.fn(ctx, args)
}

// NewFuncTool wraps a plain function as a Tool.
func NewFuncTool(name, description string, schema map[string]any, fn ToolFunction) Tool {
	if schema == nil {
		schema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &funcTool{
		spec: ToolSpec{Name: name, Description: description, Schema: schema},
		fn:   fn,
	}
}

// FunctionRegistry manages the mapping between tool names and their implementations.
// It must be populated at application startup with all available tools.
type FunctionRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewFunctionRegistry creates a new function registry
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool. Names must be unique.
func (fr *FunctionRegistry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Spec().Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	if _, exists := fr.tools[name]; exists {
		return fmt.Errorf("function already registered for tool: %s", name)
	}
	fr.tools[name] = tool
	return nil
}

// RegisterFunc registers a plain function under name.
func (fr *FunctionRegistry) RegisterFunc(name, description string, schema map[string]any, fn ToolFunction) error {
	if fn == nil {
		return fmt.Errorf("function cannot be nil for tool: %s", name)
	}
	return fr.Register(NewFuncTool(name, description, schema, fn))
}

// MustRegister registers a tool and panics if there's an error
func (fr *FunctionRegistry) MustRegister(tool Tool) {
	if err := fr.Register(tool); err != nil {
		panic(fmt.Sprintf("failed to register tool: %v", err))
	}
}

// RegisterOrReplace registers a tool, replacing any existing registration.
func (fr *FunctionRegistry) RegisterOrReplace(tool Tool) error {
	if tool == nil || tool.Spec().Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	fr.mu.Lock()
	defer fr.mu.Unlock()

	fr.tools[tool.Spec().Name] = tool
	return nil
}

// DisableToolTemporarily replaces a registered tool with one that always
// fails with a ToolDisabledError. The tool stays listed so the model sees
// why it cannot be used.
func (fr *FunctionRegistry) DisableToolTemporarily(name, reason string) error {
	tool, ok := fr.Get(name)
	if !ok {
		return &FunctionNotFoundError{ToolName: name}
	}
	spec := tool.Spec()
	disabled := NewFuncTool(spec.Name, spec.Description, spec.Schema, func(ctx context.Context, args map[string]any) (ToolResult, error) {
		return ToolResult{}, &ToolDisabledError{ToolName: name, Reason: reason}
	})
	return fr.RegisterOrReplace(disabled)
}

// Get retrieves a tool by name
func (fr *FunctionRegistry) Get(name string) (Tool, bool) {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	tool, ok := fr.tools[name]
	return tool, ok
}

// Has checks if a tool is registered under name
func (fr *FunctionRegistry) Has(name string) bool {
	_, ok := fr.Get(name)
	return ok
}

// Execute runs a tool by name.
func (fr *FunctionRegistry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	tool, ok := fr.Get(name)
	if !ok {
		return ToolResult{}, &FunctionNotFoundError{ToolName: name}
	}
	if args == nil {
		args = map[string]any{}
	}
	return tool.Execute(ctx, args)
}

// GetAllRegistered returns all registered tool names, sorted.
func (fr *FunctionRegistry) GetAllRegistered() []string {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	names := make([]string, 0, len(fr.tools))
	for name := range fr.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the specs of every registered tool, sorted by name.
func (fr *FunctionRegistry) List() []ToolSpec {
	names := fr.GetAllRegistered()

	fr.mu.RLock()
	defer fr.mu.RUnlock()

	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		if tool, ok := fr.tools[name]; ok {
			specs = append(specs, tool.Spec())
		}
	}
	return specs
}

// ValidateTools returns the names in expected that have no registered tool.
func (fr *FunctionRegistry) ValidateTools(expected []string) []string {
	fr.mu.RLock()
	defer fr.mu.RUnlock()

	missing := make([]string, 0)
	for _, name := range expected {
		if _, ok := fr.tools[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// ValidateAllTools returns a MissingFunctionsError if any expected tool is missing
func (fr *FunctionRegistry) ValidateAllTools(expected []string) error {
	missing := fr.ValidateTools(expected)
	if len(missing) > 0 {
		return &MissingFunctionsError{MissingTools: missing}
	}
	return nil
}

// FunctionNotFoundError is returned when no tool is registered under a name
type FunctionNotFoundError struct {
	ToolName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function not found for tool: %s", e.ToolName)
}

// Is lets errors.Is(err, ErrToolNotFound) match.
func (e *FunctionNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// ToolDisabledError is returned by a temporarily disabled tool.
type ToolDisabledError struct {
	ToolName string
	Reason   string
}

func (e *ToolDisabledError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tool '%s' is temporarily disabled", e.ToolName)
	}
	return fmt.Sprintf("tool '%s' is temporarily disabled (reason: %s)", e.ToolName, e.Reason)
}

// MissingFunctionsError is returned when tools are missing their functions
type MissingFunctionsError struct {
	MissingTools []string
}

func (e *MissingFunctionsError) Error() string {
	return fmt.Sprintf("missing functions for tools: %v", e.MissingTools)
}
