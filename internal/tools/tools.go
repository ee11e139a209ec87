package tools

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// Tool is one invokable capability. Implementations are caller-supplied;
// the executor treats results as opaque and stringifies them before
// storing them in a thread.
type Tool interface {
	// Name returns the tool's registry key.
	Name() string

	// Description explains the tool to the LLM.
	Description() string

	// Definition returns the function schema used when binding the tool
	// to a model.
	Definition() llms.FunctionDefinition

	// Call invokes the tool with the given arguments.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// Func adapts a plain function into a Tool.
type Func struct {
	name        string
	description string
	parameters  any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunc wraps fn as a Tool with the given name and description.
func NewFunc(name, description string, fn func(ctx context.Context, args map[string]any) (any, error)) *Func {
	return &Func{name: name, description: description, fn: fn}
}

// WithParameters attaches a JSON-schema parameter description used when
// binding the tool to a model.
func (f *Func) WithParameters(parameters any) *Func {
	f.parameters = parameters
	return f
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }

func (f *Func) Definition() llms.FunctionDefinition {
	return llms.FunctionDefinition{
		Name:        f.name,
		Description: f.description,
		Parameters:  f.parameters,
	}
}

func (f *Func) Call(ctx context.Context, args map[string]any) (any, error) {
	return f.fn(ctx, args)
}
