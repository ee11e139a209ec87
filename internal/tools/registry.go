package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tmc/langchaingo/llms"
)

// Registry maps tool names to implementations. It is explicitly owned
// and constructor-injected into each executor; there is no ambient
// global registry.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own name, replacing any previous entry.
// Returns the registry for chaining.
func (r *Registry) Register(t Tool) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
	return r
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Lookup returns the tool registered under name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ValidateNames checks that every named tool is registered, failing
// with an error that lists the available tools.
func (r *Registry) ValidateNames(names []string) error {
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return fmt.Errorf("tool %q not registered, available tools: %v", name, r.Names())
		}
	}
	return nil
}

// Definitions returns the binding descriptors for the named tools.
// Unknown names are skipped; call ValidateNames first to reject them.
func (r *Registry) Definitions(names []string) []llms.Tool {
	defs := make([]llms.Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.Lookup(name)
		if !ok {
			continue
		}
		def := t.Definition()
		defs = append(defs, llms.Tool{Type: "function", Function: &def})
	}
	return defs
}
