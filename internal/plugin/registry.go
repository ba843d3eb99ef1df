package plugin

import (
	"fmt"
	"log/slog"
)

// Registry maps layout type names to plugin factories for a single
// application instance.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates and initializes an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a layout type name. Registering the same
// type twice is a wiring bug, so it panics.
func (r *Registry) Register(layoutType string, f Factory) {
	if _, exists := r.factories[layoutType]; exists {
		panic(fmt.Sprintf("plugin: layout type '%s' already registered", layoutType))
	}
	slog.Debug("Registering layout plugin.", "type", layoutType)
	r.factories[layoutType] = f
}

// Lookup returns the factory registered under a layout type name.
func (r *Registry) Lookup(layoutType string) (Factory, bool) {
	f, ok := r.factories[layoutType]
	return f, ok
}
