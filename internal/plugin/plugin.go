// Package plugin defines the contract between the layouts manager and the
// layout plugins, plus the registry of available plugin implementations.
// Plugins are selected by configuration at startup; there is no runtime
// symbol resolution.
package plugin

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/hclconf"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
)

// KeySpec declares one attribute key of a plugin's schema. CustomDestroy
// and CustomDump are only meaningful for keydef.TypeCustom keys.
type KeySpec struct {
	Key           string
	Type          keydef.Type
	CustomDestroy func(any)
	CustomDump    func(any) string
}

// Spec is the specification record a plugin exposes to the manager.
type Spec struct {
	// StructKind selects the relational structure built for the layout.
	StructKind layout.StructKind
	// EntityTypes is the set of entity type tags this layout accepts.
	EntityTypes []string
	// Keys is the attribute schema registered into the key registry.
	Keys []KeySpec
	// AutoMerge asks the manager to map entity config attributes onto the
	// key schema automatically during stage 1.
	AutoMerge bool
}

// Plugin is the capability interface each layout implementation provides.
//
// ConfDone runs once per load after stage 1 of this layout completed;
// EntityParsing runs for every parsed entity record with the attributes the
// automatic merge did not consume, and may store values on the entity
// through the shared store. Either may be a no-op returning nil.
type Plugin interface {
	Spec() *Spec
	ConfDone(entities *entity.Store, l *layout.Layout, conf *hclconf.LayoutConfig) error
	EntityParsing(entities *entity.Store, e *entity.Entity, attrs map[string]cty.Value, l *layout.Layout) error
}

// Factory builds a fresh plugin instance for one configured layout.
type Factory func() Plugin

// Module is implemented by packages bundling plugin factories, mirroring
// how core plugins self-describe to the application.
type Module interface {
	Register(r *Registry)
}
