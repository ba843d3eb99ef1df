// Package power implements the power layout: a tree of the electrical
// distribution (center, island, rack, node) carrying wattage keys that the
// consolidation engine can aggregate upward or spread downward.
package power

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/hclconf"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/plugin"
)

// Type is the layout type this plugin registers under.
const Type = "power"

// Module implements the plugin.Module interface for this package.
type Module struct{}

// Register registers the plugin factory with the engine.
func (m *Module) Register(r *plugin.Registry) {
	r.Register(Type, New)
}

// New builds a fresh plugin instance.
func New() plugin.Plugin {
	return &Power{}
}

// Power relies entirely on the automatic option merge: every key it
// declares is a simple numeric type.
type Power struct{}

// Spec implements plugin.Plugin.
func (p *Power) Spec() *plugin.Spec {
	return &plugin.Spec{
		StructKind:  layout.KindTree,
		EntityTypes: []string{"center", "island", "rack", "node"},
		Keys: []plugin.KeySpec{
			{Key: "MaxWatts", Type: keydef.TypeUint32},
			{Key: "CurrentWatts", Type: keydef.TypeUint32},
			{Key: "IdleWatts", Type: keydef.TypeUint32},
			{Key: "LastUpdate", Type: keydef.TypeLong},
		},
		AutoMerge: true,
	}
}

// ConfDone implements plugin.Plugin. Nothing beyond the automatic merge is
// needed once stage 1 completed.
func (p *Power) ConfDone(entities *entity.Store, l *layout.Layout, conf *hclconf.LayoutConfig) error {
	return nil
}

// EntityParsing implements plugin.Plugin.
func (p *Power) EntityParsing(entities *entity.Store, e *entity.Entity, attrs map[string]cty.Value, l *layout.Layout) error {
	return nil
}
