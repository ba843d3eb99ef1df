// Package unit implements the unit layout: an inventory-oriented tree
// tagging entities with model, serial and free-form tag data. It declines
// the automatic merge and parses its attributes itself, exercising the
// custom-typed key path of the engine.
package unit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/hclconf"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/plugin"
	"github.com/vk/layoutgrid/internal/value"
)

// Type is the layout type this plugin registers under.
const Type = "unit"

// Module implements the plugin.Module interface for this package.
type Module struct{}

// Register registers the plugin factory with the engine.
func (m *Module) Register(r *plugin.Registry) {
	r.Register(Type, New)
}

// New builds a fresh plugin instance.
func New() plugin.Plugin {
	return &Unit{}
}

// TagSet is the custom payload stored under the "tags" key.
type TagSet struct {
	Tags []string
}

func dumpTags(v any) string {
	ts, ok := v.(*TagSet)
	if !ok {
		return "(not a tag set)"
	}
	sorted := append([]string(nil), ts.Tags...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Unit keeps its own attribute parsing in EntityParsing because the tags
// key is custom-typed and outside what the automatic merge can express.
type Unit struct{}

// Spec implements plugin.Plugin.
func (u *Unit) Spec() *plugin.Spec {
	return &plugin.Spec{
		StructKind:  layout.KindTree,
		EntityTypes: []string{"enclosure", "node"},
		Keys: []plugin.KeySpec{
			{Key: "Model", Type: keydef.TypeString},
			{Key: "Serial", Type: keydef.TypeString},
			{Key: "Slots", Type: keydef.TypeLong},
			{Key: "Tags", Type: keydef.TypeCustom, CustomDump: dumpTags},
		},
		AutoMerge: false,
	}
}

// ConfDone implements plugin.Plugin.
func (u *Unit) ConfDone(entities *entity.Store, l *layout.Layout, conf *hclconf.LayoutConfig) error {
	return nil
}

// EntityParsing implements plugin.Plugin. It consumes the attributes the
// engine handed over, rejecting unknown ones so that typos in unit files
// surface during the load.
func (u *Unit) EntityParsing(entities *entity.Store, e *entity.Entity, attrs map[string]cty.Value, l *layout.Layout) error {
	for name, cv := range attrs {
		lower := strings.ToLower(name)
		norm := keydef.Normalize(Type, lower)
		switch lower {
		case "model", "serial":
			v, err := value.FromCty(keydef.TypeString, cv)
			if err != nil {
				return fmt.Errorf("unit: entity '%s': %s: %w", e.Name, name, err)
			}
			entities.SetData(e, norm, v)
		case "slots":
			v, err := value.FromCty(keydef.TypeLong, cv)
			if err != nil {
				return fmt.Errorf("unit: entity '%s': slots: %w", e.Name, err)
			}
			entities.SetData(e, norm, v)
		case "tags":
			if !cv.CanIterateElements() {
				return fmt.Errorf("unit: entity '%s': tags must be a list", e.Name)
			}
			ts := &TagSet{}
			for it := cv.ElementIterator(); it.Next(); {
				_, ev := it.Element()
				if ev.Type() != cty.String {
					return fmt.Errorf("unit: entity '%s': tags must be strings", e.Name)
				}
				ts.Tags = append(ts.Tags, ev.AsString())
			}
			entities.SetData(e, norm, value.NewCustom(ts))
		default:
			return fmt.Errorf("unit: entity '%s': unknown attribute '%s'", e.Name, name)
		}
	}
	return nil
}
