// Package manager implements the layouts manager: the orchestrator owning
// the entity store, the key registry and the per-type layout records, the
// two-stage configuration load and the public query/update API with its
// consolidation engine.
package manager

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/hclconf"
	"github.com/vk/layoutgrid/internal/hostlist"
	"github.com/vk/layoutgrid/internal/inventory"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/plugin"
	"github.com/vk/layoutgrid/internal/tree"
	"github.com/vk/layoutgrid/internal/value"
)

// Reserved identifiers of the implicit base layout seeded from the node
// inventory.
const (
	BaseLayoutType = "base"
	baseLayoutName = "cluster"
	baseEntityType = "node"
)

// enclosedKey is the manager-reserved key stashing raw relation strings
// between stage 1 and stage 2.
const enclosedKey = "enclosed"

// Config carries the collaborators and settings the manager needs.
type Config struct {
	// Layouts lists the layouts to activate, comma separated, each as
	// "type" or "type/name". Example: "power/default,unit".
	Layouts string
	// ConfDir is the directory holding one "<type>.hcl" file per layout.
	ConfDir string
	// Inventory supplies the cluster node records seeding the base layout.
	Inventory inventory.Provider
	// Plugins resolves layout types to plugin implementations.
	Plugins *plugin.Registry
	// Logger defaults to slog.Default when nil.
	Logger *slog.Logger
}

// layoutSpec is one entry parsed from the Layouts setting.
type layoutSpec struct {
	whole string
	typ   string
	name  string
}

// loadedPlugin pairs a plugin instance with the layout record it owns.
type loadedPlugin struct {
	name   string
	impl   plugin.Plugin
	layout *layout.Layout
}

// Manager is the layouts subsystem. One coarse lock serializes every
// mutation; lookups that touch neither the trees nor shared attribute
// storage take the read side only.
type Manager struct {
	mu  sync.RWMutex
	log *slog.Logger

	confDir string
	inv     inventory.Provider
	preg    *plugin.Registry
	specs   []layoutSpec

	initialized bool
	plugins     []*loadedPlugin
	layouts     map[string]*layout.Layout
	keydefs     *keydef.Registry
	entities    *entity.Store
}

// New builds an uninitialized manager from its configuration.
func New(cfg Config) *Manager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		log:     log,
		confDir: cfg.ConfDir,
		inv:     cfg.Inventory,
		preg:    cfg.Plugins,
		specs:   parseLayoutsSetting(cfg.Layouts),
		layouts: make(map[string]*layout.Layout),
	}
}

// parseLayoutsSetting splits the "type/name,type" list; a missing instance
// name defaults to "default".
func parseLayoutsSetting(setting string) []layoutSpec {
	var specs []layoutSpec
	for _, item := range strings.Split(setting, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		spec := layoutSpec{whole: item, name: "default"}
		if typ, name, ok := strings.Cut(item, "/"); ok {
			spec.typ = strings.TrimSpace(typ)
			spec.name = strings.TrimSpace(name)
		} else {
			spec.typ = item
		}
		specs = append(specs, spec)
	}
	return specs
}

// Init resolves the configured layout plugins and populates the key
// registry from their specifications. It is idempotent: a second call while
// already initialized is a no-op success. No entities exist after Init;
// they are created by LoadConfig.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	if m.preg == nil {
		return fmt.Errorf("layouts: no plugin registry configured")
	}

	if len(m.specs) == 0 {
		m.log.Info("layouts: no layout to initialize")
	} else {
		m.log.Info("layouts: initializing layouts", "count", len(m.specs))
	}

	m.keydefs = keydef.NewRegistry()
	m.entities = entity.NewStore(m.keydefs)
	m.layouts = make(map[string]*layout.Layout)
	m.plugins = nil

	for _, spec := range m.specs {
		factory, ok := m.preg.Lookup(spec.typ)
		if !ok {
			m.log.Error("layouts: error loading layout", "layout", spec.whole)
			m.resetLocked()
			return fmt.Errorf("layouts: only %d/%d layouts loaded, aborting",
				len(m.plugins), len(m.specs))
		}
		if _, dup := m.layouts[spec.typ]; dup {
			m.resetLocked()
			return fmt.Errorf("layouts: layout type '%s' configured twice", spec.typ)
		}
		impl := factory()
		pspec := impl.Spec()
		if pspec == nil {
			m.resetLocked()
			return fmt.Errorf("layouts: plugin spec must be valid (%s plugin)", spec.whole)
		}
		l := layout.New(spec.name, spec.typ, 0, pspec.StructKind)
		m.layouts[spec.typ] = l
		m.registerKeys(spec.typ, pspec)
		m.plugins = append(m.plugins, &loadedPlugin{
			name:   spec.whole,
			impl:   impl,
			layout: l,
		})
		m.log.Debug("layouts: layout initialized", "layout", spec.whole)
	}

	m.initialized = true
	if len(m.plugins) > 0 {
		m.log.Info("layouts: init done", "count", len(m.plugins))
	}
	return nil
}

// registerKeys loads a plugin's key schema into the registry, then the keys
// the manager owns directly for the layout's structure kind.
func (m *Manager) registerKeys(layoutType string, spec *plugin.Spec) {
	for _, k := range spec.Keys {
		m.keydefs.Register(layoutType, k.Key, k.Type, k.CustomDestroy, k.CustomDump)
	}
	switch spec.StructKind {
	case layout.KindTree:
		m.keydefs.RegisterManaged(layoutType, enclosedKey, keydef.TypeString)
	}
}

// Fini tears the whole subsystem down, returning the manager to the
// uninitialized state.
func (m *Manager) Fini() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	m.log.Info("layouts: all layouts are now unloaded")
}

func (m *Manager) resetLocked() {
	m.detachEntitiesLocked()
	m.initialized = false
	m.plugins = nil
	m.layouts = make(map[string]*layout.Layout)
	m.keydefs = nil
	m.entities = nil
}

// detachEntitiesLocked drops every entity's tree back-references so that
// handles still held by callers do not point into discarded trees.
func (m *Manager) detachEntitiesLocked() {
	if m.entities == nil {
		return
	}
	m.entities.Range(func(e *entity.Entity) bool {
		e.ClearNodeRefs()
		return true
	})
}

// LoadConfig performs the two-stage configuration load: the base layout is
// seeded from the node inventory, then each layout's file is parsed to
// create or update entities (stage 1), then the relation declarations are
// resolved into the layout trees (stage 2). A second call after a
// successful load is a no-op; any failure tears the partial state down.
func (m *Manager) LoadConfig() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return fmt.Errorf("layouts: manager not initialized")
	}
	if m.entities.Len() > 0 {
		return nil
	}

	m.log.Info("layouts: loading entities/relations information")

	if err := m.loadBaseLayout(); err != nil {
		m.unloadLocked()
		return err
	}

	m.log.Debug("layouts: loading stage 1")
	for _, p := range m.plugins {
		m.log.Debug("layouts: reading config", "layout", p.name)
		if err := m.readConfig(p); err != nil {
			m.unloadLocked()
			return err
		}
	}

	m.log.Debug("layouts: loading stage 2")
	for _, p := range m.plugins {
		m.log.Debug("layouts: creating relations", "layout", p.name)
		if err := m.buildRelations(p); err != nil {
			m.unloadLocked()
			return err
		}
	}

	return nil
}

// unloadLocked drops everything LoadConfig built, keeping the initialized
// plugin set so that a corrected configuration can be reloaded.
func (m *Manager) unloadLocked() {
	m.detachEntitiesLocked()
	m.entities = entity.NewStore(m.keydefs)
	delete(m.layouts, BaseLayoutType)
	for _, p := range m.plugins {
		p.layout.Priority = 0
		if p.layout.Kind == layout.KindTree {
			p.layout.Tree = tree.New()
		}
	}
}

// loadBaseLayout creates the implicit base layout: a synthetic root with
// every inventory node as a direct child. This guarantees that every
// node name referenced by a plugin layout resolves to a node-backed entity.
func (m *Manager) loadBaseLayout() error {
	if m.inv == nil {
		return fmt.Errorf("layouts: no node inventory configured")
	}
	nodes, err := m.inv.Nodes()
	if err != nil {
		return fmt.Errorf("layouts: reading node inventory: %w", err)
	}

	base := layout.New(baseLayoutName, BaseLayoutType, 0, layout.KindTree)
	root, err := base.Tree.AddChild(tree.None, nil)
	if err != nil {
		return fmt.Errorf("layouts: unable to create base layout tree root: %w", err)
	}

	for i := range nodes {
		n := &nodes[i]
		e, err := m.entities.Add(n.Name, baseEntityType, n)
		if err != nil {
			return fmt.Errorf("layouts: unable to add entity of node '%s': %w", n.Name, err)
		}
		id, err := base.Tree.AddChild(root, e)
		if err != nil {
			return fmt.Errorf("layouts: unable to attach node '%s' to base layout: %w", n.Name, err)
		}
		e.AddNodeRef(BaseLayoutType, id)
		m.log.Debug("layouts: loading node", "node", n.Name)
	}
	m.log.Debug("layouts: nodes loaded", "count", m.entities.Len())

	m.layouts[BaseLayoutType] = base

	// The base layout is managed separately from the plugins, hence the +1.
	if len(m.layouts) != len(m.plugins)+1 {
		return fmt.Errorf("layouts: %d/%d layouts in table, aborting",
			len(m.layouts), len(m.plugins)+1)
	}
	return nil
}

// readConfig is stage 1 for one layout: parse its configuration file,
// create or update the declared entities, stash their relation strings and
// resolve the tree root. Individual bad entity records are skipped with a
// logged error; a missing root or the absence of any valid entity fails the
// layout.
func (m *Manager) readConfig(p *loadedPlugin) error {
	spec := p.impl.Spec()
	path := hclconf.Path(m.confDir, p.layout.Type)
	cfg, err := hclconf.LoadFile(path)
	if err != nil {
		return fmt.Errorf("layouts: reading configuration for '%s': %w", p.name, err)
	}
	m.log.Debug("layouts: configuration file loaded", "path", path)

	p.layout.Priority = cfg.Priority

	valid := 0
	for _, decl := range cfg.Entities {
		names, err := hostlist.Expand(decl.Name)
		if err != nil {
			m.log.Error("layouts: bad entity name, skipping",
				"layout", p.name, "entity", decl.Name, "error", err)
			continue
		}
		for _, name := range names {
			e, err := m.entities.CreateOrGet(name, decl.Type, spec.EntityTypes)
			if err != nil {
				m.log.Error("layouts: skipping entity", "layout", p.name, "error", err)
				continue
			}

			if p.layout.Kind == layout.KindTree && len(decl.Enclosed) > 0 {
				m.stashEnclosed(p.layout.Type, e, decl.Enclosed)
			}

			attrs := decl.Attrs
			if spec.AutoMerge {
				attrs = m.autoMerge(p.layout.Type, e, attrs)
			}
			if err := p.impl.EntityParsing(m.entities, e, attrs, p.layout); err != nil {
				m.log.Error("layouts: entity parsing failed, skipping",
					"layout", p.name, "entity", name, "error", err)
				continue
			}
			valid++
		}
	}
	if valid == 0 {
		return fmt.Errorf("layouts: no valid entity found for %s", p.name)
	}

	if err := m.attachRoot(p, cfg); err != nil {
		return err
	}

	if err := p.impl.ConfDone(m.entities, p.layout, cfg); err != nil {
		return fmt.Errorf("layouts: plugin %s has an error parsing its configuration: %w",
			p.name, err)
	}
	return nil
}

// attachRoot resolves the declared root entity and installs it as the sole
// root of the layout tree. A root is mandatory to walk the relational
// structure, so any failure here fails the whole load.
func (m *Manager) attachRoot(p *loadedPlugin, cfg *hclconf.LayoutConfig) error {
	if p.layout.Kind != layout.KindTree {
		return nil
	}
	rootName := strings.TrimSpace(cfg.Root)
	if rootName == "" {
		return fmt.Errorf("layouts: unable to construct the layout tree for %s, no root specified",
			p.name)
	}
	e, ok := m.entities.Get(rootName)
	if !ok {
		return fmt.Errorf("layouts: unable to find specified root entity '%s'", rootName)
	}
	id, err := p.layout.Tree.AddChild(tree.None, e)
	if err != nil {
		return fmt.Errorf("layouts: attaching root '%s': %w", rootName, err)
	}
	e.AddNodeRef(p.layout.Type, id)
	return nil
}

// stashEnclosed records raw relation declarations under the reserved
// manager key. Repeat declarations for the same entity concatenate.
func (m *Manager) stashEnclosed(layoutType string, e *entity.Entity, enclosed []string) {
	norm := keydef.NormalizeManaged(layoutType, enclosedKey)
	joined := strings.Join(enclosed, ",")
	if prev, ok := m.entities.GetData(e, norm); ok {
		joined = prev.String() + "," + joined
	}
	m.entities.SetData(e, norm, value.NewString(joined))
}

// autoMerge maps simple-typed entity attributes onto the plugin's declared
// key schema, returning the attributes it could not consume for the
// entity-parsing callback.
func (m *Manager) autoMerge(layoutType string, e *entity.Entity, attrs map[string]cty.Value) map[string]cty.Value {
	leftover := make(map[string]cty.Value)
	for name, cv := range attrs {
		def, ok := m.keydefs.Resolve(layoutType, name)
		if !ok || def.Type == keydef.TypeCustom {
			leftover[name] = cv
			continue
		}
		v, err := value.FromCty(def.Type, cv)
		if err != nil {
			m.log.Warn("layouts: cannot merge option", "entity", e.Name,
				"option", name, "error", err)
			leftover[name] = cv
			continue
		}
		if old, exists := m.entities.GetData(e, def.Key); exists {
			// in-place update keeps handles held by earlier references valid
			if err := old.CopyFrom(v); err != nil {
				m.log.Warn("layouts: cannot update option", "entity", e.Name,
					"option", name, "error", err)
			}
		} else {
			m.entities.SetData(e, def.Key, v)
		}
	}
	return leftover
}

// buildRelations is stage 2 for one layout: walk the tree from its root,
// expand each stashed relation string and append the resolved entities as
// children. Nodes appended during the walk are themselves visited, so
// nested relations resolve in a single pass. Unknown child names are logged
// and skipped.
func (m *Manager) buildRelations(p *loadedPlugin) error {
	if p.layout.Kind != layout.KindTree {
		return nil
	}
	t := p.layout.Tree
	root := t.Root()
	if root == tree.None {
		return fmt.Errorf("layouts: layout %s has no root to build relations from", p.name)
	}
	norm := keydef.NormalizeManaged(p.layout.Type, enclosedKey)

	t.Walk(root, func(id tree.NodeID) bool {
		e, ok := t.Payload(id).(*entity.Entity)
		if !ok {
			return true
		}
		slot, ok := m.entities.GetData(e, norm)
		if !ok {
			return true
		}
		raw := slot.String()
		m.entities.DeleteData(e, norm)

		names, err := hostlist.Expand(raw)
		if err != nil {
			m.log.Error("layouts: bad enclosed expression, ignoring",
				"layout", p.name, "entity", e.Name, "error", err)
			return true
		}
		for _, name := range names {
			child, ok := m.entities.Get(name)
			if !ok {
				m.log.Error("layouts: enclosed entity not found, ignoring",
					"layout", p.name, "entity", e.Name, "enclosed", name)
				continue
			}
			cid, err := t.AddChild(id, child)
			if err != nil {
				m.log.Error("layouts: cannot append enclosed entity, ignoring",
					"layout", p.name, "enclosed", name, "error", err)
				continue
			}
			child.AddNodeRef(p.layout.Type, cid)
		}
		return true
	})
	return nil
}

// GetLayout returns the layout of a given type, or nil when not loaded.
func (m *Manager) GetLayout(layoutType string) *layout.Layout {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.layouts[layoutType]
}

// ResolveKey normalizes a (layout type, key name) pair and returns its
// registered definition.
func (m *Manager) ResolveKey(layoutType, key string) (*keydef.KeyDef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.keydefs == nil {
		return nil, false
	}
	return m.keydefs.Resolve(layoutType, key)
}

// GetEntity returns the entity of a given name, or nil when unknown.
func (m *Manager) GetEntity(name string) *entity.Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.entities == nil {
		return nil
	}
	e, _ := m.entities.Get(name)
	return e
}
