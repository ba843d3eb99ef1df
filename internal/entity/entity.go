// Package entity implements the named objects tracked by layouts and the
// hash-indexed store owning them. An entity carries a generic attribute map
// whose keys must have been declared in the shared key registry, plus one
// tree-node back-reference per layout it participates in.
package entity

import (
	"fmt"

	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/tree"
	"github.com/vk/layoutgrid/internal/value"
)

// NodeRef records the position of an entity inside one layout's tree.
type NodeRef struct {
	LayoutType string
	Node       tree.NodeID
}

// Entity is a named, typed object (typically a compute node). It is owned
// exclusively by the Store; tree nodes and callers hold non-owning
// references.
type Entity struct {
	Name string
	Type string
	// Ptr is an opaque back-pointer to the external domain record backing
	// this entity, e.g. the inventory node.
	Ptr any

	refs []NodeRef
	data map[string]*value.Value
}

func newEntity(name, typ string) *Entity {
	return &Entity{
		Name: name,
		Type: typ,
		data: make(map[string]*value.Value),
	}
}

// AddNodeRef registers the entity's tree node in the given layout.
func (e *Entity) AddNodeRef(layoutType string, id tree.NodeID) {
	e.refs = append(e.refs, NodeRef{LayoutType: layoutType, Node: id})
}

// NodeRef returns the entity's first tree node in the given layout.
func (e *Entity) NodeRef(layoutType string) (tree.NodeID, bool) {
	for _, r := range e.refs {
		if r.LayoutType == layoutType {
			return r.Node, true
		}
	}
	return tree.None, false
}

// NodeRefs returns all tree-node back-references, in registration order.
func (e *Entity) NodeRefs() []NodeRef {
	return e.refs
}

// ClearNodeRefs drops every tree-node back-reference. Used at teardown when
// the owning trees are discarded.
func (e *Entity) ClearNodeRefs() {
	e.refs = nil
}

// HasData reports whether the entity has a value stored under the
// normalized key.
func (e *Entity) HasData(norm string) bool {
	_, ok := e.data[norm]
	return ok
}

// Keys returns the normalized keys currently stored on the entity.
func (e *Entity) Keys() []string {
	out := make([]string, 0, len(e.data))
	for k := range e.data {
		out = append(out, k)
	}
	return out
}

// Store is the hash-indexed collection of all entities known to the
// layouts manager. It also enforces, through the key registry, that only
// declared keys are ever stored on an entity.
type Store struct {
	reg      *keydef.Registry
	entities map[string]*Entity
}

// NewStore returns an empty store validating keys against reg.
func NewStore(reg *keydef.Registry) *Store {
	return &Store{
		reg:      reg,
		entities: make(map[string]*Entity),
	}
}

// Get returns the entity registered under name.
func (s *Store) Get(name string) (*Entity, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// Len returns the number of entities in the store.
func (s *Store) Len() int {
	return len(s.entities)
}

// Range calls fn for every entity until fn returns false. Iteration order
// is unspecified.
func (s *Store) Range(fn func(*Entity) bool) {
	for _, e := range s.entities {
		if !fn(e) {
			return
		}
	}
}

// Add registers a pre-built entity, typically an inventory-backed node
// created before any layout references it. The name must be free.
func (s *Store) Add(name, typ string, ptr any) (*Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("entity: empty name")
	}
	if _, exists := s.entities[name]; exists {
		return nil, fmt.Errorf("entity: '%s' already exists", name)
	}
	e := newEntity(name, typ)
	e.Ptr = ptr
	s.entities[name] = e
	return e, nil
}

// CreateOrGet implements the stage-1 create-or-update contract. A new
// entity requires a non-empty type present in allowedTypes; a repeat
// reference with a declared type must match the existing entity's type.
// Both violations are reported as errors so the caller can skip the record
// without failing the whole load.
func (s *Store) CreateOrGet(name, typ string, allowedTypes []string) (*Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("entity: empty name")
	}
	if e, ok := s.entities[name]; ok {
		if typ != "" {
			if !typeAllowed(typ, allowedTypes) {
				return nil, fmt.Errorf("entity: '%s' type (%s) is invalid", name, typ)
			}
			if typ != e.Type {
				return nil, fmt.Errorf(
					"entity: '%s' type (%s) differs from already registered type (%s)",
					name, typ, e.Type)
			}
		}
		return e, nil
	}
	if typ == "" {
		return nil, fmt.Errorf("entity: '%s' does not exist and no type was specified", name)
	}
	if !typeAllowed(typ, allowedTypes) {
		return nil, fmt.Errorf("entity: '%s' type (%s) is invalid", name, typ)
	}
	e := newEntity(name, typ)
	s.entities[name] = e
	return e, nil
}

// SetData associates a value with (entity, normalized key), replacing and
// destroying any previous value. A key missing from the registry is an
// inconsistency in the plugin declarations, so it panics.
func (s *Store) SetData(e *Entity, norm string, v *value.Value) {
	def, ok := s.reg.Lookup(norm)
	if !ok {
		panic(fmt.Sprintf("entity: key '%s' was never declared", norm))
	}
	if old, exists := e.data[norm]; exists && old != v {
		s.destroy(def, old)
	}
	e.data[norm] = v
}

// GetData returns the stored value slot for (entity, normalized key). The
// handle is the stored value itself, so callers mutate in place through it.
func (s *Store) GetData(e *Entity, norm string) (*value.Value, bool) {
	v, ok := e.data[norm]
	return v, ok
}

// DeleteData removes and destroys the value stored under the normalized
// key, if any.
func (s *Store) DeleteData(e *Entity, norm string) {
	v, ok := e.data[norm]
	if !ok {
		return
	}
	if def, ok := s.reg.Lookup(norm); ok {
		s.destroy(def, v)
	}
	delete(e.data, norm)
}

func (s *Store) destroy(def *keydef.KeyDef, v *value.Value) {
	if def.Type == keydef.TypeCustom && def.CustomDestroy != nil {
		def.CustomDestroy(v.Custom())
	}
}

func typeAllowed(typ string, allowed []string) bool {
	for _, a := range allowed {
		if a == typ {
			return true
		}
	}
	return false
}
