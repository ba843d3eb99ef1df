package manager

import (
	"fmt"
	"strings"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/hostlist"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/tree"
	"github.com/vk/layoutgrid/internal/value"
)

// GetValues reads one key for the named entities. Pure lookups take the
// read side of the manager lock only.
func (m *Manager) GetValues(layoutType string, names []string, key string) ([]*value.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out, _, err := m.api(ModeGet, layoutType, key, names, nil, DirectionNone, nil)
	return out, err
}

// GetValuesSave is GetValues with the SAVE direction: it additionally
// returns the resolved entity handles so chained calls can skip the
// name-to-entity lookups.
func (m *Manager) GetValuesSave(layoutType string, names []string, key string) ([]*value.Value, []*entity.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.api(ModeGet, layoutType, key, names, nil, DirectionSave, nil)
}

// SetValues sets or accumulates (per op, OperationSet or OperationSum) a
// value on the named entities, without propagation.
func (m *Manager) SetValues(layoutType string, names []string, key string, op int, v *value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, err := m.api(ModeSet, layoutType, key, names, nil, op|DirectionNone, v)
	return err
}

// SetValuesEntities is SetValues over pre-resolved entity handles.
func (m *Manager) SetValuesEntities(layoutType string, handles []*entity.Entity, key string, op int, v *value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, err := m.api(ModeSet, layoutType, key, nil, handles, op|DirectionNone, v)
	return err
}

// UpdateValueFrom re-resolves a key on the named entities from the given
// direction with the given consolidation, discarding the resolved values.
func (m *Manager) UpdateValueFrom(layoutType string, names []string, key string, direction, consolidation int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, err := m.api(ModeGet, layoutType, key, names, nil, direction|consolidation, nil)
	return err
}

// GetUpdatedValue re-resolves a key on the named entities from the given
// direction with the given consolidation and returns the resulting values.
func (m *Manager) GetUpdatedValue(layoutType string, names []string, key string, direction, consolidation int) ([]*value.Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, _, err := m.api(ModeGet, layoutType, key, names, nil, direction|consolidation, nil)
	return out, err
}

// PropagateValue applies a value to the named entities (per op) and
// propagates it through the structure in the given direction with the given
// consolidation.
func (m *Manager) PropagateValue(layoutType string, names []string, key string, op, direction, consolidation int, v *value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, _, err := m.api(ModeSet, layoutType, key, names, nil, op|direction|consolidation, v)
	return err
}

// GetValuesMulti reads several keys of one layout for a single entity.
func (m *Manager) GetValuesMulti(layoutType, name string, keys []string) ([]*value.Value, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*value.Value, 0, len(keys))
	for _, key := range keys {
		vals, _, err := m.api(ModeGet, layoutType, key, []string{name}, nil, DirectionNone, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, vals[0])
	}
	return out, nil
}

// ListEntities returns the names of the entities participating in a layout,
// optionally filtered by entity type and/or by holding a given key.
// Entities are listed in tree preorder, each at most once.
func (m *Manager) ListEntities(layoutType, entityType, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, fmt.Errorf("layouts: manager not initialized")
	}
	l, ok := m.layouts[layoutType]
	if !ok {
		return nil, fmt.Errorf("layouts: unknown layout type '%s'", layoutType)
	}
	var norm string
	if key != "" {
		def, ok := m.keydefs.Resolve(layoutType, key)
		if !ok {
			return nil, fmt.Errorf("layouts: unknown key '%s' for layout '%s'", key, layoutType)
		}
		norm = def.Key
	}
	if l.Kind != layout.KindTree {
		return nil, fmt.Errorf("layouts: layout '%s' has no entity structure to list", layoutType)
	}

	var names []string
	seen := make(map[string]bool)
	l.Tree.Walk(l.Tree.Root(), func(id tree.NodeID) bool {
		e, ok := l.Tree.Payload(id).(*entity.Entity)
		if !ok || seen[e.Name] {
			return true
		}
		seen[e.Name] = true
		if entityType != "" && e.Type != entityType {
			return true
		}
		if norm != "" && !e.HasData(norm) {
			return true
		}
		names = append(names, e.Name)
		return true
	})
	return names, nil
}

// AdminUpdate applies an administrative "key[+]=value[#...]" update string
// to every entity matched by a hostlist expression. A trailing '+' on a key
// selects SUM instead of SET for that assignment. All assignments are
// validated before any is applied and the whole batch runs under one lock
// acquisition.
func (m *Manager) AdminUpdate(layoutType, hostExpr, updates string) error {
	names, err := hostlist.Expand(hostExpr)
	if err != nil {
		return fmt.Errorf("layouts: bad host expression %q: %w", hostExpr, err)
	}
	if len(names) == 0 {
		return fmt.Errorf("layouts: empty host expression")
	}

	type assignment struct {
		key string
		op  int
		val *value.Value
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return fmt.Errorf("layouts: manager not initialized")
	}

	var assigns []assignment
	for _, field := range strings.Split(updates, "#") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			return fmt.Errorf("layouts: malformed assignment %q", field)
		}
		k = strings.TrimSpace(k)
		op := OperationSet
		if strings.HasSuffix(k, "+") {
			op = OperationSum
			k = strings.TrimSuffix(k, "+")
		}
		def, ok := m.keydefs.Resolve(layoutType, k)
		if !ok {
			return fmt.Errorf("layouts: unknown key '%s' for layout '%s'", k, layoutType)
		}
		if op == OperationSum && !def.Type.Numeric() {
			return fmt.Errorf("layouts: key '%s' (%s) does not support numeric consolidation",
				def.Key, def.Type)
		}
		val, err := value.Parse(def.Type, strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("layouts: assignment %q: %w", field, err)
		}
		assigns = append(assigns, assignment{key: k, op: op, val: val})
	}
	if len(assigns) == 0 {
		return fmt.Errorf("layouts: no assignments in update string")
	}

	for _, a := range assigns {
		if _, _, err := m.api(ModeSet, layoutType, a.key, names, nil,
			a.op|DirectionNone, a.val); err != nil {
			return err
		}
	}
	return nil
}

// ResolveEntities maps names to entity handles in one call, for callers
// chaining several operations over the same entity set.
func (m *Manager) ResolveEntities(names []string) ([]*entity.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, fmt.Errorf("layouts: manager not initialized")
	}
	out := make([]*entity.Entity, 0, len(names))
	for _, name := range names {
		e, ok := m.entities.Get(name)
		if !ok {
			return nil, fmt.Errorf("layouts: entity '%s' not found", name)
		}
		out = append(out, e)
	}
	return out, nil
}
