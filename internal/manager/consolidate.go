package manager

import (
	"fmt"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/keydef"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/tree"
	"github.com/vk/layoutgrid/internal/value"
)

// api is the single entry point behind every query/update wrapper. Targets
// come either as names or as pre-resolved handles; the descriptor is fully
// validated before any state is touched. For ModeGet the per-target values
// are returned as copies; for ModeSet, in is applied. The resolved handles
// are returned for the SAVE direction. Callers hold the manager lock.
func (m *Manager) api(mode int, layoutType, key string, names []string,
	handles []*entity.Entity, flags int, in *value.Value,
) ([]*value.Value, []*entity.Entity, error) {
	if !m.initialized {
		return nil, nil, fmt.Errorf("layouts: manager not initialized")
	}
	l, ok := m.layouts[layoutType]
	if !ok {
		return nil, nil, fmt.Errorf("layouts: unknown layout type '%s'", layoutType)
	}
	def, ok := m.keydefs.Resolve(layoutType, key)
	if !ok {
		return nil, nil, fmt.Errorf("layouts: unknown key '%s' for layout '%s'", key, layoutType)
	}
	if err := validateFlags(mode, l, def, flags); err != nil {
		return nil, nil, err
	}

	targets := handles
	if targets == nil {
		targets = make([]*entity.Entity, 0, len(names))
		for _, name := range names {
			e, ok := m.entities.Get(name)
			if !ok {
				return nil, nil, fmt.Errorf("layouts: entity '%s' not found", name)
			}
			targets = append(targets, e)
		}
	}
	if len(targets) == 0 {
		return nil, nil, fmt.Errorf("layouts: no target entities")
	}

	dir := flags & directionMask
	if dir == DirectionUp || dir == DirectionDown {
		// every target must sit in the layout tree before anything mutates
		for _, e := range targets {
			if _, ok := e.NodeRef(l.Type); !ok {
				return nil, nil, fmt.Errorf("layouts: entity '%s' is not part of layout '%s'",
					e.Name, l.Type)
			}
		}
	}

	var out []*value.Value
	var err error
	switch mode {
	case ModeGet:
		out, err = m.getValues(l, def, targets, flags)
	case ModeSet:
		if in == nil {
			return nil, nil, fmt.Errorf("layouts: SET requires a value")
		}
		if in.Type() != def.Type {
			return nil, nil, fmt.Errorf("layouts: value type %s does not match key '%s' (%s)",
				in.Type(), def.Key, def.Type)
		}
		err = m.setValues(l, def, targets, flags, in)
	}
	if err != nil {
		return nil, nil, err
	}

	var saved []*entity.Entity
	if dir == DirectionSave {
		saved = targets
	}
	return out, saved, nil
}

// getValues implements the GET side of the engine. With direction UP or
// DOWN, target values are first re-resolved across the tree using the
// consolidation operator, then read out. UP+SUM/MEAN and DOWN+SET are
// documented unsupported combinations: they log an error and leave every
// value untouched.
func (m *Manager) getValues(l *layout.Layout, def *keydef.KeyDef,
	targets []*entity.Entity, flags int,
) ([]*value.Value, error) {
	dir := flags & directionMask
	cons := flags & consolidationMask

	switch dir {
	case DirectionUp:
		if cons == ConsolidationSet {
			for _, e := range targets {
				if err := m.pullFromParent(l, def, e); err != nil {
					return nil, err
				}
			}
		} else {
			m.log.Error("layouts: GET with direction UP supports only SET consolidation",
				"layout", l.Type, "key", def.Key)
		}
	case DirectionDown:
		if cons == ConsolidationSum || cons == ConsolidationMean {
			for _, e := range targets {
				if err := m.gatherFromChildren(l, def, e, cons); err != nil {
					return nil, err
				}
			}
		} else {
			m.log.Error("layouts: GET with direction DOWN supports only SUM/MEAN consolidation",
				"layout", l.Type, "key", def.Key)
		}
	}

	out := make([]*value.Value, len(targets))
	for i, e := range targets {
		if slot, ok := m.entities.GetData(e, def.Key); ok {
			out[i] = slot.Clone()
			continue
		}
		if dir == DirectionNone || dir == DirectionSave {
			return nil, fmt.Errorf("layouts: key '%s' not set on entity '%s'", def.Key, e.Name)
		}
		// unsupported-branch no-op: report a zero without storing one
		zero, err := value.New(def.Type)
		if err != nil {
			return nil, err
		}
		out[i] = zero
	}
	return out, nil
}

// pullFromParent copies the parent's value into the target. The parent is
// resolved first: an ancestor without a value inherits from its own parent,
// recursively, and the root keeps whatever it has (recursion base case).
func (m *Manager) pullFromParent(l *layout.Layout, def *keydef.KeyDef, e *entity.Entity) error {
	node, _ := e.NodeRef(l.Type)
	parent := l.Tree.Parent(node)
	if parent == tree.None || !entityNode(l, parent) {
		// target is the root (or sits under a synthetic root): keep its
		// own value, allocating if unset
		_, err := m.ensureSlot(e, def)
		return err
	}
	pv, err := m.resolveUp(l, def, parent)
	if err != nil {
		return err
	}
	slot, err := m.ensureSlot(e, def)
	if err != nil {
		return err
	}
	return slot.CopyFrom(pv)
}

// resolveUp returns the node's value slot, materializing it from the
// ancestor chain when absent. Resolution is recursive, not iterative: the
// ancestor must be resolved before the descendant can copy it.
func (m *Manager) resolveUp(l *layout.Layout, def *keydef.KeyDef, node tree.NodeID) (*value.Value, error) {
	e := l.Tree.Payload(node).(*entity.Entity)
	if slot, ok := m.entities.GetData(e, def.Key); ok {
		return slot, nil
	}
	slot, err := m.ensureSlot(e, def)
	if err != nil {
		return nil, err
	}
	parent := l.Tree.Parent(node)
	if parent == tree.None || !entityNode(l, parent) {
		return slot, nil
	}
	pv, err := m.resolveUp(l, def, parent)
	if err != nil {
		return nil, err
	}
	if err := slot.CopyFrom(pv); err != nil {
		return nil, err
	}
	return slot, nil
}

// gatherFromChildren resets the target's accumulator and adds each
// immediate child's resolved value; MEAN divides by the child count
// afterwards. A leaf target is left at its reset value.
func (m *Manager) gatherFromChildren(l *layout.Layout, def *keydef.KeyDef,
	e *entity.Entity, cons int,
) error {
	node, _ := e.NodeRef(l.Type)
	slot, err := m.ensureSlot(e, def)
	if err != nil {
		return err
	}
	if err := slot.Reset(); err != nil {
		return err
	}
	children := l.Tree.Children(node)
	for _, c := range children {
		cv, err := m.resolveDown(l, def, c, cons)
		if err != nil {
			return err
		}
		if err := slot.Add(cv); err != nil {
			return err
		}
	}
	if cons == ConsolidationMean && len(children) > 0 {
		return slot.Div(len(children))
	}
	return nil
}

// resolveDown returns the node's value slot, computing it from its own
// children when absent. Entities that already hold a value keep it.
func (m *Manager) resolveDown(l *layout.Layout, def *keydef.KeyDef,
	node tree.NodeID, cons int,
) (*value.Value, error) {
	e := l.Tree.Payload(node).(*entity.Entity)
	if slot, ok := m.entities.GetData(e, def.Key); ok {
		return slot, nil
	}
	slot, err := m.ensureSlot(e, def)
	if err != nil {
		return nil, err
	}
	children := l.Tree.Children(node)
	for _, c := range children {
		cv, err := m.resolveDown(l, def, c, cons)
		if err != nil {
			return nil, err
		}
		if err := slot.Add(cv); err != nil {
			return nil, err
		}
	}
	if cons == ConsolidationMean && len(children) > 0 {
		if err := slot.Div(len(children)); err != nil {
			return nil, err
		}
	}
	return slot, nil
}

// applyItem pairs one entity with its role in the apply pass: the entities
// named in the call receive the operation, the entities reached through the
// up/down expansion receive the consolidation operator instead.
type applyItem struct {
	e          *entity.Entity
	transitive bool
}

// setValues implements the SET side of the engine: expand the targets
// through the structure according to direction and consolidation, then run
// the uniform apply pass over the expanded list. UP+MEAN, UP+SET, DOWN+SUM
// and DOWN+MEAN are documented unsupported expansions: logged, and only the
// named targets are applied.
func (m *Manager) setValues(l *layout.Layout, def *keydef.KeyDef,
	targets []*entity.Entity, flags int, in *value.Value,
) error {
	dir := flags & directionMask
	op := flags & operationMask
	cons := flags & consolidationMask

	items := make([]applyItem, 0, len(targets))
	for _, e := range targets {
		items = append(items, applyItem{e: e})
	}

	switch dir {
	case DirectionUp:
		if cons == ConsolidationSum {
			items = append(items, m.expandUp(l, targets)...)
		} else {
			m.log.Error("layouts: SET with direction UP supports only SUM consolidation",
				"layout", l.Type, "key", def.Key)
		}
	case DirectionDown:
		if cons == ConsolidationSet {
			items = append(items, m.expandDown(l, targets)...)
		} else {
			m.log.Error("layouts: SET with direction DOWN supports only SET consolidation",
				"layout", l.Type, "key", def.Key)
		}
	}

	// uniform apply pass over the expanded (entity, value) pairs
	for _, it := range items {
		slot, err := m.ensureSlot(it.e, def)
		if err != nil {
			return err
		}
		mode := op
		if it.transitive {
			if cons == ConsolidationSum {
				mode = OperationSum
			} else {
				mode = OperationSet
			}
		}
		switch mode {
		case OperationSet:
			err = slot.CopyFrom(in)
		case OperationSum:
			err = slot.Add(in)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// expandUp enumerates the ancestors of every target, level by level,
// skipping targets already at the root. Each target contributes its whole
// ancestor chain: shared ancestors appear once per contributing target, so
// a SUM consolidation accumulates every leaf's value into them.
func (m *Manager) expandUp(l *layout.Layout, targets []*entity.Entity) []applyItem {
	var items []applyItem
	frontier := make([]tree.NodeID, 0, len(targets))
	for _, e := range targets {
		node, _ := e.NodeRef(l.Type)
		frontier = append(frontier, node)
	}
	for len(frontier) > 0 {
		var next []tree.NodeID
		for _, node := range frontier {
			parent := l.Tree.Parent(node)
			if parent == tree.None {
				continue
			}
			if pe, ok := l.Tree.Payload(parent).(*entity.Entity); ok {
				items = append(items, applyItem{e: pe, transitive: true})
			}
			next = append(next, parent)
		}
		frontier = next
	}
	return items
}

// expandDown enumerates every descendant of every target in preorder.
func (m *Manager) expandDown(l *layout.Layout, targets []*entity.Entity) []applyItem {
	var items []applyItem
	for _, e := range targets {
		node, _ := e.NodeRef(l.Type)
		for _, d := range l.Tree.Descendants(node) {
			if de, ok := l.Tree.Payload(d).(*entity.Entity); ok {
				items = append(items, applyItem{e: de, transitive: true})
			}
		}
	}
	return items
}

// entityNode reports whether the tree node carries an entity payload. The
// base layout's synthetic root does not.
func entityNode(l *layout.Layout, node tree.NodeID) bool {
	_, ok := l.Tree.Payload(node).(*entity.Entity)
	return ok
}

// ensureSlot lazily allocates storage for a not-yet-present key on an
// entity. Called defensively before every mutating operation.
func (m *Manager) ensureSlot(e *entity.Entity, def *keydef.KeyDef) (*value.Value, error) {
	if slot, ok := m.entities.GetData(e, def.Key); ok {
		return slot, nil
	}
	slot, err := value.New(def.Type)
	if err != nil {
		return nil, err
	}
	m.entities.SetData(e, def.Key, slot)
	return slot, nil
}
