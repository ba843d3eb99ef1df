package manager

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vk/layoutgrid/internal/entity"
	"github.com/vk/layoutgrid/internal/layout"
	"github.com/vk/layoutgrid/internal/tree"
)

// Dump writes a human-readable description of every entity, every layout
// and every layout tree to w. Intended for operators inspecting the state
// after a load; custom key printers declared by plugins are honored.
func (m *Manager) Dump(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return fmt.Errorf("layouts: manager not initialized")
	}

	var names []string
	m.entities.Range(func(e *entity.Entity) bool {
		names = append(names, e.Name)
		return true
	})
	sort.Strings(names)
	for _, name := range names {
		e, _ := m.entities.Get(name)
		fmt.Fprintf(w, "-- entity %s --\n", e.Name)
		fmt.Fprintf(w, "type: %s\nnode count: %d\n", e.Type, len(e.NodeRefs()))
		keys := e.Keys()
		sort.Strings(keys)
		for _, k := range keys {
			v, _ := m.entities.GetData(e, k)
			def, _ := m.keydefs.Lookup(k)
			fmt.Fprintf(w, "data %s (type: %s): %s\n", k, def.Type, v.Dump(def))
		}
	}

	var types []string
	for t := range m.layouts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		l := m.layouts[t]
		fmt.Fprintf(w, "-- layout %s --\ntype: %s\npriority: %d\nstruct: %s\n",
			l.Name, l.Type, l.Priority, l.Kind)
		if l.Kind == layout.KindTree && l.Tree.Root() != tree.None {
			fmt.Fprintf(w, "entities count: %d\nentities list:\n", l.Tree.Len())
			m.dumpTree(w, l, l.Tree.Root(), 0)
		}
	}
	return nil
}

func (m *Manager) dumpTree(w io.Writer, l *layout.Layout, id tree.NodeID, depth int) {
	indent := strings.Repeat(" ", depth+1)
	if e, ok := l.Tree.Payload(id).(*entity.Entity); ok {
		fmt.Fprintf(w, "%s%s\n", indent, e.Name)
	} else {
		fmt.Fprintf(w, "%s(root)\n", indent)
	}
	for _, c := range l.Tree.Children(id) {
		m.dumpTree(w, l, c, depth+1)
	}
}
