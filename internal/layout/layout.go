// Package layout defines the record describing one loaded layout instance
// and the kinds of relational structures a layout can own.
package layout

import "github.com/vk/layoutgrid/internal/tree"

// StructKind identifies the relational structure of a layout. Tree is the
// only kind currently implemented; None is used by layouts with no
// relational concept, for which the consolidation engine forces direction
// and consolidation to zero.
type StructKind int

const (
	KindNone StructKind = iota
	KindTree
)

// String returns a diagnostic name for the kind.
func (k StructKind) String() string {
	switch k {
	case KindTree:
		return "tree"
	case KindNone:
		return "none"
	}
	return "unknown"
}

// Layout is one configured layout instance. Exactly one layout per distinct
// Type is active at a time; Type is the lookup key in the manager.
type Layout struct {
	Name     string // instance name, e.g. "default"
	Type     string // plugin family, e.g. "power"
	Priority uint32
	Kind     StructKind
	Tree     *tree.Tree // populated when Kind is KindTree
}

// New returns a layout record, allocating its relational structure when the
// kind requires one.
func New(name, typ string, priority uint32, kind StructKind) *Layout {
	l := &Layout{
		Name:     name,
		Type:     typ,
		Priority: priority,
		Kind:     kind,
	}
	if kind == KindTree {
		l.Tree = tree.New()
	}
	return l
}
