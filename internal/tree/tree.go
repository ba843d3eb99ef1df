// Package tree provides the arena-allocated tree used as the relational
// structure of a layout. Nodes are addressed by index instead of pointers so
// that parent and child references cannot form ownership cycles.
//
// The tree itself is not concurrency-safe; the layouts manager serializes
// all access through its own lock.
package tree

import "fmt"

// NodeID addresses one node inside its owning Tree.
type NodeID int

// None is the null node reference, used as the parent of the root and as
// the "no node" return value.
const None NodeID = -1

// Tree is a rooted tree over opaque payloads. The zero number of nodes is
// valid; the first AddChild with parent None creates the root.
type Tree struct {
	nodes []node
}

type node struct {
	parent   NodeID
	children []NodeID
	payload  any
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Root returns the root node, or None for an empty tree.
func (t *Tree) Root() NodeID {
	if len(t.nodes) == 0 {
		return None
	}
	return 0
}

// AddChild appends a new node under parent and returns its id. Passing
// parent None creates the root and is only valid on an empty tree.
func (t *Tree) AddChild(parent NodeID, payload any) (NodeID, error) {
	if parent == None {
		if len(t.nodes) != 0 {
			return None, fmt.Errorf("tree: root already exists")
		}
		t.nodes = append(t.nodes, node{parent: None, payload: payload})
		return 0, nil
	}
	if !t.valid(parent) {
		return None, fmt.Errorf("tree: parent node %d not found", parent)
	}
	id := NodeID(len(t.nodes))
	t.nodes = append(t.nodes, node{parent: parent, payload: payload})
	t.nodes[parent].children = append(t.nodes[parent].children, id)
	return id, nil
}

// Parent returns the parent of id, or None for the root.
func (t *Tree) Parent(id NodeID) NodeID {
	if !t.valid(id) {
		return None
	}
	return t.nodes[id].parent
}

// Children returns the ordered child list of id. The returned slice is the
// tree's own storage and must not be retained across mutations.
func (t *Tree) Children(id NodeID) []NodeID {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].children
}

// Payload returns the opaque payload attached to id.
func (t *Tree) Payload(id NodeID) any {
	if !t.valid(id) {
		return nil
	}
	return t.nodes[id].payload
}

// Walk visits the subtree rooted at from in preorder, calling fn for each
// node. Returning false from fn stops the whole walk. Children appended to
// an already-visited node during the walk are still visited: the child list
// length is re-read on every step, giving the growing-tree semantics the
// relation builder relies on.
func (t *Tree) Walk(from NodeID, fn func(NodeID) bool) {
	if !t.valid(from) {
		return
	}
	t.walk(from, fn)
}

func (t *Tree) walk(id NodeID, fn func(NodeID) bool) bool {
	if !fn(id) {
		return false
	}
	// nodes may be appended by fn, so index the arena fresh each iteration.
	for i := 0; i < len(t.nodes[id].children); i++ {
		if !t.walk(t.nodes[id].children[i], fn) {
			return false
		}
	}
	return true
}

// Descendants returns every node strictly below id in preorder.
func (t *Tree) Descendants(id NodeID) []NodeID {
	var out []NodeID
	t.Walk(id, func(n NodeID) bool {
		if n != id {
			out = append(out, n)
		}
		return true
	})
	return out
}

func (t *Tree) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}
