// Package inventory supplies the authoritative list of cluster nodes used
// to seed the base layout. The manager consumes it exactly once, at config
// load time.
package inventory

import (
	"fmt"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/layoutgrid/internal/hostlist"
)

// Node is one cluster node record.
type Node struct {
	Name  string
	State string
}

// Provider yields the node records backing the base layout entities.
type Provider interface {
	Nodes() ([]Node, error)
}

// Static is a fixed in-memory provider, mostly useful for tests and
// embedding callers that already hold their node table.
type Static struct {
	nodes []Node
}

// NewStatic returns a provider serving the given records.
func NewStatic(nodes []Node) *Static {
	return &Static{nodes: nodes}
}

// Nodes implements Provider.
func (s *Static) Nodes() ([]Node, error) {
	return s.nodes, nil
}

// File reads the node table from an HCL inventory file. Node block labels
// may be hostlist expressions, so "node[1-64]" declares the whole rack in
// one line.
type File struct {
	path string
}

// NewFile returns a provider reading path on every Nodes call.
func NewFile(path string) *File {
	return &File{path: path}
}

type inventorySchema struct {
	Nodes []nodeSchema `hcl:"node,block"`
}

type nodeSchema struct {
	Name  string `hcl:"name,label"`
	State string `hcl:"state,optional"`
}

// Nodes implements Provider.
func (f *File) Nodes() ([]Node, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(f.path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("inventory: parsing '%s': %w", f.path, diags)
	}
	var raw inventorySchema
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("inventory: decoding '%s': %w", f.path, diags)
	}
	var out []Node
	for _, blk := range raw.Nodes {
		names, err := hostlist.Expand(blk.Name)
		if err != nil {
			return nil, fmt.Errorf("inventory: node '%s': %w", blk.Name, err)
		}
		state := blk.State
		if state == "" {
			state = "up"
		}
		for _, name := range names {
			out = append(out, Node{Name: name, State: state})
		}
	}
	return out, nil
}
