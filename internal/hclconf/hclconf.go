// Package hclconf loads per-layout configuration files. Each layout type
// owns one HCL file under the configuration directory, declaring the layout
// priority, the tree root and the entity records with their attributes and
// "enclosed" relations.
//
// The loader evaluates entity attributes to plain cty values and hands them
// to the manager; it never interprets them itself, so the grammar stays the
// plugins' business.
package hclconf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// fileSchema is the gohcl shape of a layout configuration file.
type fileSchema struct {
	Priority uint32         `hcl:"priority,optional"`
	Root     string         `hcl:"root,optional"`
	Entities []entitySchema `hcl:"entity,block"`
}

// entitySchema is one entity block. The label may be a hostlist expression
// covering several entities at once. Attributes beyond type and enclosed
// remain in Body and are evaluated to cty values by the loader.
type entitySchema struct {
	Name     string   `hcl:"name,label"`
	Type     string   `hcl:"type,optional"`
	Enclosed []string `hcl:"enclosed,optional"`
	Body     hcl.Body `hcl:",remain"`
}

// EntityDecl is one parsed entity record.
type EntityDecl struct {
	// Name as written in the file; may be a hostlist expression.
	Name string
	Type string
	// Enclosed holds the raw child declarations, each possibly a hostlist
	// expression.
	Enclosed []string
	// Attrs holds every remaining attribute of the block, evaluated.
	Attrs map[string]cty.Value
}

// LayoutConfig is the parsed content of one layout configuration file.
type LayoutConfig struct {
	Priority uint32
	Root     string
	Entities []*EntityDecl
}

// Path returns the configuration file location for a layout type, mirroring
// the "<confdir>/<type>.hcl" naming convention.
func Path(dir, layoutType string) string {
	return filepath.Join(dir, layoutType+".hcl")
}

// LoadFile parses and evaluates one layout configuration file.
func LoadFile(path string) (*LayoutConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("hclconf: cannot open '%s': %w", path, err)
	}
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclconf: parsing '%s': %w", path, diags)
	}
	var raw fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, fmt.Errorf("hclconf: decoding '%s': %w", path, diags)
	}

	cfg := &LayoutConfig{
		Priority: raw.Priority,
		Root:     raw.Root,
	}
	for i := range raw.Entities {
		decl, err := translateEntity(&raw.Entities[i])
		if err != nil {
			return nil, fmt.Errorf("hclconf: in '%s': %w", path, err)
		}
		cfg.Entities = append(cfg.Entities, decl)
	}
	return cfg, nil
}

// translateEntity evaluates the free-form attributes of an entity block.
// Only literal expressions are allowed; there is no evaluation context.
func translateEntity(raw *entitySchema) (*EntityDecl, error) {
	decl := &EntityDecl{
		Name:     raw.Name,
		Type:     raw.Type,
		Enclosed: raw.Enclosed,
		Attrs:    make(map[string]cty.Value),
	}
	attrs, diags := raw.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("entity '%s': %w", raw.Name, diags)
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("entity '%s' attribute '%s': %w", raw.Name, name, diags)
		}
		decl.Attrs[name] = val
	}
	return decl, nil
}
