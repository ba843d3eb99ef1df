// Package keydef holds the registry of attribute key definitions shared by
// every layout. Entities with similar keys share a single definition so that
// the key string, the value type and the custom destroy/dump callbacks are
// stored only once.
package keydef

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Type identifies the primitive type of the values stored under a key.
type Type int

const (
	TypeInvalid Type = iota
	TypeString
	TypeLong
	TypeUint16
	TypeUint32
	TypeBoolean
	TypeFloat
	TypeDouble
	TypeLongDouble
	TypeCustom
)

// String returns the configuration-facing name of the type.
func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeLong:
		return "long"
	case TypeUint16:
		return "uint16"
	case TypeUint32:
		return "uint32"
	case TypeBoolean:
		return "boolean"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeLongDouble:
		return "longdouble"
	case TypeCustom:
		return "custom"
	}
	return "invalid"
}

// Numeric reports whether values of this type support arithmetic
// consolidation (add, subtract, divide).
func (t Type) Numeric() bool {
	switch t {
	case TypeLong, TypeUint16, TypeUint32, TypeFloat, TypeDouble, TypeLongDouble:
		return true
	}
	return false
}

// MaxKeyLen bounds the normalized key string. Longer keys are truncated
// rather than rejected.
const MaxKeyLen = 256

// managedPrefix marks keys reserved for the manager itself (relation
// stashing during config load). Plugins cannot declare keys under it.
const managedPrefix = "mgr."

// KeyDef is the registered schema for one attribute key within one layout
// type. CustomDestroy and CustomDump are only consulted when Type is
// TypeCustom.
type KeyDef struct {
	Key           string // normalized "layouttype.keyname"
	Type          Type
	CustomDestroy func(any)
	CustomDump    func(any) string
	LayoutType    string
}

// Normalize builds the canonical registry key for a (layout type, key name)
// pair: both parts lowercased and trimmed, joined with a dot, and truncated
// to at most MaxKeyLen bytes without splitting a rune.
func Normalize(layoutType, key string) string {
	s := strings.ToLower(strings.TrimSpace(layoutType)) + "." +
		strings.ToLower(strings.TrimSpace(key))
	return truncate(s)
}

// NormalizeManaged builds the canonical key for a manager-reserved key. The
// "mgr." prefix keeps it out of the namespace plugins can declare into.
func NormalizeManaged(layoutType, key string) string {
	return truncate(managedPrefix + Normalize(layoutType, key))
}

// truncate caps s at MaxKeyLen bytes, backing up to a rune boundary so a
// multi-byte key name never normalizes to invalid UTF-8.
func truncate(s string) string {
	if len(s) <= MaxKeyLen {
		return s
	}
	cut := MaxKeyLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Registry is the catalogue of every declared key, indexed by normalized
// key string. It is populated once during manager init and immutable
// afterwards, so lookups need no locking.
type Registry struct {
	defs map[string]*KeyDef
}

// NewRegistry returns an empty key registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]*KeyDef)}
}

// Register adds a plugin-declared key to the registry and returns its
// definition. Registering the same normalized key twice is a bug in the
// plugin declarations, not a runtime condition, so it panics.
func (r *Registry) Register(layoutType, key string, typ Type, destroy func(any), dump func(any) string) *KeyDef {
	return r.add(Normalize(layoutType, key), layoutType, typ, destroy, dump)
}

// RegisterManaged adds a manager-reserved key (normalized under the "mgr."
// prefix) to the registry.
func (r *Registry) RegisterManaged(layoutType, key string, typ Type) *KeyDef {
	return r.add(NormalizeManaged(layoutType, key), layoutType, typ, nil, nil)
}

func (r *Registry) add(norm, layoutType string, typ Type, destroy func(any), dump func(any) string) *KeyDef {
	if typ == TypeInvalid {
		panic(fmt.Sprintf("keydef: key '%s' declared with invalid type", norm))
	}
	if _, exists := r.defs[norm]; exists {
		panic(fmt.Sprintf("keydef: key '%s' already registered", norm))
	}
	def := &KeyDef{
		Key:           norm,
		Type:          typ,
		CustomDestroy: destroy,
		CustomDump:    dump,
		LayoutType:    layoutType,
	}
	r.defs[norm] = def
	return def
}

// Lookup returns the definition stored under a normalized key.
func (r *Registry) Lookup(norm string) (*KeyDef, bool) {
	def, ok := r.defs[norm]
	return def, ok
}

// Resolve normalizes a (layout type, key name) pair and looks it up.
func (r *Registry) Resolve(layoutType, key string) (*KeyDef, bool) {
	return r.Lookup(Normalize(layoutType, key))
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	return len(r.defs)
}
