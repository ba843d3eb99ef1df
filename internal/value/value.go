// Package value implements the typed attribute values stored on entities
// and the closed dispatch table of generic operations over them. A Value is
// a tagged union over the primitive types declared by key definitions; every
// operation checks the tag and refuses to mix types, there is no implicit
// widening.
package value

import (
	"fmt"

	"github.com/vk/layoutgrid/internal/keydef"
)

// Value is one heap-allocated attribute value. Arithmetic operations mutate
// it in place so that a *Value handle obtained from an entity can be used as
// a slot.
//
// LongDouble keeps its own tag but is backed by float64, the widest float
// the platform-independent language spec offers.
type Value struct {
	typ  keydef.Type
	str  string
	bl   bool
	lng  int64
	u16  uint16
	u32  uint32
	f32  float32
	f64  float64
	cust any
}

// New allocates a zero value of the given type. It is the alloc half of the
// defensive alloc-before-mutate pattern used by the consolidation engine.
func New(t keydef.Type) (*Value, error) {
	if t == keydef.TypeInvalid {
		return nil, fmt.Errorf("value: cannot allocate invalid type")
	}
	return &Value{typ: t}, nil
}

// Type returns the tag of the value.
func (v *Value) Type() keydef.Type { return v.typ }

// Convenience constructors, one per primitive type.

func NewString(s string) *Value     { return &Value{typ: keydef.TypeString, str: s} }
func NewLong(n int64) *Value        { return &Value{typ: keydef.TypeLong, lng: n} }
func NewUint16(n uint16) *Value     { return &Value{typ: keydef.TypeUint16, u16: n} }
func NewUint32(n uint32) *Value     { return &Value{typ: keydef.TypeUint32, u32: n} }
func NewBoolean(b bool) *Value      { return &Value{typ: keydef.TypeBoolean, bl: b} }
func NewFloat(f float32) *Value     { return &Value{typ: keydef.TypeFloat, f32: f} }
func NewDouble(f float64) *Value    { return &Value{typ: keydef.TypeDouble, f64: f} }
func NewLongDouble(f float64) *Value {
	return &Value{typ: keydef.TypeLongDouble, f64: f}
}
func NewCustom(x any) *Value { return &Value{typ: keydef.TypeCustom, cust: x} }

// Accessors. Each returns the zero value when the tag does not match; use
// Type() first when the tag is not known from the key definition.

func (v *Value) String() string   { return v.str }
func (v *Value) Boolean() bool    { return v.bl }
func (v *Value) Long() int64      { return v.lng }
func (v *Value) Uint16() uint16   { return v.u16 }
func (v *Value) Uint32() uint32   { return v.u32 }
func (v *Value) Float() float32   { return v.f32 }
func (v *Value) Double() float64  { return v.f64 }
func (v *Value) LongDouble() float64 { return v.f64 }
func (v *Value) Custom() any      { return v.cust }

// Clone returns an independent copy of the value. Custom payloads are
// shared, not deep-copied.
func (v *Value) Clone() *Value {
	c := *v
	return &c
}

// Reset zeroes a numeric value in place. Non-numeric tags cannot act as
// consolidation accumulators, so resetting them is an error.
func (v *Value) Reset() error {
	switch v.typ {
	case keydef.TypeLong:
		v.lng = 0
	case keydef.TypeUint16:
		v.u16 = 0
	case keydef.TypeUint32:
		v.u32 = 0
	case keydef.TypeFloat:
		v.f32 = 0
	case keydef.TypeDouble, keydef.TypeLongDouble:
		v.f64 = 0
	default:
		return fmt.Errorf("value: cannot reset non-numeric type %s", v.typ)
	}
	return nil
}

// CopyFrom overwrites the value with the content of src. Both tags must
// match exactly.
func (v *Value) CopyFrom(src *Value) error {
	if v.typ != src.typ {
		return fmt.Errorf("value: cannot copy %s into %s", src.typ, v.typ)
	}
	switch v.typ {
	case keydef.TypeString:
		v.str = src.str
	case keydef.TypeBoolean:
		v.bl = src.bl
	case keydef.TypeLong:
		v.lng = src.lng
	case keydef.TypeUint16:
		v.u16 = src.u16
	case keydef.TypeUint32:
		v.u32 = src.u32
	case keydef.TypeFloat:
		v.f32 = src.f32
	case keydef.TypeDouble, keydef.TypeLongDouble:
		v.f64 = src.f64
	case keydef.TypeCustom:
		v.cust = src.cust
	default:
		return fmt.Errorf("value: cannot copy invalid type")
	}
	return nil
}

// Add accumulates src into the value. Numeric tags only, matching exactly.
func (v *Value) Add(src *Value) error {
	if err := v.checkNumericPair(src, "add"); err != nil {
		return err
	}
	switch v.typ {
	case keydef.TypeLong:
		v.lng += src.lng
	case keydef.TypeUint16:
		v.u16 += src.u16
	case keydef.TypeUint32:
		v.u32 += src.u32
	case keydef.TypeFloat:
		v.f32 += src.f32
	case keydef.TypeDouble, keydef.TypeLongDouble:
		v.f64 += src.f64
	}
	return nil
}

// Sub subtracts src from the value. Numeric tags only, matching exactly.
func (v *Value) Sub(src *Value) error {
	if err := v.checkNumericPair(src, "subtract"); err != nil {
		return err
	}
	switch v.typ {
	case keydef.TypeLong:
		v.lng -= src.lng
	case keydef.TypeUint16:
		v.u16 -= src.u16
	case keydef.TypeUint32:
		v.u32 -= src.u32
	case keydef.TypeFloat:
		v.f32 -= src.f32
	case keydef.TypeDouble, keydef.TypeLongDouble:
		v.f64 -= src.f64
	}
	return nil
}

// Div divides the value by n in place. Integer tags truncate, matching the
// native division operator of the primitive type.
func (v *Value) Div(n int) error {
	if !v.typ.Numeric() {
		return fmt.Errorf("value: cannot divide non-numeric type %s", v.typ)
	}
	if n == 0 {
		return fmt.Errorf("value: division by zero")
	}
	switch v.typ {
	case keydef.TypeLong:
		v.lng /= int64(n)
	case keydef.TypeUint16:
		v.u16 /= uint16(n)
	case keydef.TypeUint32:
		v.u32 /= uint32(n)
	case keydef.TypeFloat:
		v.f32 /= float32(n)
	case keydef.TypeDouble, keydef.TypeLongDouble:
		v.f64 /= float64(n)
	}
	return nil
}

func (v *Value) checkNumericPair(src *Value, op string) error {
	if v.typ != src.typ {
		return fmt.Errorf("value: cannot %s %s and %s", op, src.typ, v.typ)
	}
	if !v.typ.Numeric() {
		return fmt.Errorf("value: cannot %s non-numeric type %s", op, v.typ)
	}
	return nil
}

// Dump renders the value for diagnostics using the key definition's custom
// dump function when one is declared for a custom type.
func (v *Value) Dump(def *keydef.KeyDef) string {
	switch v.typ {
	case keydef.TypeString:
		return v.str
	case keydef.TypeBoolean:
		if v.bl {
			return "true"
		}
		return "false"
	case keydef.TypeLong:
		return fmt.Sprintf("%d", v.lng)
	case keydef.TypeUint16:
		return fmt.Sprintf("%d", v.u16)
	case keydef.TypeUint32:
		return fmt.Sprintf("%d", v.u32)
	case keydef.TypeFloat:
		return fmt.Sprintf("%f", v.f32)
	case keydef.TypeDouble, keydef.TypeLongDouble:
		return fmt.Sprintf("%f", v.f64)
	case keydef.TypeCustom:
		if def != nil && def.CustomDump != nil {
			return def.CustomDump(v.cust)
		}
		return fmt.Sprintf("custom(%T)", v.cust)
	}
	return "invalid"
}
