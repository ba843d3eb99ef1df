package value

import (
	"fmt"
	"math"
	"strconv"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/layoutgrid/internal/keydef"
)

// Parse builds a value of the requested type from its textual form. It
// backs the administrative "key=value" update path.
func Parse(t keydef.Type, s string) (*Value, error) {
	switch t {
	case keydef.TypeString:
		return NewString(s), nil
	case keydef.TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("value: parsing boolean %q: %w", s, err)
		}
		return NewBoolean(b), nil
	case keydef.TypeLong:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value: parsing long %q: %w", s, err)
		}
		return NewLong(n), nil
	case keydef.TypeUint16:
		n, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("value: parsing uint16 %q: %w", s, err)
		}
		return NewUint16(uint16(n)), nil
	case keydef.TypeUint32:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("value: parsing uint32 %q: %w", s, err)
		}
		return NewUint32(uint32(n)), nil
	case keydef.TypeFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("value: parsing float %q: %w", s, err)
		}
		return NewFloat(float32(f)), nil
	case keydef.TypeDouble, keydef.TypeLongDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("value: parsing double %q: %w", s, err)
		}
		if t == keydef.TypeLongDouble {
			return NewLongDouble(f), nil
		}
		return NewDouble(f), nil
	}
	return nil, fmt.Errorf("value: cannot parse type %s from text", t)
}

// FromCty converts a configuration attribute value to the declared key
// type. It is the bridge between the HCL loader and the entity attribute
// store used by the automatic option merge.
func FromCty(t keydef.Type, cv cty.Value) (*Value, error) {
	if cv.IsNull() || !cv.IsKnown() {
		return nil, fmt.Errorf("value: null or unknown config value")
	}
	switch t {
	case keydef.TypeString:
		if cv.Type() != cty.String {
			return nil, fmt.Errorf("value: expected string, got %s", cv.Type().FriendlyName())
		}
		return NewString(cv.AsString()), nil
	case keydef.TypeBoolean:
		if cv.Type() != cty.Bool {
			return nil, fmt.Errorf("value: expected bool, got %s", cv.Type().FriendlyName())
		}
		return NewBoolean(cv.True()), nil
	case keydef.TypeLong:
		var n int64
		if err := gocty.FromCtyValue(cv, &n); err != nil {
			return nil, fmt.Errorf("value: converting to long: %w", err)
		}
		return NewLong(n), nil
	case keydef.TypeUint16:
		var n uint64
		if err := gocty.FromCtyValue(cv, &n); err != nil {
			return nil, fmt.Errorf("value: converting to uint16: %w", err)
		}
		if n > math.MaxUint16 {
			return nil, fmt.Errorf("value: %d overflows uint16", n)
		}
		return NewUint16(uint16(n)), nil
	case keydef.TypeUint32:
		var n uint64
		if err := gocty.FromCtyValue(cv, &n); err != nil {
			return nil, fmt.Errorf("value: converting to uint32: %w", err)
		}
		if n > math.MaxUint32 {
			return nil, fmt.Errorf("value: %d overflows uint32", n)
		}
		return NewUint32(uint32(n)), nil
	case keydef.TypeFloat:
		var f float64
		if err := gocty.FromCtyValue(cv, &f); err != nil {
			return nil, fmt.Errorf("value: converting to float: %w", err)
		}
		return NewFloat(float32(f)), nil
	case keydef.TypeDouble, keydef.TypeLongDouble:
		var f float64
		if err := gocty.FromCtyValue(cv, &f); err != nil {
			return nil, fmt.Errorf("value: converting to double: %w", err)
		}
		if t == keydef.TypeLongDouble {
			return NewLongDouble(f), nil
		}
		return NewDouble(f), nil
	}
	return nil, fmt.Errorf("value: cannot convert config value to type %s", t)
}
