package bindkit

import (
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

var (
	durationType        = reflect.TypeOf(time.Duration(0))
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
)

// convertibleConstant reports whether a named key of type t can be derived
// from a bound string constant of the same name.
func convertibleConstant(t reflect.Type) bool {
	if t == durationType {
		return true
	}

	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}

	if t.Kind() == reflect.Pointer && t.Implements(textUnmarshalerType) {
		return true
	}
	return reflect.PointerTo(t).Implements(textUnmarshalerType)
}

// convertConstant converts a raw string constant to a value of type t.
// Conversion failures are configuration errors, reported at build time for
// every key the constant cannot satisfy.
func convertConstant(t reflect.Type, raw string) (any, error) {
	if t == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s: %w", raw, formatType(t), err)
		}
		return d, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s: %w", raw, formatType(t), err)
		}
		return coerce(t, reflect.ValueOf(b)), nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 0, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s: %w", raw, formatType(t), err)
		}
		v := reflect.New(t).Elem()
		v.SetInt(n)
		return v.Interface(), nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 0, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s: %w", raw, formatType(t), err)
		}
		v := reflect.New(t).Elem()
		v.SetUint(n)
		return v.Interface(), nil

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, t.Bits())
		if err != nil {
			return nil, fmt.Errorf("cannot parse %q as %s: %w", raw, formatType(t), err)
		}
		v := reflect.New(t).Elem()
		v.SetFloat(f)
		return v.Interface(), nil
	}

	// Pointer type whose value implements TextUnmarshaler.
	if t.Kind() == reflect.Pointer && t.Implements(textUnmarshalerType) {
		p := reflect.New(t.Elem())
		if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("cannot unmarshal %q into %s: %w", raw, formatType(t), err)
		}
		return p.Interface(), nil
	}

	// Value type whose pointer implements TextUnmarshaler.
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		p := reflect.New(t)
		if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("cannot unmarshal %q into %s: %w", raw, formatType(t), err)
		}
		return p.Elem().Interface(), nil
	}

	return nil, fmt.Errorf("no conversion from string constant to %s", formatType(t))
}

// coerce converts a parsed value onto a possibly named type sharing the same
// kind (for example a `type FeatureFlag bool`).
func coerce(t reflect.Type, v reflect.Value) any {
	if v.Type() == t {
		return v.Interface()
	}
	return v.Convert(t).Interface()
}
