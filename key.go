package bindkit

import (
	"fmt"
	"hash/fnv"
	"reflect"
)

// Key is the addressing unit for bindings: a type plus an optional
// qualifier. Keys are immutable value objects. Two keys are equal iff their
// type and qualifier are equal; the hash is computed once at construction
// and never changes, so a Key is always safe to use as a map index.
//
// Qualifier values must be comparable. Named qualifiers are the common case
// and are created with Key.Named.
type Key struct {
	t         reflect.Type
	qualifier any
	hash      uint64
}

// nameQualifier is the qualifier type produced by Key.Named.
type nameQualifier string

func (n nameQualifier) String() string { return fmt.Sprintf("named %q", string(n)) }

// KeyOf returns the key for type T with no qualifier.
func KeyOf[T any]() Key {
	return KeyFor(reflect.TypeOf((*T)(nil)).Elem())
}

// KeyFor returns the key for the given type with no qualifier.
func KeyFor(t reflect.Type) Key {
	return newKey(t, nil)
}

// Named returns a copy of the key carrying a name qualifier.
func (k Key) Named(name string) Key {
	return newKey(k.t, nameQualifier(name))
}

// Qualified returns a copy of the key carrying an arbitrary qualifier value.
// The qualifier must be comparable.
func (k Key) Qualified(qualifier any) Key {
	return newKey(k.t, qualifier)
}

// Unqualified returns a copy of the key with the qualifier removed.
func (k Key) Unqualified() Key {
	return newKey(k.t, nil)
}

func newKey(t reflect.Type, qualifier any) Key {
	if t == nil {
		panic("bindkit: key type cannot be nil")
	}

	h := fnv.New64a()
	h.Write([]byte(t.String()))
	if qualifier != nil {
		fmt.Fprintf(h, "/%T=%v", qualifier, qualifier)
	}

	return Key{
		t:         t,
		qualifier: qualifier,
		hash:      h.Sum64(),
	}
}

// Type returns the key's type.
func (k Key) Type() reflect.Type { return k.t }

// Qualifier returns the key's qualifier, or nil if unqualified.
func (k Key) Qualifier() any { return k.qualifier }

// HasQualifier reports whether the key carries a qualifier.
func (k Key) HasQualifier() bool { return k.qualifier != nil }

// Name returns the name qualifier, or "" if the key is not named.
func (k Key) Name() string {
	if n, ok := k.qualifier.(nameQualifier); ok {
		return string(n)
	}
	return ""
}

// Hash returns the key's precomputed hash.
func (k Key) Hash() uint64 { return k.hash }

// IsZero reports whether the key is the zero value.
func (k Key) IsZero() bool { return k.t == nil }

// String renders the key for error messages, e.g. `*pkg.Database` or
// `Cache (named "redis")`.
func (k Key) String() string {
	if k.t == nil {
		return "<zero key>"
	}

	typeName := formatType(k.t)
	if k.qualifier == nil {
		return typeName
	}

	if s, ok := k.qualifier.(fmt.Stringer); ok {
		return fmt.Sprintf("%s (%s)", typeName, s.String())
	}
	return fmt.Sprintf("%s (qualified %v)", typeName, k.qualifier)
}

// formatType formats a reflect.Type for error messages, preferring short
// names for common kinds.
func formatType(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "*" + elem.Name()
		}
		return t.String()
	case reflect.Slice:
		elem := t.Elem()
		if elem.PkgPath() != "" && elem.Name() != "" {
			return "[]" + elem.Name()
		}
		return t.String()
	case reflect.Map:
		keyStr := t.Key().Name()
		if keyStr == "" {
			keyStr = t.Key().String()
		}
		elemStr := t.Elem().Name()
		if elemStr == "" {
			elemStr = t.Elem().String()
		}
		return "map[" + keyStr + "]" + elemStr
	case reflect.Interface, reflect.Struct:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	default:
		if t.Name() != "" {
			return t.Name()
		}
		return t.String()
	}
}
