// Package introspect discovers the injection points of Go types.
//
// The binding engine in the parent package never inspects reflection
// metadata itself; it consumes TypeSpec values produced by an Introspector.
// The default introspector reads struct tags:
//
//	type Service struct {
//	    DB    *Database `inject:""`
//	    Cache Cache     `inject:"" named:"redis"`
//	    Audit Auditor   `inject:"" optional:"true"`
//	}
//
// A field whose type is a provider handle (a struct with a Resolve field of
// type func() (any, error) and a Get method returning (X, error)) is a lazy
// injection point for X.
package introspect

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// TypeSpec describes how to construct a concrete type: its allocation shape
// and its injectable fields. A TypeSpec is the Go rendering of "designated
// constructor plus injectable members".
type TypeSpec struct {
	// Type is the type the spec constructs: a struct or pointer to struct.
	Type reflect.Type

	// Elem is the underlying struct type.
	Elem reflect.Type

	// Scope is the type-declared scope name, or "" when unscoped.
	Scope string

	// Fields are the injectable fields in declaration order.
	Fields []Field

	// PostConstruct reports whether the type declares a PostConstruct
	// method to run after field injection.
	PostConstruct bool
}

// Field is one injectable field of a struct.
type Field struct {
	// Name is the struct field name.
	Name string

	// Index is the field's index path for reflect access.
	Index []int

	// Type is the declared field type. For lazy fields this is the
	// provider handle type, not the dependency type.
	Type reflect.Type

	// Elem is the dependency's element type: equal to Type for direct
	// fields, the provider's element type for lazy fields.
	Elem reflect.Type

	// Qualifier carries the named qualifier, or nil.
	Qualifier any

	// Optional fields resolve to their zero value when unbound.
	Optional bool

	// Lazy fields receive a provider handle instead of a constructed value.
	Lazy bool
}

// Introspector resolves a type to its TypeSpec. Implementations must be
// safe for concurrent use after injector construction.
type Introspector interface {
	Introspect(t reflect.Type) (*TypeSpec, error)
}

// Scoped is implemented by types that declare their own scope, the
// type-level counterpart of an In(...) clause on an explicit binding.
type Scoped interface {
	InjectionScope() string
}

// PostConstructor is implemented by types that want a hook invoked after
// field injection completes.
type PostConstructor interface {
	PostConstruct() error
}

var (
	scopedType        = reflect.TypeOf((*Scoped)(nil)).Elem()
	postConstructType = reflect.TypeOf((*PostConstructor)(nil)).Elem()
	errorType         = reflect.TypeOf((*error)(nil)).Elem()
	resolveFuncType   = reflect.TypeOf((func() (any, error))(nil))
)

// tagIntrospector is the default tag-driven introspector. Results are
// memoized per type; the cache only grows.
type tagIntrospector struct {
	mu    sync.RWMutex
	specs map[reflect.Type]*TypeSpec
}

// New returns the default tag-driven introspector.
func New() Introspector {
	return &tagIntrospector{specs: make(map[reflect.Type]*TypeSpec)}
}

// Introspect implements Introspector.
func (in *tagIntrospector) Introspect(t reflect.Type) (*TypeSpec, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot introspect nil type")
	}

	in.mu.RLock()
	spec, ok := in.specs[t]
	in.mu.RUnlock()
	if ok {
		return spec, nil
	}

	spec, err := buildSpec(t)
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	in.specs[t] = spec
	in.mu.Unlock()

	return spec, nil
}

func buildSpec(t reflect.Type) (*TypeSpec, error) {
	elem := t
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() != reflect.Struct {
		return nil, &NotConstructableError{Type: t, Reason: fmt.Sprintf("%s is not a struct type", elem.Kind())}
	}

	spec := &TypeSpec{
		Type: t,
		Elem: elem,
	}

	ptr := reflect.PointerTo(elem)
	if ptr.Implements(scopedType) {
		spec.Scope = reflect.New(elem).Interface().(Scoped).InjectionScope()
	} else if elem.Implements(scopedType) {
		spec.Scope = reflect.New(elem).Elem().Interface().(Scoped).InjectionScope()
	}
	spec.PostConstruct = ptr.Implements(postConstructType) || elem.Implements(postConstructType)

	for i := 0; i < elem.NumField(); i++ {
		sf := elem.Field(i)

		tag, tagged := sf.Tag.Lookup("inject")
		if !tagged {
			continue
		}

		if sf.PkgPath != "" {
			return nil, &NotConstructableError{
				Type:   t,
				Reason: fmt.Sprintf("field %s is unexported and cannot be injected", sf.Name),
			}
		}
		if sf.Anonymous && sf.Type.Kind() == reflect.Interface && sf.Type.NumMethod() == 0 {
			return nil, &NotConstructableError{
				Type:   t,
				Reason: fmt.Sprintf("field %s has an ambiguous empty interface type", sf.Name),
			}
		}

		field := Field{
			Name:  sf.Name,
			Index: sf.Index,
			Type:  sf.Type,
			Elem:  sf.Type,
		}

		if name, ok := sf.Tag.Lookup("named"); ok {
			field.Qualifier = name
		}
		if opt, ok := sf.Tag.Lookup("optional"); ok {
			field.Optional = opt == "true"
		}
		// Legacy shorthand: inject:"optional".
		if strings.TrimSpace(tag) == "optional" {
			field.Optional = true
		}

		if elemType, ok := ProviderElem(sf.Type); ok {
			field.Lazy = true
			field.Elem = elemType
		}

		spec.Fields = append(spec.Fields, field)
	}

	return spec, nil
}

// ProviderElem reports the element type X when t is a provider handle for
// X. Detection is structural so this package stays decoupled from the
// handle's defining package.
func ProviderElem(t reflect.Type) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Struct {
		return nil, false
	}

	f, ok := t.FieldByName("Resolve")
	if !ok || f.Type != resolveFuncType {
		return nil, false
	}

	m, ok := t.MethodByName("Get")
	if !ok {
		return nil, false
	}
	mt := m.Type
	if mt.NumIn() != 1 || mt.NumOut() != 2 || mt.Out(1) != errorType {
		return nil, false
	}
	return mt.Out(0), true
}

// Constructable reports whether a type is eligible for just-in-time
// synthesis: a concrete struct, or pointer to struct.
func Constructable(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Kind() == reflect.Struct
}

// NotConstructableError reports a type whose injection points cannot be
// discovered.
type NotConstructableError struct {
	Type   reflect.Type
	Reason string
}

func (e *NotConstructableError) Error() string {
	return fmt.Sprintf("no usable constructor for %s: %s", e.Type, e.Reason)
}
