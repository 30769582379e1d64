package bindkit

import (
	"reflect"
	"strconv"
)

// Optional carries a value that may be absent. The zero value is absent.
type Optional[T any] struct {
	Value   T
	Present bool
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.Value, o.Present }

// Some returns a present Optional.
func Some[T any](v T) Optional[T] { return Optional[T]{Value: v, Present: true} }

// OptionalKind identifies which view an OptionalBinderBinding serves.
type OptionalKind int

const (
	// OptionalDirect serves the key T itself: the actual binding when set,
	// otherwise the default.
	OptionalDirect OptionalKind = iota

	// OptionalValue serves Optional[T], absent when neither slot is bound.
	OptionalValue

	// OptionalProvider serves Optional[Provider[T]]. Unlike the value view
	// it stays present for a binding that produces nil, because the handle
	// itself exists.
	OptionalProvider
)

// OptionalBinderBinding resolves a key through the optional binder's two
// slots: a default that modules may pre-register and an actual binding that
// overrides it.
type OptionalBinderBinding struct {
	bindingBase

	// Owner identifies the aggregate.
	Owner string

	// Name is the key's name qualifier, or "".
	Name string

	// ElemType is T.
	ElemType reflect.Type

	// DefaultKey and ActualKey are the hidden slot keys.
	DefaultKey Key
	ActualKey  Key

	// Kind selects the produced view.
	Kind OptionalKind

	// OptionalType is the Optional[...] struct type for the optional views.
	OptionalType reflect.Type

	// ProviderType is the Provider[T] handle type for the provider view.
	ProviderType reflect.Type

	deps []Dependency
}

func (b *OptionalBinderBinding) Dependencies() []Dependency { return b.deps }
func (b *OptionalBinderBinding) Accept(v BindingVisitor) any {
	return v.VisitOptionalBinder(b)
}
func (b *OptionalBinderBinding) equalTarget(other Binding) bool {
	o, ok := other.(*OptionalBinderBinding)
	return ok && b.Owner == o.Owner && b.Kind == o.Kind
}

// OptionalBinder lets a library declare a dependency with an overridable
// default. The library calls SetDefault; an application module may call
// SetBinding to replace it. Consumers inject T (fails when neither slot is
// bound), Optional[T] (absent when neither slot is bound), or
// Optional[Provider[T]].
type OptionalBinder[T any] struct {
	binder     *Binder
	name       string
	owner      string
	defaultKey Key
	actualKey  Key
}

// NewOptionalBinder returns an optional binder for the unqualified key of T.
func NewOptionalBinder[T any](b *Binder) *OptionalBinder[T] {
	return newOptionalBinder[T](b, "", b.source(2))
}

// NewOptionalBinderNamed returns an optional binder for the key of T
// qualified by name.
func NewOptionalBinderNamed[T any](b *Binder, name string) *OptionalBinder[T] {
	return newOptionalBinder[T](b, name, b.source(2))
}

func newOptionalBinder[T any](b *Binder, name, src string) *OptionalBinder[T] {
	elem := reflect.TypeOf((*T)(nil)).Elem()

	owner := "optional<" + elem.String() + ">"
	if name != "" {
		owner += " named " + strconv.Quote(name)
	}

	// Slot keys carry no unique ID: conflicting SetDefault calls from two
	// modules collide at the binding index like any other double binding.
	defaultKey := KeyFor(elem).Qualified(elementQualifier{owner: owner, role: roleOptionalDefault})
	actualKey := KeyFor(elem).Qualified(elementQualifier{owner: owner, role: roleOptionalActual})

	ob := &OptionalBinder[T]{
		binder:     b,
		name:       name,
		owner:      owner,
		defaultKey: defaultKey,
		actualKey:  actualKey,
	}

	directKey := KeyOf[T]()
	valueKey := KeyOf[Optional[T]]()
	provKey := KeyOf[Optional[Provider[T]]]()
	if name != "" {
		directKey = directKey.Named(name)
		valueKey = valueKey.Named(name)
		provKey = provKey.Named(name)
	}

	providerType := reflect.TypeOf((*Provider[T])(nil)).Elem()

	views := []struct {
		key      Key
		kind     OptionalKind
		optional reflect.Type
	}{
		{directKey, OptionalDirect, nil},
		{valueKey, OptionalValue, reflect.TypeOf((*Optional[T])(nil)).Elem()},
		{provKey, OptionalProvider, reflect.TypeOf((*Optional[Provider[T]])(nil)).Elem()},
	}
	for _, view := range views {
		b.elements = append(b.elements, &OptionalBinderBinding{
			bindingBase:  bindingBase{key: view.key, source: src},
			Owner:        owner,
			Name:         name,
			ElemType:     elem,
			DefaultKey:   defaultKey,
			ActualKey:    actualKey,
			Kind:         view.kind,
			OptionalType: view.optional,
			ProviderType: providerType,
		})
	}
	return ob
}

// SetDefault starts a binding statement for the default slot. The default
// is used when no module calls SetBinding.
func (ob *OptionalBinder[T]) SetDefault() *BindingBuilder {
	return ob.binder.bind(ob.defaultKey, ob.binder.source(2))
}

// SetBinding starts a binding statement for the actual slot, overriding any
// default.
func (ob *OptionalBinder[T]) SetBinding() *BindingBuilder {
	return ob.binder.bind(ob.actualKey, ob.binder.source(2))
}
