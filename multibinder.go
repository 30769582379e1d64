package bindkit

import (
	"reflect"
	"strconv"
)

// MultibinderBinding produces a set-style collection from independently
// contributed elements. One binding serves []T, a sibling serves
// []Provider[T]. Contributions live under hidden uniquely qualified keys;
// this binding collects them in declaration order at provision time.
type MultibinderBinding struct {
	bindingBase

	// Owner identifies the aggregate; contributions carry it in their
	// hidden qualifier.
	Owner string

	// SetName is the set's name qualifier, or "".
	SetName string

	// ElemType is the element type T.
	ElemType reflect.Type

	// SliceType is the produced collection type: []T, or []Provider[T]
	// when Providers is set.
	SliceType reflect.Type

	// Providers reports whether elements are wrapped in lazy provider
	// handles instead of being constructed.
	Providers bool

	// ProviderType is the Provider[T] handle type for the providers view.
	ProviderType reflect.Type

	// deps is filled in during linking from the contribution scan.
	deps []Dependency
}

func (b *MultibinderBinding) Dependencies() []Dependency { return b.deps }
func (b *MultibinderBinding) Accept(v BindingVisitor) any {
	return v.VisitMultibinder(b)
}
func (b *MultibinderBinding) equalTarget(other Binding) bool {
	o, ok := other.(*MultibinderBinding)
	return ok && b.Owner == o.Owner && b.Providers == o.Providers
}

// Multibinder contributes elements to a set of T. Multiple modules may
// create binders for the same set; their contributions merge. The assembled
// set is injectable as []T, or as []Provider[T] for lazy elements, in
// contribution declaration order.
type Multibinder[T any] struct {
	binder *Binder
	name   string
	owner  string
	elem   reflect.Type
}

// NewSetBinder returns a multibinder for the unnamed set of T.
func NewSetBinder[T any](b *Binder) *Multibinder[T] {
	return newSetBinder[T](b, "", b.source(2))
}

// NewSetBinderNamed returns a multibinder for the set of T qualified by
// name.
func NewSetBinderNamed[T any](b *Binder, name string) *Multibinder[T] {
	return newSetBinder[T](b, name, b.source(2))
}

func newSetBinder[T any](b *Binder, name, src string) *Multibinder[T] {
	elem := reflect.TypeOf((*T)(nil)).Elem()

	owner := "set<" + elem.String() + ">"
	if name != "" {
		owner += " named " + strconv.Quote(name)
	}

	m := &Multibinder[T]{binder: b, name: name, owner: owner, elem: elem}

	setKey := KeyOf[[]T]()
	provKey := KeyOf[[]Provider[T]]()
	if name != "" {
		setKey = setKey.Named(name)
		provKey = provKey.Named(name)
	}
	providerType := reflect.TypeOf((*Provider[T])(nil)).Elem()

	// Registering the same set from several modules re-declares these two
	// bindings; the index collapses them by owner.
	b.elements = append(b.elements,
		&MultibinderBinding{
			bindingBase: bindingBase{key: setKey, source: src},
			Owner:       owner,
			SetName:     name,
			ElemType:    elem,
			SliceType:   reflect.TypeOf((*[]T)(nil)).Elem(),
		},
		&MultibinderBinding{
			bindingBase:  bindingBase{key: provKey, source: src},
			Owner:        owner,
			SetName:      name,
			ElemType:     elem,
			SliceType:    reflect.TypeOf((*[]Provider[T])(nil)).Elem(),
			Providers:    true,
			ProviderType: providerType,
		},
	)
	return m
}

// Add starts a binding statement for one set element. The returned builder
// accepts any target clause: ToInstance, To, ToProvider, and scoping.
func (m *Multibinder[T]) Add() *BindingBuilder {
	id := m.binder.ids.allocate()
	key := KeyFor(m.elem).Qualified(elementQualifier{owner: m.owner, uniqueID: id})
	return m.binder.bind(key, m.binder.source(2))
}

// AddInstance contributes a precomputed element.
func (m *Multibinder[T]) AddInstance(v T) *Multibinder[T] {
	id := m.binder.ids.allocate()
	key := KeyFor(m.elem).Qualified(elementQualifier{owner: m.owner, uniqueID: id})
	m.binder.bind(key, m.binder.source(2)).ToInstance(v)
	return m
}

// PermitDuplicates allows equal elements in the set. The first occurrence
// wins; later equal contributions are dropped silently. Without this,
// duplicate elements fail provision.
func (m *Multibinder[T]) PermitDuplicates() *Multibinder[T] {
	m.binder.bind(permitDuplicatesKey(m.owner), m.binder.source(2)).ToInstance(true)
	return m
}
