package bindkit

import (
	"reflect"
	"strconv"
)

// MapEntry is one key/value pair of an assembled map, in contribution
// declaration order. The []MapEntry view exists because Go map iteration is
// unordered; consumers that need the declared order inject the entries view
// instead of the map view.
type MapEntry[K comparable, V any] struct {
	Key   K
	Value V
}

// MapBinderKind identifies which view of the map a MapBinderBinding serves.
type MapBinderKind int

const (
	// MapKindMap is the plain map[K]V view.
	MapKindMap MapBinderKind = iota

	// MapKindEntries is the ordered []MapEntry[K, V] view.
	MapKindEntries

	// MapKindProviderMap is the lazy map[K]Provider[V] view.
	MapKindProviderMap

	// MapKindMultimap is the map[K][]V view, grouping duplicate keys.
	MapKindMultimap
)

// MapBinderBinding produces one view of a contributed map. Contributions
// live under hidden qualified keys carrying the map key; this binding
// collects them at provision time.
type MapBinderBinding struct {
	bindingBase

	// Owner identifies the aggregate.
	Owner string

	// MapName is the map's name qualifier, or "".
	MapName string

	// KeyType and ValueType are K and V.
	KeyType   reflect.Type
	ValueType reflect.Type

	// Kind selects the produced view.
	Kind MapBinderKind

	// Produced is the collection type this binding assembles.
	Produced reflect.Type

	// ProviderType is the Provider[V] handle type for the provider view.
	ProviderType reflect.Type

	// EntryType is the MapEntry[K, V] struct type for the entries view.
	EntryType reflect.Type

	deps []Dependency
}

func (b *MapBinderBinding) Dependencies() []Dependency { return b.deps }
func (b *MapBinderBinding) Accept(v BindingVisitor) any {
	return v.VisitMapBinder(b)
}
func (b *MapBinderBinding) equalTarget(other Binding) bool {
	o, ok := other.(*MapBinderBinding)
	return ok && b.Owner == o.Owner && b.Kind == o.Kind
}

// MapBinder contributes entries to a map from K to V. Multiple modules may
// create binders for the same map; their contributions merge. The assembled
// map is injectable as map[K]V, as ordered []MapEntry[K, V], as lazy
// map[K]Provider[V], and as map[K][]V.
type MapBinder[K comparable, V any] struct {
	binder  *Binder
	name    string
	owner   string
	valType reflect.Type
}

// NewMapBinder returns a map binder for the unnamed map from K to V.
func NewMapBinder[K comparable, V any](b *Binder) *MapBinder[K, V] {
	return newMapBinder[K, V](b, "", b.source(2))
}

// NewMapBinderNamed returns a map binder for the map qualified by name.
func NewMapBinderNamed[K comparable, V any](b *Binder, name string) *MapBinder[K, V] {
	return newMapBinder[K, V](b, name, b.source(2))
}

func newMapBinder[K comparable, V any](b *Binder, name, src string) *MapBinder[K, V] {
	keyType := reflect.TypeOf((*K)(nil)).Elem()
	valType := reflect.TypeOf((*V)(nil)).Elem()

	owner := "map<" + keyType.String() + ", " + valType.String() + ">"
	if name != "" {
		owner += " named " + strconv.Quote(name)
	}

	m := &MapBinder[K, V]{binder: b, name: name, owner: owner, valType: valType}

	mapKey := KeyOf[map[K]V]()
	entriesKey := KeyOf[[]MapEntry[K, V]]()
	provKey := KeyOf[map[K]Provider[V]]()
	multiKey := KeyOf[map[K][]V]()
	if name != "" {
		mapKey = mapKey.Named(name)
		entriesKey = entriesKey.Named(name)
		provKey = provKey.Named(name)
		multiKey = multiKey.Named(name)
	}

	providerType := reflect.TypeOf((*Provider[V])(nil)).Elem()
	entryType := reflect.TypeOf((*MapEntry[K, V])(nil)).Elem()

	views := []struct {
		key      Key
		kind     MapBinderKind
		produced reflect.Type
	}{
		{mapKey, MapKindMap, reflect.TypeOf((*map[K]V)(nil)).Elem()},
		{entriesKey, MapKindEntries, reflect.TypeOf((*[]MapEntry[K, V])(nil)).Elem()},
		{provKey, MapKindProviderMap, reflect.TypeOf((*map[K]Provider[V])(nil)).Elem()},
		{multiKey, MapKindMultimap, reflect.TypeOf((*map[K][]V)(nil)).Elem()},
	}
	for _, view := range views {
		b.elements = append(b.elements, &MapBinderBinding{
			bindingBase:  bindingBase{key: view.key, source: src},
			Owner:        owner,
			MapName:      name,
			KeyType:      keyType,
			ValueType:    valType,
			Kind:         view.kind,
			Produced:     view.produced,
			ProviderType: providerType,
			EntryType:    entryType,
		})
	}
	return m
}

// Add starts a binding statement for the value under k. The returned
// builder accepts any target clause.
func (m *MapBinder[K, V]) Add(k K) *BindingBuilder {
	id := m.binder.ids.allocate()
	key := KeyFor(m.valType).Qualified(mapEntryQualifier{owner: m.owner, uniqueID: id, mapKey: k})
	return m.binder.bind(key, m.binder.source(2))
}

// AddInstance contributes a precomputed value under k.
func (m *MapBinder[K, V]) AddInstance(k K, v V) *MapBinder[K, V] {
	id := m.binder.ids.allocate()
	key := KeyFor(m.valType).Qualified(mapEntryQualifier{owner: m.owner, uniqueID: id, mapKey: k})
	m.binder.bind(key, m.binder.source(2)).ToInstance(v)
	return m
}

// PermitDuplicates allows multiple contributions under the same map key.
// The map[K]V view keeps the first contribution for each key; the multimap
// view groups all of them. Without this, duplicate keys fail provision.
func (m *MapBinder[K, V]) PermitDuplicates() *MapBinder[K, V] {
	m.binder.bind(permitDuplicatesKey(m.owner), m.binder.source(2)).ToInstance(true)
	return m
}
