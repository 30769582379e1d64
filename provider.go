package bindkit

import (
	"reflect"
)

// Provider is a lazy handle on a binding. Injecting a Provider[T] instead of
// a T defers construction until Get is called, which is also what makes a
// dependency edge lazy for cycle detection.
//
// Provider is a value type with an exported Resolve field so the injector
// can populate it reflectively at injection points. Application code should
// only call Get.
type Provider[T any] struct {
	// Resolve is set by the injector. Treat it as opaque.
	Resolve func() (any, error)
}

// Get resolves and returns an instance of T.
func (p Provider[T]) Get() (T, error) {
	var zero T
	if p.Resolve == nil {
		return zero, ErrProviderUnset
	}

	v, err := p.Resolve()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}

	typed, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Expected: reflect.TypeOf((*T)(nil)).Elem(),
			Actual:   reflect.TypeOf(v),
			Context:  "provider resolution",
		}
	}
	return typed, nil
}

// ProviderFor returns a provider that resolves the unqualified key for T
// from the injector on every Get call.
func ProviderFor[T any](inj *Injector) Provider[T] {
	return KeyedProviderFor[T](inj, KeyOf[T]())
}

// KeyedProviderFor returns a provider bound to an explicit key. The key's
// type must be assignable to T.
func KeyedProviderFor[T any](inj *Injector, key Key) Provider[T] {
	return Provider[T]{Resolve: func() (any, error) { return inj.Get(key) }}
}

// providerElemType reports the element type X when t is the reflect type of
// some Provider[X]. Detection is structural: a struct carrying a Resolve
// field of type func() (any, error) and a Get method returning (X, error).
// This keeps the introspection independent of the generic type's name.
func providerElemType(t reflect.Type) (reflect.Type, bool) {
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
	// Receiver counts as the first input on concrete-type methods.
	if mt.NumIn() != 1 || mt.NumOut() != 2 || mt.Out(1) != errorType {
		return nil, false
	}
	return mt.Out(0), true
}

// makeProviderValue builds a value of the given Provider[X] reflect type
// with its Resolve field pointing at the supplied closure.
func makeProviderValue(providerType reflect.Type, resolve func() (any, error)) reflect.Value {
	v := reflect.New(providerType).Elem()
	v.FieldByName("Resolve").Set(reflect.ValueOf(resolve))
	return v
}

var (
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
	resolveFuncType = reflect.TypeOf((func() (any, error))(nil))
)
