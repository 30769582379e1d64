package bindkit

import "fmt"

// scopingKind enumerates the ways a binding can be scoped.
type scopingKind int

const (
	scopingUnscoped scopingKind = iota
	scopingSingleton
	scopingEagerSingleton
	scopingNamed
)

// Scoping identifies the caching policy declared for a binding: unscoped,
// singleton, eager singleton, or a reference to a named custom scope
// registered with Binder.BindScope.
type Scoping struct {
	kind scopingKind
	name string
}

// Unscoped produces a fresh value on every resolution. This is the default.
var Unscoped = Scoping{kind: scopingUnscoped}

// Singleton constructs at most one value per injector, on first use.
var Singleton = Scoping{kind: scopingSingleton}

// EagerSingleton behaves like Singleton but is always constructed at
// injector build time regardless of stage.
var EagerSingleton = Scoping{kind: scopingEagerSingleton}

// InScope references a named custom scope. The scope must be registered via
// Binder.BindScope in some installed module; an unregistered name is a
// configuration error.
func InScope(name string) Scoping {
	return Scoping{kind: scopingNamed, name: name}
}

// Scope names recognized in InjectionScope declarations. A type returning
// one of these maps onto the built-in scoping instead of a custom scope.
const (
	ScopeSingleton      = "singleton"
	ScopeEagerSingleton = "eagerSingleton"
)

// IsUnscoped reports whether the scoping is the default.
func (s Scoping) IsUnscoped() bool { return s.kind == scopingUnscoped }

// IsSingleton reports whether the scoping is singleton (eager or lazy).
func (s Scoping) IsSingleton() bool {
	return s.kind == scopingSingleton || s.kind == scopingEagerSingleton
}

// IsEager reports whether the binding must be constructed at build time.
func (s Scoping) IsEager() bool { return s.kind == scopingEagerSingleton }

// ScopeName returns the referenced custom scope name, or "".
func (s Scoping) ScopeName() string { return s.name }

// String implements fmt.Stringer.
func (s Scoping) String() string {
	switch s.kind {
	case scopingUnscoped:
		return "Unscoped"
	case scopingSingleton:
		return "Singleton"
	case scopingEagerSingleton:
		return "EagerSingleton"
	case scopingNamed:
		return fmt.Sprintf("Scope(%q)", s.name)
	default:
		return fmt.Sprintf("Unknown(%d)", int(s.kind))
	}
}

// Scope is the strategy interface for custom scopes. Apply wraps an
// unscoped creator with the scope's caching policy for the given key.
//
// The returned function is invoked on every resolution of the key; the
// scope decides whether to delegate to unscoped or return a cached value.
// Implementations must be safe for concurrent use and should return an
// OutOfScopeError when no scope context is active.
type Scope interface {
	Apply(key Key, unscoped func() (any, error)) func() (any, error)
}

// ScopeFunc adapts a function to the Scope interface.
type ScopeFunc func(key Key, unscoped func() (any, error)) func() (any, error)

// Apply implements Scope.
func (f ScopeFunc) Apply(key Key, unscoped func() (any, error)) func() (any, error) {
	return f(key, unscoped)
}
