// Package bindkit provides a declarative dependency injection engine for Go.
// Modules declare bindings against typed keys, and an Injector links those
// bindings into a validated object graph with scope-aware provisioning.
//
// # Overview
//
// bindkit separates configuration from resolution. The library provides:
//   - Typed, qualifier-aware binding keys
//   - A module system for composing binding declarations
//   - Explicit bindings, linked bindings, provider bindings, and constants
//   - Just-in-time synthesis of bindings for concrete types
//   - Cycle detection with lazy Provider indirection as the escape hatch
//   - Singleton and custom scopes with thread-safe provisioning
//   - Multibinder, MapBinder, and OptionalBinder aggregation across modules
//   - Aggregated, source-attributed configuration errors
//
// # Basic Usage
//
// Declare bindings in a module, build an injector, and request instances:
//
//	mod := bindkit.ModuleFunc(func(b *bindkit.Binder) {
//	    b.Bind(bindkit.KeyOf[Logger]()).ToInstance(NewLogger())
//	    b.Bind(bindkit.KeyOf[*UserService]()).In(bindkit.Singleton)
//	})
//
//	injector, err := bindkit.New(mod)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	svc, err := bindkit.Get[*UserService](injector)
//
// # Keys
//
// A Key addresses one binding: a type plus an optional qualifier. Two keys
// are equal iff their type and qualifier are equal, so independent modules
// can target the same logical binding:
//
//	bindkit.KeyOf[*Database]()                 // unqualified
//	bindkit.KeyOf[*Database]().Named("ro")     // named qualifier
//
// # Just-In-Time Bindings
//
// When a requested key has no explicit binding and its type is a concrete
// struct (or pointer to struct), the injector synthesizes a binding from the
// type's injection points. Fields are marked with struct tags:
//
//	type UserService struct {
//	    DB    *Database `inject:""`
//	    Cache Cache     `inject:"" named:"redis"`
//	    Audit Auditor   `inject:"" optional:"true"`
//	}
//
// Injectors built with RequireExplicitBindings refuse JIT synthesis and
// report a not-bound error instead.
//
// # Cycles
//
// A dependency cycle is a configuration error unless at least one edge in
// the cycle is lazy. A field of type Provider[T] is a lazy edge: the
// provider is handed over during injection but T is not constructed until
// Get is called.
//
//	type A struct {
//	    B bindkit.Provider[*B] `inject:""` // breaks the A -> B -> A cycle
//	}
//
// # Scopes
//
// Unscoped bindings produce a fresh value per resolution. Singleton bindings
// construct exactly once per injector, even under concurrent first access.
// Custom scopes are registered with BindScope and referenced with InScope:
//
//	b.BindScope("request", requestScope)
//	b.Bind(key).In(bindkit.InScope("request"))
//
// Injectors built in the Production stage construct all singletons eagerly,
// in dependency order, at build time.
//
// # Aggregation Binders
//
// Independent modules can contribute entries to one logical collection:
//
//	set := bindkit.NewSetBinder[Handler](b)
//	set.Add().ToInstance(loginHandler)
//
//	m := bindkit.NewMapBinder[string, Codec](b)
//	m.Add("json").ToInstance(jsonCodec)
//
//	opt := bindkit.NewOptionalBinder[Tracer](b)
//	opt.SetDefault().ToInstance(noopTracer)
//
// The set view is resolved as []Handler in declaration order, the map view
// as map[string]Codec, and the optional view as Optional[Tracer].
//
// # Error Handling
//
// Injector construction either succeeds or fails with a single CreationError
// enumerating every discovered problem with its source attribution.
// Provisioning failures surface as ProvisionError carrying the dependency
// chain that was active when the failure occurred.
//
// # Thread Safety
//
// Injector construction runs on one goroutine. After construction all
// provisioning operations are safe for concurrent use.
package bindkit
