package bindkit

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/bindkit/bindkit/introspect"
)

// idAllocator hands out the unique IDs that distinguish aggregator
// contributions. It is owned by one injector-construction context and
// threaded through binder evaluation; there is no global counter.
type idAllocator struct {
	next uint64
}

func newIDAllocator() *idAllocator { return &idAllocator{} }

func (a *idAllocator) allocate() uint64 {
	a.next++
	return a.next
}

// Binder collects elements while modules evaluate. A Binder is only valid
// during Configure; modules must not retain it.
type Binder struct {
	elements     []Element
	moduleStack  []string
	ids          *idAllocator
	introspector introspect.Introspector

	// installed dedupes comparable module values installed more than once.
	installed map[any]bool

	// children are open private binders, sealed when evaluation finishes.
	children []*PrivateBinder
}

func newBinder(ids *idAllocator) *Binder {
	return &Binder{
		ids:          ids,
		introspector: introspect.New(),
		installed:    make(map[any]bool),
	}
}

// Install evaluates another module in place, sharing this binder's module
// stack and ID allocator. Installing the same comparable module value twice
// evaluates it once.
func (b *Binder) Install(m Module) {
	b.install(m)
}

func (b *Binder) install(m Module) {
	if m == nil {
		return
	}

	if reflect.TypeOf(m).Comparable() {
		if b.installed[m] {
			return
		}
		b.installed[m] = true
	}

	m.Configure(b)
}

// Bind starts a binding statement for the given key. With no target clause
// the statement declares an untargetted binding, deferring to just-in-time
// resolution while still letting the module attach a scoping.
func (b *Binder) Bind(key Key) *BindingBuilder {
	return b.bind(key, b.source(2))
}

func (b *Binder) bind(key Key, src string) *BindingBuilder {
	if key.IsZero() {
		b.addError(&ErrorElement{
			elementBase: elementBase{source: src},
			Message:     "cannot bind the zero key",
		})
		// Degenerate builder; its slot is detached from the element list.
		return &BindingBuilder{binder: b, detached: true, source: src}
	}

	slot := len(b.elements)
	builder := &BindingBuilder{
		binder: b,
		key:    key,
		slot:   slot,
		source: src,
	}
	b.elements = append(b.elements, builder.build())
	return builder
}

// BindConstant binds a named string constant. The constant satisfies the
// named string key directly and is eligible for conversion to numeric,
// boolean, duration, and text-unmarshaling keys sharing the same name.
func (b *Binder) BindConstant(name string) *ConstantBuilder {
	return &ConstantBuilder{
		binder: b,
		name:   name,
		source: b.source(2),
	}
}

// BindScope registers a custom scope under a name referenced by InScope.
func (b *Binder) BindScope(name string, scope Scope) {
	src := b.source(2)
	if name == "" {
		b.addError(&ErrorElement{
			elementBase: elementBase{source: src},
			Message:     "scope name cannot be empty",
		})
		return
	}
	if scope == nil {
		b.addError(&ErrorElement{
			elementBase: elementBase{source: src},
			Message:     fmt.Sprintf("scope %q cannot be bound to nil", name),
		})
		return
	}

	b.elements = append(b.elements, &ScopeBindingElement{
		elementBase: elementBase{source: src},
		Name:        name,
		Scope:       scope,
	})
}

// RequireExplicitBindings disables just-in-time synthesis for the injector
// under construction. Keys without explicit bindings fail with a not-bound
// error even when a usable constructor exists.
func (b *Binder) RequireExplicitBindings() {
	b.elements = append(b.elements, &RequireExplicitBindingsElement{
		elementBase: elementBase{source: b.source(2)},
	})
}

// AddError records a configuration error. Injector construction will fail
// with this message among the aggregated errors.
func (b *Binder) AddError(err error) {
	b.addError(&ErrorElement{
		elementBase: elementBase{source: b.source(2)},
		Message:     err.Error(),
		Cause:       err,
	})
}

// AddErrorf records a formatted configuration error.
func (b *Binder) AddErrorf(format string, args ...any) {
	b.addError(&ErrorElement{
		elementBase: elementBase{source: b.source(2)},
		Message:     fmt.Sprintf(format, args...),
	})
}

func (b *Binder) addError(e *ErrorElement) {
	b.elements = append(b.elements, e)
}

// NewPrivateBinder opens a private element set. Bindings declared on the
// returned binder are invisible to the enclosing injector except for keys
// passed to Expose.
func (b *Binder) NewPrivateBinder() *PrivateBinder {
	src := b.source(2)
	inner := newBinder(b.ids)
	inner.introspector = b.introspector
	inner.moduleStack = append([]string(nil), b.moduleStack...)

	pe := &PrivateElements{elementBase: elementBase{source: src}}
	b.elements = append(b.elements, pe)
	pb := &PrivateBinder{Binder: inner, parent: b, collected: pe}
	b.children = append(b.children, pb)
	return pb
}

// replay appends previously collected elements verbatim.
func (b *Binder) replay(elements []Element) {
	b.elements = append(b.elements, elements...)
}

func (b *Binder) pushModule(name string) {
	b.moduleStack = append(b.moduleStack, name)
}

func (b *Binder) popModule() {
	b.moduleStack = b.moduleStack[:len(b.moduleStack)-1]
}

// finish seals any open private binders and returns the collected elements.
func (b *Binder) finish() []Element {
	for _, child := range b.children {
		child.Seal()
	}
	return b.elements
}

// source renders the module stack plus the caller's file:line.
func (b *Binder) source(skip int) string {
	var sb strings.Builder
	if len(b.moduleStack) > 0 {
		sb.WriteString(strings.Join(b.moduleStack, " > "))
	}

	if _, file, line, ok := runtime.Caller(skip); ok {
		if sb.Len() > 0 {
			sb.WriteString(" at ")
		}
		short := file
		if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
			short = file[idx+1:]
		}
		fmt.Fprintf(&sb, "%s:%d", short, line)
	}

	if sb.Len() == 0 {
		return "unknown source"
	}
	return sb.String()
}

// PrivateBinder collects a private element set. See Binder.NewPrivateBinder.
type PrivateBinder struct {
	*Binder
	parent    *Binder
	collected *PrivateElements
}

// Expose re-exports a privately bound key to the enclosing binder.
func (pb *PrivateBinder) Expose(key Key) {
	pb.collected.Exposed = append(pb.collected.Exposed, key)
}

// Seal finalizes the private element set. Further statements on the
// private binder are ignored. Seal is idempotent and is also applied
// implicitly when the enclosing module finishes evaluating.
func (pb *PrivateBinder) Seal() {
	pb.collected.Elements = pb.Binder.finish()
}

// BindingBuilder accumulates one binding statement. Target clauses replace
// the statement's element in place, so the last clause wins and In can be
// called before or after the target clause.
type BindingBuilder struct {
	binder   *Binder
	key      Key
	slot     int
	source   string
	detached bool

	scoping Scoping
	target  func(base bindingBase) Binding
}

// build renders the current builder state as a binding element.
func (bb *BindingBuilder) build() Binding {
	base := bindingBase{key: bb.key, scoping: bb.scoping, source: bb.source}
	if bb.target == nil {
		return &UntargettedBinding{bindingBase: base}
	}
	return bb.target(base)
}

func (bb *BindingBuilder) commit() {
	if bb.detached {
		return
	}
	bb.binder.elements[bb.slot] = bb.build()
}

// reject cancels the statement: the slot's element is replaced with the
// error, so no half-built binding survives alongside it, and later clauses
// on the builder are ignored.
func (bb *BindingBuilder) reject(msg string, cause error) *BindingBuilder {
	bb.binder.elements[bb.slot] = &ErrorElement{
		elementBase: elementBase{source: bb.source},
		Message:     msg,
		Cause:       cause,
	}
	bb.detached = true
	return bb
}

// ToInstance binds the key to a precomputed value.
func (bb *BindingBuilder) ToInstance(instance any) *BindingBuilder {
	if bb.detached {
		return bb
	}
	if instance == nil {
		return bb.reject(fmt.Sprintf("binding for %s targets a nil instance", bb.key), nil)
	}
	if it := reflect.TypeOf(instance); !it.AssignableTo(bb.key.Type()) {
		return bb.reject(fmt.Sprintf("instance of type %s is not assignable to %s",
			formatType(it), bb.key), nil)
	}

	bb.target = func(base bindingBase) Binding {
		return &InstanceBinding{bindingBase: base, Instance: instance}
	}
	bb.commit()
	return bb
}

// To links the key to another key: resolving this key resolves the target.
func (bb *BindingBuilder) To(target Key) *BindingBuilder {
	if bb.detached {
		return bb
	}
	if target == bb.key {
		return bb.reject(fmt.Sprintf("binding for %s links to itself", bb.key), nil)
	}

	bb.target = func(base bindingBase) Binding {
		return &LinkedKeyBinding{bindingBase: base, Target: target}
	}
	bb.commit()
	return bb
}

// ToType links the key to the unqualified key of a concrete type,
// shorthand for To(KeyFor(t)).
func (bb *BindingBuilder) ToType(t reflect.Type) *BindingBuilder {
	return bb.To(KeyFor(t))
}

// ToProviderKey delegates the key to another key whose instances are
// provider handles; resolving this key resolves that key and calls Get.
func (bb *BindingBuilder) ToProviderKey(providerKey Key) *BindingBuilder {
	if bb.detached {
		return bb
	}
	bb.target = func(base bindingBase) Binding {
		return &ProviderKeyBinding{bindingBase: base, ProviderKey: providerKey}
	}
	bb.commit()
	return bb
}

// ToProvider binds the key to a constructor function. Parameters are
// resolved from the graph: plain parameters by unqualified type, provider
// handle parameters lazily, and a single tagged struct parameter as a
// parameter object. The function may return (T) or (T, error).
func (bb *BindingBuilder) ToProvider(ctor any) *BindingBuilder {
	if bb.detached {
		return bb
	}
	binding, err := analyzeConstructor(bb.binder.introspector, bb.key, ctor)
	if err != nil {
		return bb.reject(fmt.Sprintf("binding for %s: %v", bb.key, err), err)
	}

	bb.target = func(base bindingBase) Binding {
		clone := *binding
		clone.bindingBase = base
		return &clone
	}
	bb.commit()
	return bb
}

// ToConstructed binds the key to an explicit constructor binding for its
// own concrete type, bypassing the explicit-bindings-required policy while
// keeping constructor semantics.
func (bb *BindingBuilder) ToConstructed() *BindingBuilder {
	if bb.detached {
		return bb
	}
	spec, err := bb.binder.introspector.Introspect(bb.key.Type())
	if err != nil {
		return bb.reject(fmt.Sprintf("binding for %s: %v", bb.key, err), err)
	}

	deps := specDependencies(spec)
	bb.target = func(base bindingBase) Binding {
		return &ConstructorBinding{bindingBase: base, Spec: spec, deps: deps}
	}
	bb.commit()
	return bb
}

// In declares the binding's scoping.
func (bb *BindingBuilder) In(scoping Scoping) *BindingBuilder {
	bb.scoping = scoping
	bb.commit()
	return bb
}

// AsEagerSingleton scopes the binding as a singleton constructed at
// injector build time regardless of stage.
func (bb *BindingBuilder) AsEagerSingleton() *BindingBuilder {
	return bb.In(EagerSingleton)
}

// ConstantBuilder completes a BindConstant statement.
type ConstantBuilder struct {
	binder *Binder
	name   string
	source string
}

// ToValue binds the named constant to its string value.
func (cb *ConstantBuilder) ToValue(value string) {
	key := KeyOf[string]().Named(cb.name)
	cb.binder.elements = append(cb.binder.elements, &InstanceBinding{
		bindingBase: bindingBase{key: key, source: cb.source},
		Instance:    value,
	})
}

// specDependencies converts a type spec's fields into dependency edges.
func specDependencies(spec *introspect.TypeSpec) []Dependency {
	deps := make([]Dependency, 0, len(spec.Fields))
	for _, f := range spec.Fields {
		deps = append(deps, dependencyForField(f))
	}
	return deps
}

// dependencyForField maps one injectable field onto its dependency edge.
func dependencyForField(f introspect.Field) Dependency {
	key := KeyFor(f.Elem)
	if name, ok := f.Qualifier.(string); ok {
		key = key.Named(name)
	} else if f.Qualifier != nil {
		key = key.Qualified(f.Qualifier)
	}
	return Dependency{Key: key, Optional: f.Optional, Lazy: f.Lazy}
}

// analyzeConstructor inspects a provider function and derives its
// dependency edges.
func analyzeConstructor(in introspect.Introspector, key Key, ctor any) (*ProviderInstanceBinding, error) {
	if ctor == nil {
		return nil, ErrConstructorNil
	}

	v := reflect.ValueOf(ctor)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: got %s", ErrConstructorNotFunc, formatType(t))
	}
	if v.IsNil() {
		return nil, ErrConstructorNil
	}

	switch t.NumOut() {
	case 1:
		if t.Out(0) == errorType {
			return nil, fmt.Errorf("constructor returns only an error")
		}
	case 2:
		if t.Out(1) != errorType {
			return nil, fmt.Errorf("constructor's second return must be error, got %s", formatType(t.Out(1)))
		}
	default:
		return nil, fmt.Errorf("constructor must return (T) or (T, error), has %d returns", t.NumOut())
	}

	if !t.Out(0).AssignableTo(key.Type()) {
		return nil, fmt.Errorf("constructor returns %s, not assignable to %s",
			formatType(t.Out(0)), key)
	}

	binding := &ProviderInstanceBinding{
		ctor:         v,
		hasErrReturn: t.NumOut() == 2,
	}

	// A single struct parameter with inject-tagged fields is a parameter
	// object; its fields are the real dependencies.
	if t.NumIn() == 1 && t.In(0).Kind() == reflect.Struct && hasInjectTags(t.In(0)) {
		spec, err := in.Introspect(t.In(0))
		if err != nil {
			return nil, err
		}
		binding.paramSpec = spec
		binding.deps = specDependencies(spec)
		return binding, nil
	}

	for i := 0; i < t.NumIn(); i++ {
		pt := t.In(i)
		if elem, ok := providerElemType(pt); ok {
			binding.deps = append(binding.deps, Dependency{Key: KeyFor(elem), Lazy: true})
			continue
		}
		binding.deps = append(binding.deps, Dependency{Key: KeyFor(pt)})
	}
	return binding, nil
}

func hasInjectTags(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		if _, ok := t.Field(i).Tag.Lookup("inject"); ok {
			return true
		}
	}
	return false
}
