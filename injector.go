package bindkit

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bindkit/bindkit/internal/graph"
	"github.com/bindkit/bindkit/introspect"
)

// Stage selects how aggressively an injector initializes singletons.
type Stage int

const (
	// Development constructs singletons lazily, on first use.
	Development Stage = iota

	// Production constructs every singleton at build time, front-loading
	// failures into injector construction.
	Production
)

func (s Stage) String() string {
	switch s {
	case Development:
		return "Development"
	case Production:
		return "Production"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Options configures injector construction.
type Options struct {
	// Stage selects the singleton initialization policy. Defaults to
	// Development.
	Stage Stage

	// RequireExplicitBindings disables just-in-time synthesis, the same as
	// calling Binder.RequireExplicitBindings in a module.
	RequireExplicitBindings bool

	// Introspector overrides how injection points are discovered. Defaults
	// to the tag-driven introspector.
	Introspector introspect.Introspector

	// Logger receives structured lifecycle events. Defaults to a no-op
	// logger.
	Logger *zap.Logger
}

func normalizeOptions(opts *Options) Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Introspector == nil {
		o.Introspector = introspect.New()
	}
	return o
}

// Injector holds a linked binding set and provisions instances from it.
// Injectors are immutable once built and safe for concurrent use.
type Injector struct {
	id              string
	parent          *Injector
	stage           Stage
	requireExplicit bool
	introspector    introspect.Introspector
	events          *events
	logger          *zap.Logger

	index    *bindingIndex
	scopes   map[string]Scope
	graph    *graph.Graph[Key]
	privates map[*PrivateElements]*Injector

	mu       sync.RWMutex
	jit      map[Key]Binding
	compiled map[Key]*compiledBinding

	singletonMu sync.Mutex
	singletons  map[Key]*singletonSlot

	// blacklist records keys this injector resolved on behalf of child
	// injectors; children must not rebind them.
	blacklist map[Key]string

	disposed atomic.Bool
}

// New builds an injector from the given modules with default options.
// Construction fails atomically: any configuration error returns a
// CreationError enumerating every finding, and no injector is produced.
func New(modules ...Module) (*Injector, error) {
	return NewWithOptions(nil, modules...)
}

// NewWithOptions builds an injector with explicit options.
func NewWithOptions(opts *Options, modules ...Module) (*Injector, error) {
	o := normalizeOptions(opts)
	return build(nil, o, evaluate(o, modules))
}

// NewFromElements builds an injector from pre-evaluated elements, the
// counterpart of Elements for configuration-rewriting tooling.
func NewFromElements(opts *Options, elements []Element) (*Injector, error) {
	return build(nil, normalizeOptions(opts), elements)
}

// NewChild builds a child injector layering the given modules over this
// one. Unbound keys fall back to this injector; keys bound or already
// resolved here cannot be rebound by the child.
func (inj *Injector) NewChild(modules ...Module) (*Injector, error) {
	if inj.disposed.Load() {
		return nil, ErrInjectorDisposed
	}
	o := Options{
		Stage:                   inj.stage,
		RequireExplicitBindings: inj.requireExplicit,
		Introspector:            inj.introspector,
		Logger:                  inj.logger,
	}
	return build(inj, o, evaluate(o, modules))
}

func evaluate(o Options, modules []Module) []Element {
	binder := newBinder(newIDAllocator())
	binder.introspector = o.Introspector
	for _, m := range modules {
		binder.install(m)
	}
	return binder.finish()
}

func build(parent *Injector, o Options, elements []Element) (*Injector, error) {
	inj := &Injector{
		id:              uuid.NewString(),
		parent:          parent,
		stage:           o.Stage,
		requireExplicit: o.RequireExplicitBindings,
		introspector:    o.Introspector,
		events:          newEvents(o.Logger),
		logger:          o.Logger,
		index:           newBindingIndex(),
		scopes:          make(map[string]Scope),
		graph:           graph.New[Key](),
		privates:        make(map[*PrivateElements]*Injector),
		jit:             make(map[Key]Binding),
		compiled:        make(map[Key]*compiledBinding),
		singletons:      make(map[Key]*singletonSlot),
		blacklist:       make(map[Key]string),
	}
	if parent != nil && parent.requireExplicit {
		inj.requireExplicit = true
	}

	errs := &Errors{}
	var privates []*PrivateElements

	for _, el := range elements {
		switch e := el.(type) {
		case Binding:
			if conflict := inj.parentConflict(e.Key()); conflict != "" {
				errs.add(Message{Text: conflict, Sources: []string{e.Source()}})
				continue
			}
			inj.index.register(e, errs)

		case *ErrorElement:
			errs.add(Message{Text: e.Message, Sources: []string{e.Source()}, Cause: e.Cause})

		case *ScopeBindingElement:
			if _, dup := inj.scopes[e.Name]; dup {
				errs.add(Message{
					Text:    fmt.Sprintf("scope %q is bound more than once", e.Name),
					Sources: []string{e.Source()},
				})
				continue
			}
			inj.scopes[e.Name] = e.Scope

		case *RequireExplicitBindingsElement:
			inj.requireExplicit = true

		case *PrivateElements:
			privates = append(privates, e)
		}
	}

	// The injector itself is always bindable.
	inj.index.register(&InstanceBinding{
		bindingBase: bindingBase{key: KeyOf[*Injector](), source: "implicit injector binding"},
		Instance:    inj,
	}, errs)

	for _, pe := range privates {
		inj.buildPrivate(pe, o, errs)
	}

	newLinker(inj, errs).linkAll()

	if err := errs.creationError(); err != nil {
		return nil, err
	}

	if err := inj.initializeEager(); err != nil {
		return nil, err
	}

	parentID := ""
	if parent != nil {
		parentID = parent.id
	}
	inj.events.injectorBuilt(inj.id, parentID, inj.stage, len(inj.index.keys()))
	return inj, nil
}

// buildPrivate builds the injector backing a private element set and
// registers an exposed binding for each re-exported key.
func (inj *Injector) buildPrivate(pe *PrivateElements, o Options, errs *Errors) {
	priv, err := build(inj, o, pe.Elements)
	if err != nil {
		var ce *CreationError
		if errors.As(err, &ce) {
			for _, m := range ce.Messages {
				errs.add(m)
			}
		} else {
			errs.addErr(err, pe.Source())
		}
		return
	}
	inj.privates[pe] = priv

	for _, k := range pe.Exposed {
		if _, ok := priv.index.lookup(k); !ok {
			errs.add(Message{
				Text:    fmt.Sprintf("%s was exposed but is not bound in the private element set", k),
				Sources: []string{pe.Source()},
			})
			continue
		}
		inj.index.register(&ExposedBinding{
			bindingBase: bindingBase{key: k, source: pe.Source()},
			private:     pe,
		}, errs)
	}
}

// parentConflict reports why a key cannot be bound in this injector because
// of an ancestor, or "".
func (inj *Injector) parentConflict(key Key) string {
	for p := inj.parent; p != nil; p = p.parent {
		if b, ok := p.index.lookup(key); ok {
			return fmt.Sprintf("a binding for %s already exists in a parent injector, bound at %s",
				key, b.Source())
		}
		p.mu.RLock()
		_, jitted := p.jit[key]
		childID, listed := p.blacklist[key]
		p.mu.RUnlock()
		if jitted {
			return fmt.Sprintf("a just-in-time binding for %s already exists in a parent injector", key)
		}
		if listed {
			return fmt.Sprintf("unable to bind %s: it was already resolved in a parent injector on behalf of injector %s",
				key, childID)
		}
	}
	return ""
}

// initializeEager constructs eager singletons in dependency order:
// bindings declared AsEagerSingleton always, all singletons in Production.
func (inj *Injector) initializeEager() error {
	order, err := inj.graph.TopologicalOrder()
	if err != nil {
		order = inj.index.keys()
	}

	for _, key := range order {
		b := inj.localBinding(key)
		if b == nil {
			continue
		}
		sc := effectiveScoping(b)
		if !sc.IsEager() && !(inj.stage == Production && sc.IsSingleton()) {
			continue
		}
		if _, gerr := inj.Get(key); gerr != nil {
			return &CreationError{Messages: []Message{{
				Text:    gerr.Error(),
				Sources: []string{b.Source()},
				Cause:   gerr,
			}}}
		}
		inj.events.eagerConstructed(inj.id, key)
	}
	return nil
}

// localBinding returns this injector's explicit or just-in-time binding for
// a key, without consulting ancestors.
func (inj *Injector) localBinding(key Key) Binding {
	if b, ok := inj.index.lookup(key); ok {
		return b
	}
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	return inj.jit[key]
}

// Get resolves the instance for a key.
func (inj *Injector) Get(key Key) (any, error) {
	if inj.disposed.Load() {
		return nil, ErrInjectorDisposed
	}
	v, err := inj.resolve(key, &session{})
	if err != nil {
		inj.events.provisionFailed(inj.id, key, err)
	}
	return v, err
}

// resolve provisions a key within an active session. Failures are wrapped
// into a ProvisionError once, at the deepest failing key, so the error
// carries the full chain from the original request down to the failure.
func (inj *Injector) resolve(key Key, s *session) (any, error) {
	c, err := inj.compiledFor(key)
	if err != nil {
		chain := append(s.snapshot(), key)
		return nil, &ProvisionError{Key: key, Chain: chain, Cause: err}
	}

	s.push(key)
	v, err := c.provide(s)
	if err != nil {
		var pe *ProvisionError
		if !errors.As(err, &pe) {
			err = &ProvisionError{Key: key, Chain: s.snapshot(), Cause: err}
		}
	}
	s.pop()
	return v, err
}

// compiledFor returns the cached provider closure for a key, linking it on
// demand for keys first requested after construction. A failed link is
// rolled back completely: every closure it compiled and every graph node it
// added is discarded, so unrelated keys keep resolving afterwards.
func (inj *Injector) compiledFor(key Key) (*compiledBinding, error) {
	inj.mu.RLock()
	c, ok := inj.compiled[key]
	inj.mu.RUnlock()
	if ok {
		return c, nil
	}

	inj.mu.Lock()
	defer inj.mu.Unlock()
	if c, ok := inj.compiled[key]; ok {
		return c, nil
	}

	cp := inj.graph.Checkpoint()
	errs := &Errors{}
	lk := newLinker(inj, errs)
	lk.link(key, "")

	rollback := func() {
		for _, k := range lk.compiledKeys {
			delete(inj.compiled, k)
		}
		inj.graph.Restore(cp)
	}
	if !errs.empty() {
		rollback()
		return nil, errs.first()
	}
	if ce := inj.graph.DetectCycle(); ce != nil {
		rollback()
		return nil, &CircularDependencyError{Key: ce.Node, Path: ce.Path}
	}

	c, ok = inj.compiled[key]
	if !ok {
		return nil, &MissingImplementationError{Key: key, available: inj.availableKeys()}
	}
	return c, nil
}

// construct builds an instance from a type spec: allocate, inject fields,
// run the post-construct hook.
func (inj *Injector) construct(spec *introspect.TypeSpec, s *session) (any, error) {
	pv := reflect.New(spec.Elem)
	if err := inj.injectFields(pv.Elem(), spec, s); err != nil {
		return nil, err
	}

	if spec.PostConstruct {
		if pc, ok := pv.Interface().(introspect.PostConstructor); ok {
			if err := pc.PostConstruct(); err != nil {
				return nil, fmt.Errorf("post-construct for %s: %w", formatType(spec.Type), err)
			}
		}
	}

	if spec.Type.Kind() == reflect.Pointer {
		return pv.Interface(), nil
	}
	return pv.Elem().Interface(), nil
}

// injectFields populates a struct value's injectable fields.
func (inj *Injector) injectFields(v reflect.Value, spec *introspect.TypeSpec, s *session) error {
	for _, f := range spec.Fields {
		dep := dependencyForField(f)
		fv := v.FieldByIndex(f.Index)

		if f.Lazy {
			depKey := dep.Key
			fv.Set(makeProviderValue(f.Type, func() (any, error) {
				return inj.Get(depKey)
			}))
			continue
		}

		dv, err := inj.resolve(dep.Key, s)
		if err != nil {
			if dep.Optional && isMissingFor(err, dep.Key) {
				continue
			}
			return err
		}
		if dv == nil {
			continue
		}

		dt := reflect.TypeOf(dv)
		if !dt.AssignableTo(f.Type) {
			return &TypeMismatchError{
				Expected: f.Type,
				Actual:   dt,
				Context:  fmt.Sprintf("field %s of %s", f.Name, formatType(spec.Elem)),
			}
		}
		fv.Set(reflect.ValueOf(dv))
	}
	return nil
}

// isMissingFor reports whether err is a missing-binding failure for exactly
// the given key, as opposed to a failure somewhere deeper in its graph.
func isMissingFor(err error, key Key) bool {
	var pe *ProvisionError
	if errors.As(err, &pe) {
		return pe.Key == key && errors.Is(pe.Cause, ErrNoSuchBinding)
	}
	return errors.Is(err, ErrNoSuchBinding)
}

// InjectMembers populates the injectable fields of an existing struct. The
// target must be a non-nil pointer to struct.
func (inj *Injector) InjectMembers(target any) error {
	if inj.disposed.Load() {
		return ErrInjectorDisposed
	}
	if target == nil {
		return fmt.Errorf("cannot inject members into nil")
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("inject members target must be a non-nil pointer to struct, got %s",
			formatType(reflect.TypeOf(target)))
	}

	spec, err := inj.introspector.Introspect(rv.Type())
	if err != nil {
		return err
	}
	return inj.injectFields(rv.Elem(), spec, &session{})
}

// noteChildResolution records that this injector served a key on behalf of
// a descendant; later attempts to bind it in a child are rejected.
func (inj *Injector) noteChildResolution(key Key, childID string) {
	inj.mu.Lock()
	if _, ok := inj.blacklist[key]; !ok {
		inj.blacklist[key] = childID
	}
	inj.mu.Unlock()
}

func (inj *Injector) singletonFor(key Key) *singletonSlot {
	inj.singletonMu.Lock()
	defer inj.singletonMu.Unlock()
	slot, ok := inj.singletons[key]
	if !ok {
		slot = &singletonSlot{}
		inj.singletons[key] = slot
	}
	return slot
}

// findScope resolves a named scope, consulting ancestors.
func (inj *Injector) findScope(name string) (Scope, bool) {
	for p := inj; p != nil; p = p.parent {
		if sc, ok := p.scopes[name]; ok {
			return sc, true
		}
	}
	return nil, false
}

func (inj *Injector) hasJIT(key Key) bool {
	inj.mu.RLock()
	defer inj.mu.RUnlock()
	_, ok := inj.jit[key]
	return ok
}

// availableKeys lists the visible bound keys, for did-you-mean suggestions.
// Hidden aggregator keys are excluded.
func (inj *Injector) availableKeys() []Key {
	var out []Key
	for p := inj; p != nil; p = p.parent {
		for _, k := range p.index.keys() {
			switch k.Qualifier().(type) {
			case elementQualifier, mapEntryQualifier:
				continue
			}
			out = append(out, k)
		}
	}
	return out
}

// Bindings returns a snapshot of this injector's bindings, explicit and
// just-in-time, keyed by binding key.
func (inj *Injector) Bindings() map[Key]Binding {
	out := inj.index.snapshot()
	inj.mu.RLock()
	for k, b := range inj.jit {
		out[k] = b
	}
	inj.mu.RUnlock()
	return out
}

// BindingFor returns the binding serving a key, consulting ancestors.
func (inj *Injector) BindingFor(key Key) (Binding, bool) {
	for p := inj; p != nil; p = p.parent {
		if b := p.localBinding(key); b != nil {
			return b, true
		}
	}
	return nil, false
}

// ID returns the injector's unique identifier.
func (inj *Injector) ID() string { return inj.id }

// Parent returns the parent injector, or nil.
func (inj *Injector) Parent() *Injector { return inj.parent }

// Stage returns the injector's stage.
func (inj *Injector) Stage() Stage { return inj.stage }

// GraphDOT renders the linked dependency graph in Graphviz DOT format.
func (inj *Injector) GraphDOT() string {
	return inj.graph.DOT("bindings", func(k Key) string { return k.String() })
}

// Dispose marks the injector unusable. Subsequent resolutions fail with
// ErrInjectorDisposed. Dispose is idempotent.
func (inj *Injector) Dispose() {
	inj.disposed.Store(true)
	for _, priv := range inj.privates {
		priv.Dispose()
	}
}

// Get resolves the unqualified key for T.
func Get[T any](inj *Injector) (T, error) {
	return typed[T](inj.Get(KeyOf[T]()))
}

// GetNamed resolves the key for T qualified by name.
func GetNamed[T any](inj *Injector, name string) (T, error) {
	return typed[T](inj.Get(KeyOf[T]().Named(name)))
}

// GetKey resolves an explicit key, asserting the result to T.
func GetKey[T any](inj *Injector, key Key) (T, error) {
	return typed[T](inj.Get(key))
}

// MustGet is Get for wiring code that treats failures as fatal.
func MustGet[T any](inj *Injector) T {
	v, err := Get[T](inj)
	if err != nil {
		panic(err)
	}
	return v
}

func typed[T any](v any, err error) (T, error) {
	var zero T
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &TypeMismatchError{
			Expected: reflect.TypeOf((*T)(nil)).Elem(),
			Actual:   reflect.TypeOf(v),
			Context:  "typed resolution",
		}
	}
	return t, nil
}
