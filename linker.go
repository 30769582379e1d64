package bindkit

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/bindkit/bindkit/internal/graph"
	"github.com/bindkit/bindkit/introspect"
)

// session tracks the key chain of one resolution call, for error reporting.
type session struct {
	chain []Key
}

func (s *session) push(k Key) { s.chain = append(s.chain, k) }
func (s *session) pop()       { s.chain = s.chain[:len(s.chain)-1] }

func (s *session) snapshot() []Key {
	return append([]Key(nil), s.chain...)
}

// compiledBinding is a linked, scope-wrapped provider closure for one key.
// Closures are compiled once and cached; repeated resolutions reuse them.
type compiledBinding struct {
	binding Binding
	provide func(s *session) (any, error)
}

// linker compiles bindings into provider closures. It walks the dependency
// graph depth-first, synthesizing just-in-time bindings for unbound keys and
// accumulating findings instead of failing on the first one.
type linker struct {
	inj     *Injector
	errs    *Errors
	linking map[Key]bool

	// compiledKeys records every key this linker compiled, so a failed
	// post-build link can be rolled back key by key.
	compiledKeys []Key
}

func newLinker(inj *Injector, errs *Errors) *linker {
	return &linker{inj: inj, errs: errs, linking: make(map[Key]bool)}
}

// linkAll links every explicitly bound key, then reports non-lazy cycles.
func (l *linker) linkAll() {
	for _, key := range l.inj.index.keys() {
		l.link(key, "")
	}
	if ce := l.inj.graph.DetectCycle(); ce != nil {
		l.errs.addErr(&CircularDependencyError{Key: ce.Node, Path: ce.Path})
	}
}

// link compiles the provider closure for one key, linking its dependencies
// first. Re-entry on a key already being linked returns immediately; real
// cycles are reported by the graph pass, which knows which edges are lazy.
func (l *linker) link(key Key, requiredBy string) bool {
	inj := l.inj
	if _, ok := inj.compiled[key]; ok {
		return true
	}
	if l.linking[key] {
		return true
	}
	l.linking[key] = true
	defer delete(l.linking, key)

	out, err := l.lookup(key)
	if err != nil {
		var sources []string
		if requiredBy != "" {
			sources = append(sources, requiredBy)
		}
		l.errs.addErr(err, sources...)
		return false
	}

	if out.delegate != nil {
		p := out.delegate
		l.compiledKeys = append(l.compiledKeys, key)
		inj.compiled[key] = &compiledBinding{
			provide: func(s *session) (any, error) {
				c, err := p.compiledFor(key)
				if err != nil {
					return nil, err
				}
				return c.provide(s)
			},
		}
		p.noteChildResolution(key, inj.id)
		inj.events.delegatedToParent(inj.id, key)
		return true
	}

	b := out.binding
	if ub, ok := b.(*UntargettedBinding); ok {
		derived, derr := l.deriveUntargetted(key, ub)
		if derr != nil {
			l.errs.addErr(derr, ub.Source())
			return false
		}
		b = derived
	}
	if verr := l.validate(key, b); verr != nil {
		l.errs.addErr(verr, b.Source())
		return false
	}

	deps := l.dependenciesOf(b)
	edges := make([]graph.Edge[Key], 0, len(deps))
	for _, d := range deps {
		edges = append(edges, graph.Edge[Key]{To: d.Key, Lazy: d.Lazy})
	}
	inj.graph.AddNode(key, edges)

	for _, d := range deps {
		if d.Optional {
			// Absent optional dependencies are legal; link only when the
			// key is resolvable at all.
			if _, lerr := l.lookup(d.Key); lerr != nil {
				continue
			}
		}
		l.link(d.Key, b.Source())
	}

	l.compiledKeys = append(l.compiledKeys, key)
	inj.compiled[key] = l.compile(key, b)
	return true
}

// lookupOutcome is the result of resolving a key to a binding: either a
// binding owned by this injector, or a delegation to an ancestor.
type lookupOutcome struct {
	binding  Binding
	delegate *Injector
}

// lookup finds or synthesizes the binding for a key. Resolution order:
// local explicit bindings, local just-in-time bindings, ancestor bindings,
// constant conversion, just-in-time synthesis. Lookup is side-effect free
// apart from memoizing synthesized bindings.
func (l *linker) lookup(key Key) (lookupOutcome, error) {
	inj := l.inj

	if b, ok := inj.index.lookup(key); ok {
		return lookupOutcome{binding: b}, nil
	}
	if b, ok := inj.jit[key]; ok {
		return lookupOutcome{binding: b}, nil
	}

	for p := inj.parent; p != nil; p = p.parent {
		if _, ok := p.index.lookup(key); ok {
			return lookupOutcome{delegate: p}, nil
		}
		if p.hasJIT(key) {
			return lookupOutcome{delegate: p}, nil
		}
	}

	if cc, cerr, ok := l.convertedConstant(key); ok {
		if cerr != nil {
			return lookupOutcome{}, cerr
		}
		inj.jit[key] = cc
		return lookupOutcome{binding: cc}, nil
	}

	b, err := l.jitSynthesize(key)
	if err != nil {
		return lookupOutcome{}, err
	}
	inj.jit[key] = b
	inj.events.jitSynthesized(inj.id, key)
	return lookupOutcome{binding: b}, nil
}

// jitSynthesize builds a just-in-time constructor binding for an unbound
// key. Qualified keys and non-constructable types are never synthesized.
func (l *linker) jitSynthesize(key Key) (Binding, error) {
	inj := l.inj

	if inj.requireExplicit {
		return nil, &NotBoundError{Key: key}
	}
	if key.HasQualifier() {
		return nil, &MissingImplementationError{
			Key:       key,
			Reason:    "qualified keys are never constructed just-in-time",
			available: inj.availableKeys(),
		}
	}
	if !introspect.Constructable(key.Type()) {
		return nil, &MissingImplementationError{
			Key:       key,
			Reason:    fmt.Sprintf("%s is not a constructable type", formatType(key.Type())),
			available: inj.availableKeys(),
		}
	}

	spec, err := inj.introspector.Introspect(key.Type())
	if err != nil {
		var nce *introspect.NotConstructableError
		if errors.As(err, &nce) {
			return nil, &MissingConstructorError{Type: nce.Type, Reason: nce.Reason}
		}
		return nil, err
	}

	return &ConstructorBinding{
		bindingBase: bindingBase{key: key, source: "just-in-time binding for " + key.String()},
		Spec:        spec,
		deps:        specDependencies(spec),
		JIT:         true,
	}, nil
}

// convertedConstant synthesizes a typed constant binding when the missing
// key is named, its type supports conversion, and a string constant of the
// same name is bound in this injector or an ancestor.
func (l *linker) convertedConstant(key Key) (Binding, error, bool) {
	name := key.Name()
	if name == "" || !convertibleConstant(key.Type()) {
		return nil, nil, false
	}

	srcKey := KeyFor(stringType).Named(name)
	for p := l.inj; p != nil; p = p.parent {
		b, ok := p.index.lookup(srcKey)
		if !ok {
			continue
		}
		ib, ok := b.(*InstanceBinding)
		if !ok {
			return nil, nil, false
		}
		raw, ok := ib.Instance.(string)
		if !ok {
			return nil, nil, false
		}

		v, err := convertConstant(key.Type(), raw)
		if err != nil {
			return nil, fmt.Errorf("constant binding for %s: %v (constant bound at %s)",
				key, err, ib.Source()), true
		}
		return &ConvertedConstantBinding{
			bindingBase: bindingBase{key: key, source: ib.Source()},
			SourceKey:   srcKey,
			Raw:         raw,
			Value:       v,
		}, nil, true
	}
	return nil, nil, false
}

// deriveUntargetted turns an untargetted binding into a constructor binding
// for the key's own type, keeping the declared scoping and source.
func (l *linker) deriveUntargetted(key Key, ub *UntargettedBinding) (Binding, error) {
	if key.HasQualifier() {
		return nil, &MissingImplementationError{
			Key:       key,
			Reason:    "an untargetted binding for a qualified key has nothing to construct",
			available: l.inj.availableKeys(),
		}
	}
	if !introspect.Constructable(key.Type()) {
		return nil, &MissingImplementationError{
			Key:       key,
			Reason:    fmt.Sprintf("%s is not a constructable type", formatType(key.Type())),
			available: l.inj.availableKeys(),
		}
	}

	spec, err := l.inj.introspector.Introspect(key.Type())
	if err != nil {
		var nce *introspect.NotConstructableError
		if errors.As(err, &nce) {
			return nil, &MissingConstructorError{Type: nce.Type, Reason: nce.Reason}
		}
		return nil, err
	}

	return &ConstructorBinding{
		bindingBase: bindingBase{key: key, scoping: ub.Scoping(), source: ub.Source()},
		Spec:        spec,
		deps:        specDependencies(spec),
	}, nil
}

// validate checks structural constraints that only hold relative to the key
// being served.
func (l *linker) validate(key Key, b Binding) error {
	if pk, ok := b.(*ProviderKeyBinding); ok {
		elem, isProvider := providerElemType(pk.ProviderKey.Type())
		if !isProvider {
			return fmt.Errorf("binding for %s delegates to %s, which is not a provider handle type",
				key, pk.ProviderKey)
		}
		if !elem.AssignableTo(key.Type()) {
			return fmt.Errorf("binding for %s delegates to %s, whose element type %s is not assignable to %s",
				key, pk.ProviderKey, formatType(elem), formatType(key.Type()))
		}
	}
	return nil
}

// dependenciesOf returns a binding's dependency edges. Aggregator bindings
// compute theirs from the contribution scan; the result is also stored on
// the binding for SPI inspection.
func (l *linker) dependenciesOf(b Binding) []Dependency {
	ix := l.inj.index

	switch t := b.(type) {
	case *MultibinderBinding:
		keys := contributionKeys(ix, t.Owner)
		deps := make([]Dependency, 0, len(keys))
		for _, k := range keys {
			deps = append(deps, Dependency{Key: k, Lazy: t.Providers})
		}
		t.deps = deps
		return deps

	case *MapBinderBinding:
		keys := mapContributionKeys(ix, t.Owner)
		lazy := t.Kind == MapKindProviderMap
		deps := make([]Dependency, 0, len(keys))
		for _, k := range keys {
			deps = append(deps, Dependency{Key: k, Lazy: lazy})
		}
		t.deps = deps
		return deps

	case *OptionalBinderBinding:
		slot, bound := optionalSlot(ix, t)
		if !bound {
			t.deps = nil
			return nil
		}
		deps := []Dependency{{Key: slot, Lazy: t.Kind == OptionalProvider}}
		t.deps = deps
		return deps
	}

	return b.Dependencies()
}

// optionalSlot picks the slot an optional binder resolves through: the
// actual binding when set, otherwise the default.
func optionalSlot(ix *bindingIndex, b *OptionalBinderBinding) (Key, bool) {
	if _, ok := ix.lookup(b.ActualKey); ok {
		return b.ActualKey, true
	}
	if _, ok := ix.lookup(b.DefaultKey); ok {
		return b.DefaultKey, true
	}
	return Key{}, false
}

// compile builds the scope-wrapped provider closure for a binding.
func (l *linker) compile(key Key, b Binding) *compiledBinding {
	raw := l.rawProvider(key, b)
	return &compiledBinding{
		binding: b,
		provide: l.applyScope(key, effectiveScoping(b), raw),
	}
}

// effectiveScoping resolves a binding's scoping, falling back to the
// type-declared scope of constructor bindings when no explicit scoping was
// given.
func effectiveScoping(b Binding) Scoping {
	sc := b.Scoping()
	if sc.IsUnscoped() {
		if cb, ok := b.(*ConstructorBinding); ok {
			return scopingForName(cb.Spec.Scope)
		}
	}
	return sc
}

func scopingForName(name string) Scoping {
	switch name {
	case "":
		return Unscoped
	case ScopeSingleton:
		return Singleton
	case ScopeEagerSingleton:
		return EagerSingleton
	default:
		return InScope(name)
	}
}

// applyScope wraps a raw provider closure with the binding's caching policy.
func (l *linker) applyScope(key Key, sc Scoping, raw func(*session) (any, error)) func(*session) (any, error) {
	inj := l.inj

	switch {
	case sc.IsUnscoped():
		return raw

	case sc.IsSingleton():
		slot := inj.singletonFor(key)
		return func(s *session) (any, error) {
			return slot.provide(func() (any, error) { return raw(s) })
		}

	default:
		scope, ok := inj.findScope(sc.ScopeName())
		if !ok {
			l.errs.addErr(&ScopeNotFoundError{Name: sc.ScopeName(), Key: key})
			return raw
		}
		// The chain restarts at the scope boundary: the custom scope owns
		// when the unscoped creator runs.
		scoped := scope.Apply(key, func() (any, error) {
			return raw(&session{})
		})
		return func(*session) (any, error) { return scoped() }
	}
}

// rawProvider builds the unscoped provider closure for a binding variant.
func (l *linker) rawProvider(key Key, b Binding) func(*session) (any, error) {
	inj := l.inj

	switch t := b.(type) {
	case *InstanceBinding:
		v := t.Instance
		return func(*session) (any, error) { return v, nil }

	case *ConvertedConstantBinding:
		v := t.Value
		return func(*session) (any, error) { return v, nil }

	case *LinkedKeyBinding:
		target := t.Target
		return func(s *session) (any, error) { return inj.resolve(target, s) }

	case *ProviderKeyBinding:
		pkey := t.ProviderKey
		return func(s *session) (any, error) {
			h, err := inj.resolve(pkey, s)
			if err != nil {
				return nil, err
			}
			return callProviderGet(h)
		}

	case *ProviderInstanceBinding:
		return l.compileProviderInstance(t)

	case *ConstructorBinding:
		spec := t.Spec
		return func(s *session) (any, error) { return inj.construct(spec, s) }

	case *ExposedBinding:
		priv := inj.privates[t.private]
		return func(s *session) (any, error) { return priv.resolve(key, s) }

	case *MultibinderBinding:
		return l.compileMultibinder(t)

	case *MapBinderBinding:
		return l.compileMapBinder(t)

	case *OptionalBinderBinding:
		return l.compileOptionalBinder(key, t)
	}

	return func(*session) (any, error) {
		return nil, fmt.Errorf("binding for %s has an unsupported variant %T", key, b)
	}
}

func (l *linker) compileProviderInstance(b *ProviderInstanceBinding) func(*session) (any, error) {
	inj := l.inj
	ctor := b.Constructor()
	ctorType := ctor.Type()

	if b.paramSpec != nil {
		spec := b.paramSpec
		return func(s *session) (any, error) {
			pv := reflect.New(spec.Elem)
			if err := inj.injectFields(pv.Elem(), spec, s); err != nil {
				return nil, err
			}
			return callConstructor(ctor, []reflect.Value{pv.Elem()}, b.hasErrReturn)
		}
	}

	deps := b.deps
	return func(s *session) (any, error) {
		args := make([]reflect.Value, ctorType.NumIn())
		for i := 0; i < ctorType.NumIn(); i++ {
			pt := ctorType.In(i)
			d := deps[i]
			if d.Lazy {
				depKey := d.Key
				args[i] = makeProviderValue(pt, func() (any, error) { return inj.Get(depKey) })
				continue
			}
			dv, err := inj.resolve(d.Key, s)
			if err != nil {
				return nil, err
			}
			if dv == nil {
				args[i] = reflect.Zero(pt)
			} else {
				args[i] = reflect.ValueOf(dv)
			}
		}
		return callConstructor(ctor, args, b.hasErrReturn)
	}
}

func callConstructor(ctor reflect.Value, args []reflect.Value, hasErrReturn bool) (any, error) {
	outs := ctor.Call(args)
	if hasErrReturn {
		if e := outs[1].Interface(); e != nil {
			return nil, e.(error)
		}
	}
	return outs[0].Interface(), nil
}

// callProviderGet invokes the Get method of a resolved provider handle.
func callProviderGet(handle any) (any, error) {
	if handle == nil {
		return nil, ErrProviderUnset
	}
	m := reflect.ValueOf(handle).MethodByName("Get")
	if !m.IsValid() {
		return nil, fmt.Errorf("%s is not a provider handle", formatType(reflect.TypeOf(handle)))
	}
	outs := m.Call(nil)
	if e := outs[1].Interface(); e != nil {
		return nil, e.(error)
	}
	return outs[0].Interface(), nil
}

func (l *linker) compileMultibinder(b *MultibinderBinding) func(*session) (any, error) {
	inj := l.inj
	keys := contributionKeys(inj.index, b.Owner)
	permit := duplicatesPermitted(inj.index, b.Owner)

	if b.Providers {
		return func(*session) (any, error) {
			out := reflect.MakeSlice(b.SliceType, 0, len(keys))
			for _, ck := range keys {
				depKey := ck
				handle := makeProviderValue(b.ProviderType, func() (any, error) {
					return inj.Get(depKey)
				})
				out = reflect.Append(out, handle)
			}
			return out.Interface(), nil
		}
	}

	return func(s *session) (any, error) {
		// A fresh slice on every call: unscoped contributions re-resolve.
		out := reflect.MakeSlice(b.SliceType, 0, len(keys))
		var seen []any
		for _, ck := range keys {
			v, err := inj.resolve(ck, s)
			if err != nil {
				return nil, err
			}
			if isNilValue(v) {
				return nil, fmt.Errorf("Set injection failed due to null element bound at %s",
					bindingSource(inj.index, ck))
			}

			duplicate := false
			for _, sv := range seen {
				if sameValue(sv, v) {
					duplicate = true
					break
				}
			}
			if duplicate {
				if permit {
					continue
				}
				return nil, fmt.Errorf("Set injection failed due to duplicated element %q",
					fmt.Sprint(v))
			}

			seen = append(seen, v)
			out = reflect.Append(out, reflect.ValueOf(v))
		}
		return out.Interface(), nil
	}
}

func (l *linker) compileMapBinder(b *MapBinderBinding) func(*session) (any, error) {
	inj := l.inj
	keys := mapContributionKeys(inj.index, b.Owner)
	permit := duplicatesPermitted(inj.index, b.Owner)

	if b.Kind == MapKindProviderMap {
		return func(*session) (any, error) {
			out := reflect.MakeMapWithSize(b.Produced, len(keys))
			contributed := make(map[any]Key, len(keys))
			for _, ck := range keys {
				q := ck.Qualifier().(mapEntryQualifier)
				if prior, dup := contributed[q.mapKey]; dup {
					if permit {
						continue
					}
					// Values stay unresolved behind their handles, so the
					// conflict names the contributing bindings instead.
					return nil, fmt.Errorf("Map injection failed due to duplicated key %q, bound at %s and %s",
						fmt.Sprint(q.mapKey), bindingSource(inj.index, prior), bindingSource(inj.index, ck))
				}
				contributed[q.mapKey] = ck
				depKey := ck
				handle := makeProviderValue(b.ProviderType, func() (any, error) {
					return inj.Get(depKey)
				})
				out.SetMapIndex(reflect.ValueOf(q.mapKey), handle)
			}
			return out.Interface(), nil
		}
	}

	return func(s *session) (any, error) {
		type entry struct {
			mapKey any
			value  any
		}
		var entries []entry
		firstValue := make(map[any]any, len(keys))

		for _, ck := range keys {
			q := ck.Qualifier().(mapEntryQualifier)
			v, err := inj.resolve(ck, s)
			if err != nil {
				return nil, err
			}
			if isNilValue(v) {
				return nil, fmt.Errorf("Map injection failed due to null value for key %q",
					fmt.Sprint(q.mapKey))
			}

			if first, dup := firstValue[q.mapKey]; dup {
				if !permit {
					return nil, duplicatedKeyError(q.mapKey, first, v)
				}
				if b.Kind != MapKindMultimap {
					// First contribution wins for the flat views.
					continue
				}
			} else {
				firstValue[q.mapKey] = v
			}
			entries = append(entries, entry{mapKey: q.mapKey, value: v})
		}

		switch b.Kind {
		case MapKindEntries:
			out := reflect.MakeSlice(b.Produced, 0, len(entries))
			for _, e := range entries {
				ev := reflect.New(b.EntryType).Elem()
				ev.FieldByName("Key").Set(reflect.ValueOf(e.mapKey))
				ev.FieldByName("Value").Set(reflect.ValueOf(e.value))
				out = reflect.Append(out, ev)
			}
			return out.Interface(), nil

		case MapKindMultimap:
			out := reflect.MakeMapWithSize(b.Produced, len(entries))
			sliceType := reflect.SliceOf(b.ValueType)
			for _, e := range entries {
				mk := reflect.ValueOf(e.mapKey)
				group := out.MapIndex(mk)
				if !group.IsValid() {
					group = reflect.MakeSlice(sliceType, 0, 1)
				}
				out.SetMapIndex(mk, reflect.Append(group, reflect.ValueOf(e.value)))
			}
			return out.Interface(), nil

		default:
			out := reflect.MakeMapWithSize(b.Produced, len(entries))
			for _, e := range entries {
				out.SetMapIndex(reflect.ValueOf(e.mapKey), reflect.ValueOf(e.value))
			}
			return out.Interface(), nil
		}
	}
}

func duplicatedKeyError(mapKey, first, second any) error {
	return fmt.Errorf("Map injection failed due to duplicated key %q, with values %q and %q",
		fmt.Sprint(mapKey), fmt.Sprint(first), fmt.Sprint(second))
}

func (l *linker) compileOptionalBinder(key Key, b *OptionalBinderBinding) func(*session) (any, error) {
	inj := l.inj
	slot, bound := optionalSlot(inj.index, b)

	switch b.Kind {
	case OptionalDirect:
		if !bound {
			err := &MissingImplementationError{
				Key:       key,
				Reason:    "no actual or default binding is set",
				available: inj.availableKeys(),
			}
			return func(*session) (any, error) { return nil, err }
		}
		return func(s *session) (any, error) { return inj.resolve(slot, s) }

	case OptionalProvider:
		if !bound {
			absent := reflect.Zero(b.OptionalType).Interface()
			return func(*session) (any, error) { return absent, nil }
		}
		return func(*session) (any, error) {
			handle := makeProviderValue(b.ProviderType, func() (any, error) {
				return inj.Get(slot)
			})
			ov := reflect.New(b.OptionalType).Elem()
			ov.FieldByName("Value").Set(handle)
			ov.FieldByName("Present").SetBool(true)
			return ov.Interface(), nil
		}

	default: // OptionalValue
		if !bound {
			absent := reflect.Zero(b.OptionalType).Interface()
			return func(*session) (any, error) { return absent, nil }
		}
		return func(s *session) (any, error) {
			v, err := inj.resolve(slot, s)
			if err != nil {
				return nil, err
			}
			ov := reflect.New(b.OptionalType).Elem()
			if isNilValue(v) {
				// A binding that produces nil yields an absent value; the
				// provider view stays present because the handle exists.
				return ov.Interface(), nil
			}
			ov.FieldByName("Value").Set(reflect.ValueOf(v))
			ov.FieldByName("Present").SetBool(true)
			return ov.Interface(), nil
		}
	}
}

// bindingSource renders a binding's source for provision error text.
func bindingSource(ix *bindingIndex, key Key) string {
	if b, ok := ix.lookup(key); ok {
		return b.Source()
	}
	return "unknown source"
}

var stringType = reflect.TypeOf("")
