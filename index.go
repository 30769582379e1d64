package bindkit

// bindingIndex aggregates bindings from all modules into a key-indexed
// registry with conflict detection. Registration order is preserved; it is
// what gives aggregator views their deterministic declaration order.
type bindingIndex struct {
	bindings map[Key]Binding
	order    []Key
}

func newBindingIndex() *bindingIndex {
	return &bindingIndex{bindings: make(map[Key]Binding)}
}

// register adds a binding, detecting conflicts. Two bindings for the same
// key conflict unless they are structurally equal ignoring source, in which
// case the re-declaration collapses silently (two modules installing a
// common module both declare the same statements).
func (ix *bindingIndex) register(b Binding, errs *Errors) {
	key := b.Key()

	existing, ok := ix.bindings[key]
	if !ok {
		ix.bindings[key] = b
		ix.order = append(ix.order, key)
		return
	}

	if existing.equalTarget(b) {
		return
	}

	errs.addErr(&BindingAlreadySetError{
		Key:            key,
		Existing:       existing.Source(),
		New:            b.Source(),
		ExistingTarget: describeTarget(existing),
		NewTarget:      describeTarget(b),
	})
}

// lookup returns the binding for a key.
func (ix *bindingIndex) lookup(key Key) (Binding, bool) {
	b, ok := ix.bindings[key]
	return b, ok
}

// keys returns the registered keys in registration order.
func (ix *bindingIndex) keys() []Key {
	return ix.order
}

// snapshot copies the index contents for SPI exposure.
func (ix *bindingIndex) snapshot() map[Key]Binding {
	out := make(map[Key]Binding, len(ix.bindings))
	for k, v := range ix.bindings {
		out[k] = v
	}
	return out
}
