package bindkit

// Module is a unit of configuration: evaluated against a Binder, it
// contributes a sequence of elements. Modules are the sole ingestion
// interface of the engine; the core never parses external formats.
//
// Installing the same module value twice is harmless: structurally equal
// re-declarations collapse in the binding index.
type Module interface {
	Configure(b *Binder)
}

// ModuleFunc adapts a plain function to the Module interface.
type ModuleFunc func(b *Binder)

// Configure implements Module.
func (f ModuleFunc) Configure(b *Binder) { f(b) }

// NewModule groups modules under a name. The name appears in the module
// stack of every source attribution produced while the group evaluates,
// which is what makes duplicate-binding reports readable.
//
//	var storageModule = bindkit.NewModule("storage",
//	    bindkit.ModuleFunc(configureDatabase),
//	    bindkit.ModuleFunc(configureCache),
//	)
func NewModule(name string, modules ...Module) Module {
	return &namedModule{name: name, modules: modules}
}

type namedModule struct {
	name    string
	modules []Module
}

func (m *namedModule) Configure(b *Binder) {
	b.pushModule(m.name)
	defer b.popModule()

	for _, mod := range m.modules {
		if mod == nil {
			continue
		}
		b.install(mod)
	}
}

func (m *namedModule) String() string { return m.name }
