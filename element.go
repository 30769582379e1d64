package bindkit

import "fmt"

// Element is one declarative statement produced by evaluating a module:
// a binding, an error statement, a scope registration, a private element
// set, or a policy statement. Elements are the unit of SPI inspection and
// module composition; Bindings are Elements with target information.
//
// The union is closed: inspect elements with AcceptElement.
type Element interface {
	// Source returns the element's source attribution: the module stack
	// and the call site that produced it.
	Source() string

	isElement()
}

// ElementVisitor recovers structured information from elements.
type ElementVisitor interface {
	VisitBinding(Binding) any
	VisitError(*ErrorElement) any
	VisitScopeBinding(*ScopeBindingElement) any
	VisitPrivateElements(*PrivateElements) any
	VisitRequireExplicitBindings(*RequireExplicitBindingsElement) any
}

// AcceptElement dispatches an element to the visitor. Unknown element kinds
// return nil rather than erroring, so visitors stay forward-compatible.
func AcceptElement(e Element, v ElementVisitor) any {
	switch el := e.(type) {
	case Binding:
		return v.VisitBinding(el)
	case *ErrorElement:
		return v.VisitError(el)
	case *ScopeBindingElement:
		return v.VisitScopeBinding(el)
	case *PrivateElements:
		return v.VisitPrivateElements(el)
	case *RequireExplicitBindingsElement:
		return v.VisitRequireExplicitBindings(el)
	default:
		return nil
	}
}

// DefaultElementVisitor returns nil from every visit method.
type DefaultElementVisitor struct{}

func (DefaultElementVisitor) VisitBinding(Binding) any                    { return nil }
func (DefaultElementVisitor) VisitError(*ErrorElement) any                { return nil }
func (DefaultElementVisitor) VisitScopeBinding(*ScopeBindingElement) any  { return nil }
func (DefaultElementVisitor) VisitPrivateElements(*PrivateElements) any   { return nil }
func (DefaultElementVisitor) VisitRequireExplicitBindings(*RequireExplicitBindingsElement) any {
	return nil
}

// elementBase carries source attribution shared by non-binding elements.
type elementBase struct {
	source string
}

func (e *elementBase) Source() string { return e.source }
func (e *elementBase) isElement()     {}

// ErrorElement records a user- or binder-reported configuration error. It
// always fails injector construction.
type ErrorElement struct {
	elementBase

	// Message is the formatted error text.
	Message string

	// Cause is the underlying error, if the statement wrapped one.
	Cause error
}

// ScopeBindingElement registers a custom scope implementation under a name
// referenced by InScope clauses.
type ScopeBindingElement struct {
	elementBase

	Name  string
	Scope Scope
}

// RequireExplicitBindingsElement turns off just-in-time synthesis for the
// injector being configured.
type RequireExplicitBindingsElement struct {
	elementBase
}

// PrivateElements is the element set collected by a private binder: the
// inner elements stay invisible to the enclosing injector except for the
// keys explicitly exposed.
type PrivateElements struct {
	elementBase

	// Elements are the private statements.
	Elements []Element

	// Exposed lists the keys re-exported to the enclosing binder.
	Exposed []Key
}

// Elements evaluates modules into their element sequence without building
// an injector. This is the configuration-inspection entry point: tooling
// can rewrite, filter, or validate the elements and hand them to
// NewFromElements.
func Elements(modules ...Module) []Element {
	binder := newBinder(newIDAllocator())
	for _, m := range modules {
		binder.install(m)
	}
	return binder.finish()
}

// elementsToModule re-packages evaluated elements as a module, the inverse
// of Elements.
type elementModule struct {
	elements []Element
}

// ModuleFromElements returns a module that replays previously collected
// elements verbatim.
func ModuleFromElements(elements ...Element) Module {
	return &elementModule{elements: elements}
}

// Configure implements Module.
func (m *elementModule) Configure(b *Binder) {
	b.replay(m.elements)
}

func (m *elementModule) String() string {
	return fmt.Sprintf("ModuleFromElements(%d elements)", len(m.elements))
}
