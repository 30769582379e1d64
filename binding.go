package bindkit

import (
	"fmt"
	"reflect"

	"github.com/bindkit/bindkit/introspect"
)

// Dependency is one edge in the object graph: the consuming binding needs
// the value addressed by Key. Optional dependencies resolve to the zero
// value when unbound. Lazy dependencies are satisfied with a provider
// handle and do not participate in cycle detection.
type Dependency struct {
	Key      Key
	Optional bool
	Lazy     bool
}

// Binding is the resolved association of a Key with a recipe for producing
// its value. The concrete variants form a closed union; external tooling
// inspects them through BindingVisitor.
type Binding interface {
	Element

	// Key returns the key this binding serves.
	Key() Key

	// Scoping returns the declared scoping.
	Scoping() Scoping

	// Dependencies returns the binding's declared or inferred dependency
	// edges.
	Dependencies() []Dependency

	// Accept dispatches on the concrete variant.
	Accept(v BindingVisitor) any

	// equalTarget reports structural equality of targets, ignoring source
	// attribution. Structurally equal re-declarations collapse silently.
	equalTarget(other Binding) bool
}

// BindingVisitor recovers structured information from a binding without
// depending on internal representations. VisitOther is invoked for variants
// a visitor does not recognize; returning nil there is the expected default.
type BindingVisitor interface {
	VisitInstance(*InstanceBinding) any
	VisitLinkedKey(*LinkedKeyBinding) any
	VisitProviderKey(*ProviderKeyBinding) any
	VisitProviderInstance(*ProviderInstanceBinding) any
	VisitConstructor(*ConstructorBinding) any
	VisitConvertedConstant(*ConvertedConstantBinding) any
	VisitUntargetted(*UntargettedBinding) any
	VisitExposed(*ExposedBinding) any
	VisitMultibinder(*MultibinderBinding) any
	VisitMapBinder(*MapBinderBinding) any
	VisitOptionalBinder(*OptionalBinderBinding) any
	VisitOther(Binding) any
}

// DefaultBindingVisitor returns nil from every visit method. Embed it to
// implement only the variants a tool cares about.
type DefaultBindingVisitor struct{}

func (DefaultBindingVisitor) VisitInstance(*InstanceBinding) any                 { return nil }
func (DefaultBindingVisitor) VisitLinkedKey(*LinkedKeyBinding) any               { return nil }
func (DefaultBindingVisitor) VisitProviderKey(*ProviderKeyBinding) any           { return nil }
func (DefaultBindingVisitor) VisitProviderInstance(*ProviderInstanceBinding) any { return nil }
func (DefaultBindingVisitor) VisitConstructor(*ConstructorBinding) any           { return nil }
func (DefaultBindingVisitor) VisitConvertedConstant(*ConvertedConstantBinding) any {
	return nil
}
func (DefaultBindingVisitor) VisitUntargetted(*UntargettedBinding) any       { return nil }
func (DefaultBindingVisitor) VisitExposed(*ExposedBinding) any               { return nil }
func (DefaultBindingVisitor) VisitMultibinder(*MultibinderBinding) any       { return nil }
func (DefaultBindingVisitor) VisitMapBinder(*MapBinderBinding) any           { return nil }
func (DefaultBindingVisitor) VisitOptionalBinder(*OptionalBinderBinding) any { return nil }
func (DefaultBindingVisitor) VisitOther(Binding) any                         { return nil }

// bindingBase carries the fields shared by every binding variant.
type bindingBase struct {
	key     Key
	scoping Scoping
	source  string
}

func (b *bindingBase) Key() Key         { return b.key }
func (b *bindingBase) Scoping() Scoping { return b.scoping }
func (b *bindingBase) Source() string   { return b.source }
func (b *bindingBase) isElement()       {}

// InstanceBinding binds a key to a precomputed value.
type InstanceBinding struct {
	bindingBase
	Instance any
}

func (b *InstanceBinding) Dependencies() []Dependency { return nil }
func (b *InstanceBinding) Accept(v BindingVisitor) any {
	return v.VisitInstance(b)
}
func (b *InstanceBinding) equalTarget(other Binding) bool {
	o, ok := other.(*InstanceBinding)
	return ok && b.scoping == o.scoping && sameValue(b.Instance, o.Instance)
}

// LinkedKeyBinding delegates a key to another key.
type LinkedKeyBinding struct {
	bindingBase
	Target Key
}

func (b *LinkedKeyBinding) Dependencies() []Dependency {
	return []Dependency{{Key: b.Target}}
}
func (b *LinkedKeyBinding) Accept(v BindingVisitor) any {
	return v.VisitLinkedKey(b)
}
func (b *LinkedKeyBinding) equalTarget(other Binding) bool {
	o, ok := other.(*LinkedKeyBinding)
	return ok && b.scoping == o.scoping && b.Target == o.Target
}

// ProviderKeyBinding delegates a key to another key whose instances are
// provider handles; resolution calls Get on the resolved provider.
type ProviderKeyBinding struct {
	bindingBase
	ProviderKey Key
}

func (b *ProviderKeyBinding) Dependencies() []Dependency {
	return []Dependency{{Key: b.ProviderKey}}
}
func (b *ProviderKeyBinding) Accept(v BindingVisitor) any {
	return v.VisitProviderKey(b)
}
func (b *ProviderKeyBinding) equalTarget(other Binding) bool {
	o, ok := other.(*ProviderKeyBinding)
	return ok && b.scoping == o.scoping && b.ProviderKey == o.ProviderKey
}

// ProviderInstanceBinding wraps a caller-supplied constructor function whose
// parameters are resolved from the graph.
type ProviderInstanceBinding struct {
	bindingBase
	ctor reflect.Value
	deps []Dependency

	// hasErrReturn records whether the constructor's last return is error.
	hasErrReturn bool

	// paramSpec is non-nil when the constructor takes a single parameter
	// object whose fields are the real dependencies.
	paramSpec *introspect.TypeSpec
}

func (b *ProviderInstanceBinding) Dependencies() []Dependency { return b.deps }
func (b *ProviderInstanceBinding) Accept(v BindingVisitor) any {
	return v.VisitProviderInstance(b)
}
func (b *ProviderInstanceBinding) equalTarget(other Binding) bool {
	o, ok := other.(*ProviderInstanceBinding)
	return ok && b.scoping == o.scoping && b.ctor.Pointer() == o.ctor.Pointer()
}

// Constructor returns the reflected constructor function.
func (b *ProviderInstanceBinding) Constructor() reflect.Value { return b.ctor }

// ConstructorBinding is synthesized from a concrete type's injection points,
// either just-in-time or through Binder.Bind(...).ToConstructed().
type ConstructorBinding struct {
	bindingBase
	Spec *introspect.TypeSpec
	deps []Dependency

	// JIT reports whether the binding was synthesized on demand rather
	// than declared by a module.
	JIT bool
}

func (b *ConstructorBinding) Dependencies() []Dependency { return b.deps }
func (b *ConstructorBinding) Accept(v BindingVisitor) any {
	return v.VisitConstructor(b)
}
func (b *ConstructorBinding) equalTarget(other Binding) bool {
	o, ok := other.(*ConstructorBinding)
	return ok && b.scoping == o.scoping && b.Spec.Type == o.Spec.Type
}

// ConvertedConstantBinding is a typed constant derived from a bound string
// constant by type conversion.
type ConvertedConstantBinding struct {
	bindingBase

	// SourceKey is the string constant binding the value was converted from.
	SourceKey Key

	// Raw is the original string.
	Raw string

	// Value is the converted constant.
	Value any
}

func (b *ConvertedConstantBinding) Dependencies() []Dependency { return nil }
func (b *ConvertedConstantBinding) Accept(v BindingVisitor) any {
	return v.VisitConvertedConstant(b)
}
func (b *ConvertedConstantBinding) equalTarget(other Binding) bool {
	o, ok := other.(*ConvertedConstantBinding)
	return ok && b.scoping == o.scoping && b.Raw == o.Raw && sameValue(b.Value, o.Value)
}

// UntargettedBinding declares a key bindable while deferring the target to
// just-in-time synthesis. It exists so a module can attach a scoping to a
// concrete type without restating the type as a target.
type UntargettedBinding struct {
	bindingBase
}

func (b *UntargettedBinding) Dependencies() []Dependency { return nil }
func (b *UntargettedBinding) Accept(v BindingVisitor) any {
	return v.VisitUntargetted(b)
}
func (b *UntargettedBinding) equalTarget(other Binding) bool {
	o, ok := other.(*UntargettedBinding)
	return ok && b.scoping == o.scoping
}

// ExposedBinding re-exports a binding from a private binder into its
// enclosing binder.
type ExposedBinding struct {
	bindingBase

	// private is the element set the exposed key resolves inside.
	private *PrivateElements
}

func (b *ExposedBinding) Dependencies() []Dependency { return nil }
func (b *ExposedBinding) Accept(v BindingVisitor) any {
	return v.VisitExposed(b)
}
func (b *ExposedBinding) equalTarget(other Binding) bool {
	o, ok := other.(*ExposedBinding)
	return ok && b.private == o.private
}

// PrivateElements returns the private element set the binding exposes from.
func (b *ExposedBinding) PrivateElements() *PrivateElements { return b.private }

// sameValue compares two values by == when they are comparable, falling
// back to DeepEqual otherwise. Used for idempotent re-declaration checks
// and duplicate detection in aggregators.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// describeTarget renders a binding's target for conflict reporting, so a
// duplicate-binding error names what each declaration bound, not just where.
func describeTarget(b Binding) string {
	switch t := b.(type) {
	case *InstanceBinding:
		return "instance of " + formatType(reflect.TypeOf(t.Instance))
	case *LinkedKeyBinding:
		return "linked key " + t.Target.String()
	case *ProviderKeyBinding:
		return "provider key " + t.ProviderKey.String()
	case *ProviderInstanceBinding:
		return "provider " + t.ctor.Type().String()
	case *ConstructorBinding:
		return "constructor for " + formatType(t.Spec.Type)
	case *ConvertedConstantBinding:
		return fmt.Sprintf("constant %q", t.Raw)
	case *UntargettedBinding:
		return "untargetted binding"
	case *MultibinderBinding:
		return t.Owner
	case *MapBinderBinding:
		return t.Owner
	case *OptionalBinderBinding:
		return t.Owner
	case *ExposedBinding:
		return "exposure from a private element set"
	}
	return fmt.Sprintf("%T", b)
}
