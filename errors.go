package bindkit

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ========================================
// Core Error Values (Sentinel Errors)
// ========================================
// Base errors meant to be wrapped in typed errors before reaching users.

var (
	// Configuration errors.
	ErrConstructorNil     = errors.New("constructor cannot be nil")
	ErrConstructorNotFunc = errors.New("constructor must be a function")
	ErrNoSuchBinding      = errors.New("no binding for key")
	ErrInjectorDisposed   = errors.New("injector has been disposed")

	// Provisioning errors.
	ErrProviderUnset = errors.New("provider has not been initialized by the injector")
)

var (
	_ error = (*BindingAlreadySetError)(nil)
	_ error = (*MissingImplementationError)(nil)
	_ error = (*MissingConstructorError)(nil)
	_ error = (*NotBoundError)(nil)
	_ error = (*CircularDependencyError)(nil)
	_ error = (*ScopeNotFoundError)(nil)
	_ error = (*OutOfScopeError)(nil)
	_ error = (*TypeMismatchError)(nil)
	_ error = (*CreationError)(nil)
	_ error = (*ProvisionError)(nil)
)

// Message is one configuration-time finding: human-readable text plus the
// source chain that produced it and an optional cause.
type Message struct {
	// Text is the rendered description.
	Text string

	// Sources is the attribution chain, outermost first.
	Sources []string

	// Cause is the underlying error, if any.
	Cause error
}

// String renders the message with its source trace.
func (m Message) String() string {
	var b strings.Builder
	b.WriteString(m.Text)
	for _, s := range m.Sources {
		b.WriteString("\n  at ")
		b.WriteString(s)
	}
	return b.String()
}

// Errors accumulates configuration-time findings during one injector
// construction attempt. Construction runs single-threaded, so the
// accumulator needs no locking; the rendered errors it produces do their
// own synchronization for lazy state.
type Errors struct {
	messages []Message
}

// add records a finding, deduplicating messages whose text and sources are
// identical (idempotent module re-installation produces such repeats).
func (e *Errors) add(m Message) {
	for _, existing := range e.messages {
		if existing.Text == m.Text && equalSources(existing.Sources, m.Sources) {
			return
		}
	}
	e.messages = append(e.messages, m)
}

// addErr records an error value, preserving its text and cause.
func (e *Errors) addErr(err error, sources ...string) {
	e.add(Message{Text: err.Error(), Sources: sources, Cause: err})
}

// empty reports whether no findings were recorded.
func (e *Errors) empty() bool { return len(e.messages) == 0 }

// first returns the first finding's cause, or its text as an error.
func (e *Errors) first() error {
	if e.empty() {
		return nil
	}
	m := e.messages[0]
	if m.Cause != nil {
		return m.Cause
	}
	return errors.New(m.String())
}

// creationError renders the accumulated findings, or nil when empty.
func (e *Errors) creationError() error {
	if e.empty() {
		return nil
	}
	return &CreationError{Messages: e.messages}
}

func equalSources(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// CreationError aggregates every configuration error discovered during one
// injector construction attempt. Construction fails atomically: either the
// injector is fully consistent or this error enumerates all findings.
type CreationError struct {
	Messages []Message
}

func (e *CreationError) Error() string {
	var b strings.Builder
	if len(e.Messages) == 1 {
		b.WriteString("injector configuration error:\n\n")
	} else {
		fmt.Fprintf(&b, "injector configuration errors (%d):\n\n", len(e.Messages))
	}

	for i, m := range e.Messages {
		fmt.Fprintf(&b, "%d) %s\n", i+1, m.String())
		if i < len(e.Messages)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Unwrap exposes the first underlying cause for errors.Is/As chains.
func (e *CreationError) Unwrap() []error {
	var causes []error
	for _, m := range e.Messages {
		if m.Cause != nil {
			causes = append(causes, m.Cause)
		}
	}
	return causes
}

// ProvisionError wraps a failure raised while provisioning an instance,
// carrying the dependency chain active at the time of failure.
type ProvisionError struct {
	Key   Key
	Chain []Key
	Cause error
}

func (e *ProvisionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "error provisioning %s: %v", e.Key, e.Cause)

	if len(e.Chain) > 1 {
		b.WriteString("\n\nDependency chain:")
		for i, k := range e.Chain {
			fmt.Fprintf(&b, "\n  %s%s", strings.Repeat("  ", i), k)
		}
	}
	return b.String()
}

func (e *ProvisionError) Unwrap() error { return e.Cause }

// BindingAlreadySetError reports two modules declaring conflicting targets
// for the same key. It names both source locations and both targets.
type BindingAlreadySetError struct {
	Key      Key
	Existing string // source of the binding that was kept
	New      string // source of the rejected re-declaration

	// ExistingTarget and NewTarget describe what each declaration bound.
	ExistingTarget string
	NewTarget      string
}

func (e *BindingAlreadySetError) Error() string {
	return fmt.Sprintf(
		"a binding for %s was already configured\n  first bound to %s at %s\n  rebound to %s at %s",
		e.Key, e.ExistingTarget, e.Existing, e.NewTarget, e.New)
}

// MissingImplementationError reports a key that could not be resolved: no
// explicit binding exists and just-in-time synthesis was not possible.
//
// The "did you mean" suggestion scan is deliberately lazy: it runs on the
// first Error call, never on the happy path, and the result is memoized so
// concurrent readers of the same message do not repeat the scan.
type MissingImplementationError struct {
	Key    Key
	Reason string

	// available holds the bound keys for the suggestion scan.
	available []Key

	suggestOnce sync.Once
	suggestions string
}

func (e *MissingImplementationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no implementation for %s was bound", e.Key)
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	b.WriteString(e.suggest())
	return b.String()
}

func (e *MissingImplementationError) Is(target error) bool {
	return target == ErrNoSuchBinding
}

// suggest computes the similar-key listing once, on demand.
func (e *MissingImplementationError) suggest() string {
	e.suggestOnce.Do(func() {
		similar := findSimilarKeys(e.Key, e.available)
		if len(similar) == 0 {
			return
		}
		var b strings.Builder
		b.WriteString("\n\nDid you mean one of these?\n")
		for _, k := range similar {
			fmt.Fprintf(&b, "  * %s\n", k)
		}
		e.suggestions = b.String()
	})
	return e.suggestions
}

// findSimilarKeys locates bound keys whose names resemble the missing one,
// using a simple substring match in either direction.
func findSimilarKeys(target Key, available []Key) []Key {
	if target.IsZero() || len(available) == 0 {
		return nil
	}

	targetName := target.Type().String()
	targetShort := target.Type().Name()
	if targetShort == "" {
		targetShort = targetName
	}

	var similar []Key
	for _, k := range available {
		if k == target || k.IsZero() {
			continue
		}

		name := k.Type().String()
		short := k.Type().Name()
		if short == "" {
			short = name
		}

		if targetShort == short ||
			strings.Contains(strings.ToLower(name), strings.ToLower(targetShort)) ||
			strings.Contains(strings.ToLower(targetName), strings.ToLower(short)) {
			similar = append(similar, k)
		}

		if len(similar) >= 5 {
			break
		}
	}
	return similar
}

// MissingConstructorError reports a concrete type that cannot be
// just-in-time constructed: no eligible constructor shape.
type MissingConstructorError struct {
	Type   reflect.Type
	Reason string
}

func (e *MissingConstructorError) Error() string {
	return fmt.Sprintf("no usable constructor for %s: %s", formatType(e.Type), e.Reason)
}

// NotBoundError reports a key refused by the explicit-bindings-required
// policy: a constructor may exist, but just-in-time synthesis is disabled.
type NotBoundError struct {
	Key Key
}

func (e *NotBoundError) Error() string {
	return fmt.Sprintf(
		"explicit bindings are required and %s is not explicitly bound", e.Key)
}

func (e *NotBoundError) Is(target error) bool {
	return target == ErrNoSuchBinding
}

// CircularDependencyError reports a dependency cycle with no lazy provider
// edge to break it.
type CircularDependencyError struct {
	Key  Key
	Path []Key
}

func (e *CircularDependencyError) Error() string {
	var b strings.Builder
	b.WriteString("circular dependency detected:\n")

	for _, k := range e.Path {
		fmt.Fprintf(&b, "    %s\n      ↓\n", k)
	}
	fmt.Fprintf(&b, "    %s (cycle)\n", e.Key)

	b.WriteString("\nTo resolve this:\n")
	b.WriteString("  * inject a Provider[T] to defer one edge of the cycle\n")
	b.WriteString("  * restructure to remove the circular relationship\n")
	return b.String()
}

// ScopeNotFoundError reports a binding scoped to a name no installed module
// registered with BindScope.
type ScopeNotFoundError struct {
	Name string
	Key  Key
}

func (e *ScopeNotFoundError) Error() string {
	return fmt.Sprintf("no scope is bound for name %q, required by the binding for %s", e.Name, e.Key)
}

// OutOfScopeError is returned by custom scope implementations when a key is
// resolved while no scope context is active. Custom scopes should return
// it from their provider wrappers.
type OutOfScopeError struct {
	Key       Key
	ScopeName string
}

func (e *OutOfScopeError) Error() string {
	return fmt.Sprintf("cannot access %s outside of scope %q", e.Key, e.ScopeName)
}

// TypeMismatchError reports a value that did not have the statically
// expected type at a typed access point.
type TypeMismatchError struct {
	Expected reflect.Type
	Actual   reflect.Type
	Context  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s",
		e.Context, formatType(e.Expected), formatType(e.Actual))
}
