package bindkit

import (
	"fmt"
	"reflect"
)

// elementRole distinguishes the hidden keys an aggregator allocates.
type elementRole int

const (
	roleContribution elementRole = iota
	rolePermitDuplicates
	roleOptionalDefault
	roleOptionalActual
)

// elementQualifier is the synthetic qualifier on aggregator-owned keys. The
// owner string identifies the aggregate (kind, element type, set name);
// uniqueID distinguishes contributions within it. Marker and optional-slot
// keys carry a zero uniqueID so re-declarations meet at the binding index
// and get its conflict handling.
type elementQualifier struct {
	owner    string
	uniqueID uint64
	role     elementRole
}

func (q elementQualifier) String() string {
	switch q.role {
	case rolePermitDuplicates:
		return fmt.Sprintf("permit-duplicates marker of %s", q.owner)
	case roleOptionalDefault:
		return fmt.Sprintf("default of %s", q.owner)
	case roleOptionalActual:
		return fmt.Sprintf("actual of %s", q.owner)
	default:
		return fmt.Sprintf("element %d of %s", q.uniqueID, q.owner)
	}
}

// mapEntryQualifier is the synthetic qualifier on map binder contributions.
// It additionally carries the map key the contribution is registered under.
// The map key type is constrained comparable, so the qualifier stays usable
// as part of a Key.
type mapEntryQualifier struct {
	owner    string
	uniqueID uint64
	mapKey   any
}

func (q mapEntryQualifier) String() string {
	return fmt.Sprintf("entry %q of %s", fmt.Sprint(q.mapKey), q.owner)
}

var boolType = reflect.TypeOf(false)

// permitDuplicatesKey is the marker key an aggregator binds when duplicates
// are permitted.
func permitDuplicatesKey(owner string) Key {
	return KeyFor(boolType).Qualified(elementQualifier{owner: owner, role: rolePermitDuplicates})
}

// contributionKeys returns the hidden element keys registered for an owner,
// in declaration order. Declaration order is the binding index's
// registration order, which is what makes aggregate iteration deterministic.
func contributionKeys(ix *bindingIndex, owner string) []Key {
	var keys []Key
	for _, k := range ix.keys() {
		if q, ok := k.Qualifier().(elementQualifier); ok &&
			q.owner == owner && q.role == roleContribution {
			keys = append(keys, k)
		}
	}
	return keys
}

// mapContributionKeys returns the hidden entry keys registered for a map
// binder owner, in declaration order.
func mapContributionKeys(ix *bindingIndex, owner string) []Key {
	var keys []Key
	for _, k := range ix.keys() {
		if q, ok := k.Qualifier().(mapEntryQualifier); ok && q.owner == owner {
			keys = append(keys, k)
		}
	}
	return keys
}

// duplicatesPermitted reports whether the owner's permit-duplicates marker
// was bound.
func duplicatesPermitted(ix *bindingIndex, owner string) bool {
	_, ok := ix.lookup(permitDuplicatesKey(owner))
	return ok
}

// isNilValue reports whether a resolved value is nil, either as a nil
// interface or as a nil-able kind holding nil.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice,
		reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}
