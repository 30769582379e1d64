package introspect

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

type database struct{ dsn string }

type cache interface{ Get(string) (string, bool) }

type service struct {
	DB      *database `inject:""`
	Cache   cache     `inject:"" named:"redis"`
	Audit   cache     `inject:"" optional:"true"`
	Legacy  cache     `inject:"optional"`
	Ignored string
}

func TestIntrospectTaggedFields(t *testing.T) {
	spec, err := New().Introspect(reflect.TypeOf(&service{}))
	require.NoError(t, err)

	require.Equal(t, reflect.TypeOf(&service{}), spec.Type)
	require.Equal(t, reflect.TypeOf(service{}), spec.Elem)
	require.Len(t, spec.Fields, 4)

	db := spec.Fields[0]
	require.Equal(t, "DB", db.Name)
	require.Equal(t, reflect.TypeOf(&database{}), db.Type)
	require.Equal(t, db.Type, db.Elem)
	require.Nil(t, db.Qualifier)
	require.False(t, db.Optional)
	require.False(t, db.Lazy)

	named := spec.Fields[1]
	require.Equal(t, "Cache", named.Name)
	require.Equal(t, "redis", named.Qualifier)

	require.True(t, spec.Fields[2].Optional)

	// inject:"optional" is the legacy shorthand for optional:"true".
	require.True(t, spec.Fields[3].Optional)
}

func TestIntrospectValueType(t *testing.T) {
	spec, err := New().Introspect(reflect.TypeOf(service{}))
	require.NoError(t, err)
	require.Equal(t, reflect.TypeOf(service{}), spec.Type)
	require.Equal(t, reflect.TypeOf(service{}), spec.Elem)
}

type hidden struct {
	db *database `inject:""`
}

func TestIntrospectUnexportedTaggedField(t *testing.T) {
	_, err := New().Introspect(reflect.TypeOf(&hidden{}))
	require.Error(t, err)

	var nc *NotConstructableError
	require.ErrorAs(t, err, &nc)
	require.Contains(t, nc.Error(), "field db is unexported")
}

// Any gives the embedded empty interface an exported field name.
type Any = any

type anyEmbed struct {
	Any `inject:""`
}

func TestIntrospectAnonymousEmptyInterface(t *testing.T) {
	_, err := New().Introspect(reflect.TypeOf(&anyEmbed{}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "ambiguous empty interface")
}

func TestIntrospectNonStruct(t *testing.T) {
	_, err := New().Introspect(reflect.TypeOf(42))
	require.Error(t, err)

	var nc *NotConstructableError
	require.ErrorAs(t, err, &nc)

	_, err = New().Introspect(reflect.TypeOf(""))
	require.Error(t, err)

	_, err = New().Introspect(nil)
	require.Error(t, err)
}

type sessionStore struct{}

func (*sessionStore) InjectionScope() string { return "singleton" }

type auditLog struct{}

func (auditLog) InjectionScope() string { return "request" }

func TestIntrospectScopedTypes(t *testing.T) {
	in := New()

	spec, err := in.Introspect(reflect.TypeOf(&sessionStore{}))
	require.NoError(t, err)
	require.Equal(t, "singleton", spec.Scope)

	// Value receivers declare the scope for both shapes.
	spec, err = in.Introspect(reflect.TypeOf(auditLog{}))
	require.NoError(t, err)
	require.Equal(t, "request", spec.Scope)

	spec, err = in.Introspect(reflect.TypeOf(&database{}))
	require.NoError(t, err)
	require.Empty(t, spec.Scope)
}

type initialized struct{ ready bool }

func (i *initialized) PostConstruct() error {
	i.ready = true
	return nil
}

func TestIntrospectPostConstruct(t *testing.T) {
	spec, err := New().Introspect(reflect.TypeOf(&initialized{}))
	require.NoError(t, err)
	require.True(t, spec.PostConstruct)

	spec, err = New().Introspect(reflect.TypeOf(&database{}))
	require.NoError(t, err)
	require.False(t, spec.PostConstruct)
}

// handle mirrors the provider handle shape the engine package generates.
type handle struct {
	Resolve func() (any, error)
}

func (h handle) Get() (*database, error) {
	v, err := h.Resolve()
	if err != nil {
		return nil, err
	}
	return v.(*database), nil
}

type lazyService struct {
	DB handle `inject:""`
}

func TestProviderElemDetection(t *testing.T) {
	elem, ok := ProviderElem(reflect.TypeOf(handle{}))
	require.True(t, ok)
	require.Equal(t, reflect.TypeOf(&database{}), elem)

	_, ok = ProviderElem(reflect.TypeOf(database{}))
	require.False(t, ok)
	_, ok = ProviderElem(reflect.TypeOf(&handle{}))
	require.False(t, ok)
	_, ok = ProviderElem(nil)
	require.False(t, ok)
}

func TestIntrospectLazyField(t *testing.T) {
	spec, err := New().Introspect(reflect.TypeOf(&lazyService{}))
	require.NoError(t, err)
	require.Len(t, spec.Fields, 1)

	f := spec.Fields[0]
	require.True(t, f.Lazy)
	require.Equal(t, reflect.TypeOf(handle{}), f.Type)
	require.Equal(t, reflect.TypeOf(&database{}), f.Elem)
}

func TestIntrospectMemoizes(t *testing.T) {
	in := New()

	first, err := in.Introspect(reflect.TypeOf(&service{}))
	require.NoError(t, err)
	second, err := in.Introspect(reflect.TypeOf(&service{}))
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestConstructable(t *testing.T) {
	require.True(t, Constructable(reflect.TypeOf(database{})))
	require.True(t, Constructable(reflect.TypeOf(&database{})))
	require.False(t, Constructable(reflect.TypeOf(42)))
	require.False(t, Constructable(reflect.TypeOf((*cache)(nil)).Elem()))
	require.False(t, Constructable(nil))
}
