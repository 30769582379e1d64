package bindkit

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Shared fixtures for the package tests. Names are prefixed with Test to
// keep them out of the way of the public API.

type TestLogger interface {
	Log(msg string)
}

type ConsoleLogger struct {
	Prefix string
	lines  []string
}

func (c *ConsoleLogger) Log(msg string) { c.lines = append(c.lines, c.Prefix+msg) }

type TestCache interface {
	Lookup(key string) (string, bool)
}

type RedisCache struct {
	Addr string
}

func (r *RedisCache) Lookup(string) (string, bool) { return "", false }

type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (m *MemoryCache) Lookup(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	return v, ok
}

type TestDatabase struct {
	DSN string
}

type TestRepository struct {
	DB     *TestDatabase `inject:""`
	Logger TestLogger    `inject:"" optional:"true"`
}

type TestService struct {
	Repo  *TestRepository `inject:""`
	Cache TestCache       `inject:"" named:"redis"`
}

// initTracked counts PostConstruct invocations.
type initTracked struct {
	DB    *TestDatabase `inject:""`
	ready bool
}

func (s *initTracked) PostConstruct() error {
	s.ready = true
	return nil
}

func testInfraModule() Module {
	return NewModule("infra", ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).ToInstance(&TestDatabase{DSN: "postgres://localhost"})
		b.Bind(KeyOf[TestCache]().Named("redis")).ToInstance(&RedisCache{Addr: "localhost:6379"})
	}))
}

func requireInjector(t *testing.T, modules ...Module) *Injector {
	t.Helper()
	inj, err := New(modules...)
	require.NoError(t, err)
	require.NotNil(t, inj)
	return inj
}

func requireGet[T any](t *testing.T, inj *Injector) T {
	t.Helper()
	v, err := Get[T](inj)
	require.NoError(t, err)
	return v
}

func requireGetNamed[T any](t *testing.T, inj *Injector, name string) T {
	t.Helper()
	v, err := GetNamed[T](inj, name)
	require.NoError(t, err)
	return v
}

// assertError is a sentinel used where tests only care about identity.
var assertError = errors.New("construction failed")

// failingProvider returns a constructor that always fails with the given
// message.
func failingProvider[T any](msg string) func() (T, error) {
	return func() (T, error) {
		var zero T
		return zero, errors.New(msg)
	}
}

// countingProvider returns a constructor that counts its invocations.
func countingProvider[T any](count *int, make func() T) func() T {
	return func() T {
		*count++
		return make()
	}
}
