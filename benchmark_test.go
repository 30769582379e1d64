package bindkit

import (
	"testing"

	"go.uber.org/dig"
)

// The benchmark graph is a three-level chain, the shape of a typical
// handler -> service -> store slice of an application.

type benchStore struct{ dsn string }

type benchService struct {
	Store *benchStore `inject:""`
}

type benchHandler struct {
	Service *benchService `inject:""`
}

func benchModule() Module {
	return ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*benchStore]()).ToProvider(func() *benchStore {
			return &benchStore{dsn: "postgres://localhost"}
		})
	})
}

func BenchmarkInjectorNew(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := New(benchModule()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetTransient(b *testing.B) {
	inj, err := New(benchModule())
	if err != nil {
		b.Fatal(err)
	}

	// Warm the just-in-time bindings so the loop measures provisioning.
	if _, err := Get[*benchHandler](inj); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Get[*benchHandler](inj); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetSingleton(b *testing.B) {
	inj, err := New(benchModule(), ModuleFunc(func(bd *Binder) {
		bd.Bind(KeyOf[*benchHandler]()).ToConstructed().In(Singleton)
	}))
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Get[*benchHandler](inj); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetParallel(b *testing.B) {
	inj, err := New(benchModule(), ModuleFunc(func(bd *Binder) {
		bd.Bind(KeyOf[*benchHandler]()).ToConstructed().In(Singleton)
	}))
	if err != nil {
		b.Fatal(err)
	}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := Get[*benchHandler](inj); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// The dig benchmarks build the same chain with constructor functions, for a
// rough comparison against an invoke-style container. dig caches every
// constructed value, so the closest bindkit equivalent is the singleton
// benchmark above.

func digContainer(b *testing.B) *dig.Container {
	b.Helper()

	c := dig.New()
	for _, ctor := range []any{
		func() *benchStore { return &benchStore{dsn: "postgres://localhost"} },
		func(s *benchStore) *benchService { return &benchService{Store: s} },
		func(s *benchService) *benchHandler { return &benchHandler{Service: s} },
	} {
		if err := c.Provide(ctor); err != nil {
			b.Fatal(err)
		}
	}
	return c
}

func BenchmarkDigNew(b *testing.B) {
	for i := 0; i < b.N; i++ {
		c := dig.New()
		if err := c.Provide(func() *benchStore { return &benchStore{} }); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDigInvoke(b *testing.B) {
	c := digContainer(b)

	if err := c.Invoke(func(*benchHandler) {}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := c.Invoke(func(*benchHandler) {}); err != nil {
			b.Fatal(err)
		}
	}
}
