package bindkit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveInstanceBinding(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	db := requireGet[*TestDatabase](t, inj)
	require.Equal(t, "postgres://localhost", db.DSN)
}

func TestResolveLinkedKey(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*RedisCache]()).ToInstance(&RedisCache{Addr: "primary"})
		b.Bind(KeyOf[TestCache]()).To(KeyOf[*RedisCache]())
	}))

	cache := requireGet[TestCache](t, inj)
	require.Equal(t, "primary", cache.(*RedisCache).Addr)
}

func TestResolveProviderFunction(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).ToInstance(&TestDatabase{DSN: "dsn"})
		b.Bind(KeyOf[TestCache]()).ToProvider(func(db *TestDatabase) (TestCache, error) {
			require.Equal(t, "dsn", db.DSN)
			return &RedisCache{Addr: "from-provider"}, nil
		})
	}))

	cache := requireGet[TestCache](t, inj)
	require.Equal(t, "from-provider", cache.(*RedisCache).Addr)
}

func TestProviderFunctionErrorPropagates(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[TestCache]()).ToProvider(failingProvider[TestCache]("redis unreachable"))
	}))

	_, err := Get[TestCache](inj)
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis unreachable")

	var pe *ProvisionError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, KeyOf[TestCache](), pe.Key)
}

func TestJustInTimeConstruction(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	// *TestRepository has no explicit binding; the injector synthesizes a
	// constructor from its injection points.
	repo := requireGet[*TestRepository](t, inj)
	require.NotNil(t, repo.DB)
	require.Equal(t, "postgres://localhost", repo.DB.DSN)
	require.Nil(t, repo.Logger) // optional, unbound
}

func TestJustInTimeTransitive(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	svc := requireGet[*TestService](t, inj)
	require.NotNil(t, svc.Repo)
	require.NotNil(t, svc.Repo.DB)
	require.IsType(t, &RedisCache{}, svc.Cache)
}

func TestJustInTimeRefusesQualifiedKeys(t *testing.T) {
	inj := requireInjector(t)

	_, err := inj.Get(KeyOf[*TestDatabase]().Named("replica"))
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoSuchBinding)
}

func TestJustInTimeRefusesInterfaces(t *testing.T) {
	inj := requireInjector(t)

	_, err := Get[TestCache](inj)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoSuchBinding)

	var missing *MissingImplementationError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, KeyOf[TestCache](), missing.Key)
}

func TestRequireExplicitBindings(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.RequireExplicitBindings()
	}))

	_, err := Get[*TestRepository](inj)
	require.Error(t, err)

	var notBound *NotBoundError
	require.ErrorAs(t, err, &notBound)
	require.Equal(t, KeyOf[*TestRepository](), notBound.Key)
	require.ErrorIs(t, err, ErrNoSuchBinding)
}

func TestToConstructedBypassesExplicitPolicy(t *testing.T) {
	inj := requireInjector(t, testInfraModule(), ModuleFunc(func(b *Binder) {
		b.RequireExplicitBindings()
		b.Bind(KeyOf[*TestRepository]()).ToConstructed()
	}))

	repo := requireGet[*TestRepository](t, inj)
	require.NotNil(t, repo.DB)
}

func TestUntargettedBindingConstructsItsOwnType(t *testing.T) {
	inj := requireInjector(t, testInfraModule(), ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestRepository]()).In(Singleton)
	}))

	first := requireGet[*TestRepository](t, inj)
	second := requireGet[*TestRepository](t, inj)
	require.Same(t, first, second)
}

func TestSingletonIsLazyInDevelopment(t *testing.T) {
	count := 0
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).
			ToProvider(countingProvider(&count, func() *TestDatabase { return &TestDatabase{} })).
			In(Singleton)
	}))

	require.Equal(t, 0, count)
	requireGet[*TestDatabase](t, inj)
	requireGet[*TestDatabase](t, inj)
	require.Equal(t, 1, count)
}

func TestProductionStageConstructsSingletonsEagerly(t *testing.T) {
	count := 0
	inj, err := NewWithOptions(&Options{Stage: Production}, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).
			ToProvider(countingProvider(&count, func() *TestDatabase { return &TestDatabase{} })).
			In(Singleton)
	}))
	require.NoError(t, err)
	require.Equal(t, 1, count)

	requireGet[*TestDatabase](t, inj)
	require.Equal(t, 1, count)
}

func TestEagerSingletonConstructsInDevelopment(t *testing.T) {
	count := 0
	_, err := New(ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).
			ToProvider(countingProvider(&count, func() *TestDatabase { return &TestDatabase{} })).
			AsEagerSingleton()
	}))
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestEagerSingletonFailureFailsConstruction(t *testing.T) {
	_, err := New(ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).
			ToProvider(failingProvider[*TestDatabase]("cannot connect")).
			AsEagerSingleton()
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot connect")

	var ce *CreationError
	require.ErrorAs(t, err, &ce)
}

func TestEagerSingletonsInitializeInDependencyOrder(t *testing.T) {
	var order []string
	inj, err := NewWithOptions(&Options{Stage: Production}, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).ToProvider(func() *TestDatabase {
			order = append(order, "database")
			return &TestDatabase{}
		}).In(Singleton)
		b.Bind(KeyOf[*TestRepository]()).ToProvider(func(db *TestDatabase) *TestRepository {
			order = append(order, "repository")
			return &TestRepository{DB: db}
		}).In(Singleton)
	}))
	require.NoError(t, err)
	require.NotNil(t, inj)
	require.Equal(t, []string{"database", "repository"}, order)
}

func TestPostConstructRuns(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	s := requireGet[*initTracked](t, inj)
	require.True(t, s.ready)
	require.NotNil(t, s.DB)
}

func TestParameterObjectProvider(t *testing.T) {
	type serviceParams struct {
		DB    *TestDatabase `inject:""`
		Cache TestCache     `inject:"" named:"redis"`
	}

	inj := requireInjector(t, testInfraModule(), ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestService]()).ToProvider(func(p serviceParams) *TestService {
			return &TestService{
				Repo:  &TestRepository{DB: p.DB},
				Cache: p.Cache,
			}
		})
	}))

	svc := requireGet[*TestService](t, inj)
	require.Equal(t, "postgres://localhost", svc.Repo.DB.DSN)
	require.IsType(t, &RedisCache{}, svc.Cache)
}

func TestProviderKeyBinding(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[Provider[TestCache]]()).ToProvider(func() Provider[TestCache] {
			return Provider[TestCache]{Resolve: func() (any, error) {
				return &RedisCache{Addr: "via-handle"}, nil
			}}
		})
		b.Bind(KeyOf[TestCache]()).ToProviderKey(KeyOf[Provider[TestCache]]())
	}))

	cache := requireGet[TestCache](t, inj)
	require.Equal(t, "via-handle", cache.(*RedisCache).Addr)
}

func TestInjectorBindsItself(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	self := requireGet[*Injector](t, inj)
	require.Same(t, inj, self)
}

func TestInjectMembers(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	var target struct {
		DB    *TestDatabase `inject:""`
		Cache TestCache     `inject:"" named:"redis"`
	}
	require.NoError(t, inj.InjectMembers(&target))
	require.NotNil(t, target.DB)
	require.NotNil(t, target.Cache)

	require.Error(t, inj.InjectMembers(nil))
	require.Error(t, inj.InjectMembers(TestRepository{}))
}

func TestLazyFieldInjection(t *testing.T) {
	type lazyConsumer struct {
		DB Provider[*TestDatabase] `inject:""`
	}

	count := 0
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).
			ToProvider(countingProvider(&count, func() *TestDatabase { return &TestDatabase{DSN: "lazy"} }))
	}))

	c := requireGet[*lazyConsumer](t, inj)
	require.Equal(t, 0, count)

	db, err := c.DB.Get()
	require.NoError(t, err)
	require.Equal(t, "lazy", db.DSN)
	require.Equal(t, 1, count)
}

func TestConstantConversion(t *testing.T) {
	type serverConfig struct {
		Port    int           `inject:"" named:"port"`
		Timeout time.Duration `inject:"" named:"timeout"`
		Debug   bool          `inject:"" named:"debug"`
		Rate    float64       `inject:"" named:"rate"`
	}

	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.BindConstant("port").ToValue("8080")
		b.BindConstant("timeout").ToValue("2500ms")
		b.BindConstant("debug").ToValue("true")
		b.BindConstant("rate").ToValue("0.75")
		b.Bind(KeyOf[*serverConfig]()).ToConstructed()
	}))

	cfg := requireGet[*serverConfig](t, inj)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	require.True(t, cfg.Debug)
	require.Equal(t, 0.75, cfg.Rate)
}

func TestConstantConversionFailureIsConfigurationError(t *testing.T) {
	type badConfig struct {
		Port int `inject:"" named:"port"`
	}

	_, err := New(ModuleFunc(func(b *Binder) {
		b.BindConstant("port").ToValue("not-a-number")
		b.Bind(KeyOf[*badConfig]()).ToConstructed()
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not-a-number")
}

func TestChildInjectorFallsBackToParent(t *testing.T) {
	parent := requireInjector(t, testInfraModule())

	child, err := parent.NewChild(ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[TestLogger]()).ToInstance(&ConsoleLogger{Prefix: "child "})
	}))
	require.NoError(t, err)

	// Child-local binding.
	require.IsType(t, &ConsoleLogger{}, requireGet[TestLogger](t, child))
	// Inherited binding.
	require.Equal(t, "postgres://localhost", requireGet[*TestDatabase](t, child).DSN)
	// Parent cannot see child bindings.
	_, err = Get[TestLogger](parent)
	require.Error(t, err)
}

func TestChildCannotRebindParentKey(t *testing.T) {
	parent := requireInjector(t, testInfraModule())

	_, err := parent.NewChild(ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).ToInstance(&TestDatabase{DSN: "shadow"})
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists in a parent injector")
}

func TestChildCannotRebindParentJITKey(t *testing.T) {
	parent := requireInjector(t, testInfraModule())

	// Force a just-in-time binding in the parent.
	requireGet[*TestRepository](t, parent)

	_, err := parent.NewChild(ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestRepository]()).ToInstance(&TestRepository{})
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "just-in-time binding")
}

func TestParentSingletonSharedAcrossChildren(t *testing.T) {
	parent := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).
			ToProvider(func() *TestDatabase { return &TestDatabase{} }).
			In(Singleton)
	}))

	childA, err := parent.NewChild()
	require.NoError(t, err)
	childB, err := parent.NewChild()
	require.NoError(t, err)

	require.Same(t,
		requireGet[*TestDatabase](t, childA),
		requireGet[*TestDatabase](t, childB))
}

func TestDisposedInjectorRefusesResolution(t *testing.T) {
	inj := requireInjector(t, testInfraModule())
	inj.Dispose()

	_, err := Get[*TestDatabase](inj)
	require.ErrorIs(t, err, ErrInjectorDisposed)

	_, err = inj.NewChild()
	require.ErrorIs(t, err, ErrInjectorDisposed)
}

func TestBindingsSnapshot(t *testing.T) {
	inj := requireInjector(t, testInfraModule())
	requireGet[*TestRepository](t, inj) // synthesize a JIT binding

	bindings := inj.Bindings()
	require.Contains(t, bindings, KeyOf[*TestDatabase]())
	require.Contains(t, bindings, KeyOf[*TestRepository]())

	cb, ok := bindings[KeyOf[*TestRepository]()].(*ConstructorBinding)
	require.True(t, ok)
	require.True(t, cb.JIT)
}

func TestBindingVisitorOnResolvedBindings(t *testing.T) {
	inj := requireInjector(t, testInfraModule())

	b, ok := inj.BindingFor(KeyOf[*TestDatabase]())
	require.True(t, ok)

	v := b.Accept(instanceExtractor{})
	db, ok := v.(*TestDatabase)
	require.True(t, ok)
	require.Equal(t, "postgres://localhost", db.DSN)
}

type instanceExtractor struct {
	DefaultBindingVisitor
}

func (instanceExtractor) VisitInstance(b *InstanceBinding) any { return b.Instance }

func TestGraphDOTExport(t *testing.T) {
	inj := requireInjector(t, testInfraModule(), ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestService]()).ToConstructed()
	}))

	dot := inj.GraphDOT()
	require.Contains(t, dot, "digraph")
	require.Contains(t, dot, "*TestService")
	require.Contains(t, dot, "->")
}

func TestProvisionErrorCarriesDependencyChain(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		b.Bind(KeyOf[*TestDatabase]()).ToProvider(failingProvider[*TestDatabase]("disk full"))
		b.Bind(KeyOf[*TestRepository]()).ToConstructed()
	}))

	_, err := Get[*TestRepository](inj)
	require.Error(t, err)

	var pe *ProvisionError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, KeyOf[*TestDatabase](), pe.Key)
	require.Equal(t, []Key{KeyOf[*TestRepository](), KeyOf[*TestDatabase]()}, pe.Chain)
	require.Contains(t, err.Error(), "Dependency chain:")
}

func TestPrivateElementsExposeSelectedKeys(t *testing.T) {
	inj := requireInjector(t, ModuleFunc(func(b *Binder) {
		pb := b.NewPrivateBinder()
		pb.Bind(KeyOf[TestLogger]()).ToInstance(&ConsoleLogger{Prefix: "private "})
		pb.Bind(KeyOf[TestCache]()).ToInstance(&RedisCache{Addr: "internal"})
		pb.Expose(KeyOf[TestCache]())
	}))

	// Exposed key resolves through the private element set.
	cache := requireGet[TestCache](t, inj)
	require.Equal(t, "internal", cache.(*RedisCache).Addr)

	// Unexposed keys stay invisible to the enclosing injector.
	_, err := Get[TestLogger](inj)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNoSuchBinding)
}

func TestExposeWithoutBindingFails(t *testing.T) {
	_, err := New(ModuleFunc(func(b *Binder) {
		pb := b.NewPrivateBinder()
		pb.Expose(KeyOf[TestCache]())
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "exposed but is not bound")
}

func TestPrivateBindingsSeeEnclosingBindings(t *testing.T) {
	inj := requireInjector(t, testInfraModule(), ModuleFunc(func(b *Binder) {
		pb := b.NewPrivateBinder()
		pb.Bind(KeyOf[TestCache]()).ToProvider(func(db *TestDatabase) TestCache {
			return &RedisCache{Addr: db.DSN}
		})
		pb.Expose(KeyOf[TestCache]())
	}))

	cache := requireGet[TestCache](t, inj)
	require.Equal(t, "postgres://localhost", cache.(*RedisCache).Addr)
}
