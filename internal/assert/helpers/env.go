package helpers

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"

	"github.com/kode4food/flownode/internal/config"
	"github.com/kode4food/flownode/internal/definition"
	"github.com/kode4food/flownode/internal/engine"
	"github.com/kode4food/flownode/internal/events"
	"github.com/kode4food/flownode/internal/expr"
	"github.com/kode4food/flownode/internal/store"
	"github.com/kode4food/flownode/internal/store/memstore"
	"github.com/kode4food/flownode/internal/store/redisstore"
	"github.com/kode4food/flownode/internal/store/timeboxstore"
	"github.com/kode4food/flownode/pkg/api"
)

type (
	// TestEngineEnv holds all the components needed for engine testing
	TestEngineEnv struct {
		Engine      *engine.Engine
		Store       store.Store
		Definitions *definition.Registry
		Evaluator   expr.Evaluator
		Hub         *events.Hub
		Metrics     *engine.Collector
		Config      *config.Config
		Redis       *miniredis.Miniredis
		Cleanup     func()
		t           *testing.T
	}

	// Option adjusts a test environment before its engine is built
	Option func(*TestEngineEnv)
)

// NewTestConfig creates a configuration suited to tests: a few workers,
// debug logging, and short retry backoffs that never give up
func NewTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.LogLevel = "debug"
	cfg.Workers = 4
	cfg.RecoveryWorkers = 4
	cfg.Retry = api.RetryConfig{
		MaxRetries:  -1,
		InitBackoff: 1,
		MaxBackoff:  20,
		BackoffType: api.BackoffTypeLinear,
	}
	return cfg
}

// WithRedis backs the engine with an in-memory Redis server instead of the
// in-process store
func WithRedis() Option {
	return func(env *TestEngineEnv) {
		server, err := miniredis.Run()
		assert.NoError(env.t, err)
		s, err := redisstore.New(context.Background(), redisstore.Config{
			Addr:   server.Addr(),
			Prefix: "test",
		})
		assert.NoError(env.t, err)
		env.Redis = server
		env.Store = s
	}
}

// WithTimebox backs the engine with a timebox ledger kept in an in-memory
// Redis server, the way the service runs by default
func WithTimebox() Option {
	return func(env *TestEngineEnv) {
		server, err := miniredis.Run()
		assert.NoError(env.t, err)
		ledger := env.Config.Store.Ledger
		ledger.Addr = server.Addr()
		ledger.Prefix = "test-ledger"
		s, err := timeboxstore.Open(timeboxstore.Config{
			Store:     ledger,
			CacheSize: 100,
		})
		assert.NoError(env.t, err)
		env.Redis = server
		env.Store = s
	}
}

// WithEvaluator replaces the expression evaluator
func WithEvaluator(eval expr.Evaluator) Option {
	return func(env *TestEngineEnv) {
		env.Evaluator = eval
	}
}

// WithConfig adjusts the engine configuration
func WithConfig(fn func(*config.Config)) Option {
	return func(env *TestEngineEnv) {
		fn(env.Config)
	}
}

// WithDefinitions registers process definitions
func WithDefinitions(defs ...*api.ProcessDefinition) Option {
	return func(env *TestEngineEnv) {
		for _, def := range defs {
			assert.NoError(env.t, env.Definitions.Register(def))
		}
	}
}

// NewTestEngine creates a test engine environment backed by an in-process
// store and the standard expression registry
func NewTestEngine(t *testing.T, opts ...Option) *TestEngineEnv {
	t.Helper()

	env := &TestEngineEnv{
		Store:       memstore.New(),
		Definitions: definition.NewRegistry(),
		Evaluator:   expr.NewRegistry(),
		Hub:         events.NewHub(),
		Metrics:     engine.NewCollector(),
		Config:      NewTestConfig(),
		t:           t,
	}
	for _, opt := range opts {
		opt(env)
	}

	env.Engine = env.NewEngineInstance()
	env.Cleanup = func() {
		_ = env.Engine.Stop()
		env.Hub.Close()
		_ = env.Store.Close()
		if env.Redis != nil {
			env.Redis.Close()
		}
	}
	return env
}

// NewEngineInstance creates another engine sharing the environment's store,
// definitions and hub. Used to simulate a restart after a crash
func (env *TestEngineEnv) NewEngineInstance() *engine.Engine {
	env.t.Helper()
	eng, err := engine.New(env.Config, env.Dependencies())
	assert.NoError(env.t, err)
	return eng
}

// Dependencies returns the collaborators the environment's engines are
// built from
func (env *TestEngineEnv) Dependencies() engine.Dependencies {
	return engine.Dependencies{
		Store:       env.Store,
		Definitions: env.Definitions,
		Evaluator:   env.Evaluator,
		Hub:         env.Hub,
		Metrics:     env.Metrics,
	}
}

// Register adds process definitions to the environment
func (env *TestEngineEnv) Register(defs ...*api.ProcessDefinition) {
	env.t.Helper()
	for _, def := range defs {
		assert.NoError(env.t, env.Definitions.Register(def))
	}
}

// Start starts a process and fails the test if that is not possible
func (env *TestEngineEnv) Start(
	def api.DefinitionID, data api.Args,
) *api.ProcessInstance {
	env.t.Helper()
	p, err := env.Engine.StartProcess(context.Background(),
		&api.StartProcessRequest{DefinitionID: def, Data: data},
	)
	assert.NoError(env.t, err)
	return p
}

// WithTestEnv creates a test engine environment, executes the provided
// function with it, and ensures cleanup happens automatically
func WithTestEnv(t *testing.T, fn func(*TestEngineEnv), opts ...Option) {
	t.Helper()
	env := NewTestEngine(t, opts...)
	defer env.Cleanup()
	fn(env)
}

// WithEngine creates a test engine, executes the provided function with it,
// and ensures cleanup happens automatically
func WithEngine(t *testing.T, fn func(*engine.Engine), opts ...Option) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		fn(env.Engine)
	}, opts...)
}

// WithStartedEngine creates and starts a test environment, executes the
// provided function with it, and ensures cleanup happens automatically
func WithStartedEngine(
	t *testing.T, fn func(*TestEngineEnv), opts ...Option,
) {
	t.Helper()
	WithTestEnv(t, func(env *TestEngineEnv) {
		assert.NoError(t, env.Engine.Start())
		fn(env)
	}, opts...)
}
