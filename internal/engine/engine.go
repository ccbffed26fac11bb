// Package engine is the composition root. It builds every service from a
// config.Config and owns their lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"yqhp/combat-engine/internal/clock"
	"yqhp/combat-engine/internal/combatevent"
	"yqhp/combat-engine/internal/config"
	"yqhp/combat-engine/internal/eventbus"
	"yqhp/combat-engine/internal/executor"
	"yqhp/combat-engine/internal/metrics"
	"yqhp/combat-engine/internal/recipe"
	"yqhp/combat-engine/internal/scheduler"
	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

var (
	// ErrRecipeNotFound is returned when the catalog has no recipe with the id.
	ErrRecipeNotFound = errors.New("engine: recipe not found")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("engine: stopped")
)

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the shared clock.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) { e.clock = clk }
}

// WithLogger sets the root logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithCatalog uses an existing catalog instead of loading catalog.path.
func WithCatalog(c *recipe.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithInvoker replaces the presentation loop with a host-provided invoker.
func WithInvoker(inv combatevent.Invoker) Option {
	return func(e *Engine) { e.invoker = inv }
}

// Engine wires the scheduler, judgment engine, combat event dispatcher,
// metrics collector and recipe catalog together. An Engine is started and
// stopped once.
type Engine struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.Clock

	bus        *eventbus.Bus
	registry   *executor.Registry
	scheduler  *scheduler.Scheduler
	timedHit   *timedhit.Service
	invoker    combatevent.Invoker
	loop       *combatevent.Loop
	dispatcher *combatevent.Dispatcher
	collector  *metrics.Collector
	catalog    *recipe.Catalog

	mu      sync.Mutex
	started bool
	stopped bool
	detach  func()
}

// New builds an engine. A nil config uses the defaults.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Named("engine")
	}
	if e.clock == nil {
		e.clock = clock.NewReal()
	}

	if e.catalog == nil {
		if cfg.Catalog.Path != "" {
			c, err := recipe.NewLoader(e.logger.Named("recipe")).LoadFile(cfg.Catalog.Path)
			if err != nil {
				return nil, fmt.Errorf("加载配方目录失败: %w", err)
			}
			e.catalog = c
		} else {
			e.catalog = recipe.NewCatalog()
		}
	}

	e.bus = eventbus.New(e.logger.Named("eventbus"))
	e.registry = executor.NewRegistry()
	e.scheduler = scheduler.New(e.registry, e.clock, scheduler.Options{
		MaxBranches: cfg.Scheduler.MaxBranches,
		Logger:      e.logger.Named("scheduler"),
	})
	e.timedHit = timedhit.NewService(e.clock, e.bus, cfg.TimedHit.Options(), e.logger.Named("timedhit"))

	if e.invoker == nil {
		if cfg.Dispatcher.Inline {
			e.invoker = combatevent.Inline{}
		} else {
			e.loop = combatevent.NewLoop(cfg.Dispatcher.QueueSize, e.logger.Named("loop"))
			e.invoker = e.loop
		}
	}
	e.dispatcher = combatevent.New(e.invoker, e.clock, combatevent.Options{
		PoolCapacity: cfg.Dispatcher.PoolCapacity,
		Logger:       e.logger.Named("combatevent"),
	})
	e.collector = metrics.NewCollector(e.logger.Named("metrics"))

	for _, ex := range []executor.Executor{
		executor.NewWaitExecutor(e.clock),
		executor.NewEmitExecutor(),
		executor.NewTimedHitExecutor(),
	} {
		if err := e.scheduler.RegisterExecutor(ex); err != nil {
			return nil, fmt.Errorf("注册内置执行器失败: %w", err)
		}
	}
	e.scheduler.RegisterObserver(e.dispatcher)
	e.scheduler.RegisterObserver(e.collector)
	return e, nil
}

// Start initializes executors and subscribes the judgment engine and the
// collector to the bus. Calling Start twice is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return ErrStopped
	}
	if e.started {
		return nil
	}
	if err := e.registry.InitAll(ctx); err != nil {
		return fmt.Errorf("初始化执行器失败: %w", err)
	}
	e.timedHit.Start()
	e.detach = e.collector.Attach(e.bus)
	e.started = true
	e.logger.Info("combat engine started",
		zap.Strings("executors", e.registry.IDs()),
		zap.Int("recipes", e.catalog.Len()))
	return nil
}

// Stop detaches from the bus, waits for staggered deliveries, stops the
// presentation loop and cleans up executors.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil
	}
	e.stopped = true

	var errs []error
	if e.started {
		e.timedHit.Stop()
		e.detach()
	}
	if err := e.dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("等待错峰分发结束失败: %w", err))
	}
	if e.loop != nil {
		e.loop.Stop()
	}
	if e.started {
		if err := e.registry.CleanupAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	e.logger.Info("combat engine stopped")
	return errors.Join(errs...)
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Clock returns the shared clock.
func (e *Engine) Clock() clock.Clock { return e.clock }

// Bus returns the side-channel event bus.
func (e *Engine) Bus() *eventbus.Bus { return e.bus }

// Scheduler returns the action step scheduler.
func (e *Engine) Scheduler() *scheduler.Scheduler { return e.scheduler }

// TimedHit returns the judgment engine.
func (e *Engine) TimedHit() *timedhit.Service { return e.timedHit }

// Dispatcher returns the combat event dispatcher.
func (e *Engine) Dispatcher() *combatevent.Dispatcher { return e.dispatcher }

// Metrics returns the metrics collector.
func (e *Engine) Metrics() *metrics.Collector { return e.collector }

// Catalog returns the recipe catalog.
func (e *Engine) Catalog() *recipe.Catalog { return e.catalog }

// NewExecutionContext builds an execution context bound to the engine's
// judgment engine and bus.
func (e *Engine) NewExecutionContext(actor types.Combatant, targets []types.Combatant, sel types.Selection) *types.ExecutionContext {
	return &types.ExecutionContext{
		Actor:     actor,
		Targets:   append([]types.Combatant(nil), targets...),
		Selection: sel,
		TimedHit:  e.timedHit,
		Events:    e.bus,
	}
}

// Execute runs a catalog recipe by id.
func (e *Engine) Execute(ctx context.Context, recipeID string, execCtx *types.ExecutionContext) (*types.RecipeResult, error) {
	r, ok := e.catalog.Get(recipeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, recipeID)
	}
	return e.ExecuteRecipe(ctx, r, execCtx)
}

// ExecuteRecipe runs a recipe. Missing judgment engine and bus references in
// the execution context are filled with the engine's own.
func (e *Engine) ExecuteRecipe(ctx context.Context, r *types.Recipe, execCtx *types.ExecutionContext) (*types.RecipeResult, error) {
	if execCtx != nil {
		if execCtx.TimedHit == nil {
			execCtx.TimedHit = e.timedHit
		}
		if execCtx.Events == nil {
			execCtx.Events = e.bus
		}
	}
	return e.scheduler.Execute(ctx, r, execCtx)
}

// PressInput registers an input for an actor with the judgment engine.
func (e *Engine) PressInput(actor, source string) {
	e.timedHit.RegisterInput(actor, source)
}
