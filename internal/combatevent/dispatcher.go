package combatevent

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"yqhp/combat-engine/internal/clock"
	"yqhp/combat-engine/internal/scheduler"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
	"yqhp/combat-engine/pkg/utils"
)

// Options configures a Dispatcher.
type Options struct {
	PoolCapacity int
	Logger       *zap.Logger
}

// Dispatcher maps scheduler notifications to combat flags and delivers them
// to listeners through the invoker.
type Dispatcher struct {
	scheduler.NoopObserver

	invoker   Invoker
	clock     clock.Clock
	pool      *ContextPool
	listeners listenerRegistry
	logger    *zap.Logger

	// 进行中的错峰分发，idle 在计数归零时关闭
	staggerMu sync.Mutex
	staggers  int
	idle      chan struct{}

	staggerFallback sync.Once
}

// New creates a dispatcher. A nil invoker runs listeners inline.
func New(invoker Invoker, clk clock.Clock, opts Options) *Dispatcher {
	if invoker == nil {
		invoker = Inline{}
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	l := opts.Logger
	if l == nil {
		l = logger.Named("combatevent")
	}
	return &Dispatcher{
		invoker: invoker,
		clock:   clk,
		pool:    NewContextPool(opts.PoolCapacity, l.Named("pool")),
		logger:  l,
	}
}

// Pool returns the context pool.
func (d *Dispatcher) Pool() *ContextPool { return d.pool }

// RegisterListener adds a listener. The name appears in fault diagnostics.
func (d *Dispatcher) RegisterListener(name string, l Listener) ListenerID {
	if l == nil {
		return 0
	}
	id := d.listeners.add(name, l)
	d.logger.Debug("combat listener registered", zap.String("listener", name), zap.Uint64("id", uint64(id)))
	return id
}

// UnregisterListener removes a listener. It reports whether one was removed.
func (d *Dispatcher) UnregisterListener(id ListenerID) bool {
	return d.listeners.remove(id)
}

// ListenerCount returns the number of registered listeners.
func (d *Dispatcher) ListenerCount() int { return d.listeners.len() }

// ListenerNames returns the registered listener names in registration order.
func (d *Dispatcher) ListenerNames() []string { return d.listeners.names() }

// Wait blocks until in-flight staggered deliveries finished or ctx is done.
// Deliveries started while Wait blocks extend the wait.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.staggerMu.Lock()
	if d.staggers == 0 {
		d.staggerMu.Unlock()
		return nil
	}
	idle := d.idle
	d.staggerMu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) staggerStarted() {
	d.staggerMu.Lock()
	defer d.staggerMu.Unlock()
	if d.staggers == 0 {
		d.idle = make(chan struct{})
	}
	d.staggers++
}

func (d *Dispatcher) staggerDone() {
	d.staggerMu.Lock()
	defer d.staggerMu.Unlock()
	d.staggers--
	if d.staggers == 0 {
		close(d.idle)
	}
}

// OnGroupStarted implements scheduler.Observer.
func (d *Dispatcher) OnGroupStarted(ctx context.Context, run *scheduler.Run, group types.StepGroup, _ int) {
	if flag, ok := MatchGroup(group.ID()); ok {
		d.Emit(ctx, flag, run)
	}
}

// OnRecipeCompleted implements scheduler.Observer.
func (d *Dispatcher) OnRecipeCompleted(ctx context.Context, run *scheduler.Run, result *types.RecipeResult) {
	if result != nil && result.Cancelled {
		// ctx 此时已取消，cancel 事件本身仍需送达
		d.Emit(context.WithoutCancel(ctx), FlagActionCancel, run)
	}
}

// Emit raises a flag for a run.
func (d *Dispatcher) Emit(ctx context.Context, flag Flag, run *scheduler.Run) {
	if d.listeners.len() == 0 || run == nil || run.Exec == nil {
		return
	}
	exec := run.Exec
	targets := exec.Targets
	perTarget := flag == FlagImpact && len(targets) > 0 &&
		(exec.Selection.TargetsGroup || len(targets) > 1)

	if !perTarget {
		d.dispatch(ctx, flag, []*CombatEventContext{d.build(flag, run, targets, -1)})
		return
	}

	contexts := make([]*CombatEventContext, 0, len(targets))
	for i := range targets {
		contexts = append(contexts, d.build(flag, run, targets[i:i+1], i))
	}
	if step := exec.Selection.StaggerStep; len(contexts) > 1 && step > 0 {
		if d.invoker.Marshals() {
			d.stagger(ctx, flag, contexts, step)
			return
		}
		// 无法回到表现循环的调用方只能同步按序投递
		d.staggerFallback.Do(func() {
			d.logger.Warn("invoker cannot marshal staggered hits, delivering them in order without spacing",
				zap.Stringer("flag", flag),
				zap.Duration("stagger_step", step))
		})
	}
	d.dispatch(ctx, flag, contexts)
}

func (d *Dispatcher) build(flag Flag, run *scheduler.Run, targets []types.Combatant, index int) *CombatEventContext {
	exec := run.Exec
	sel := exec.Selection
	c := d.pool.Acquire()
	c.Flag = flag
	c.RunID = run.ID
	c.Actor = ActorView{
		ID:        exec.Actor.ID,
		Alignment: exec.Actor.Alignment,
		Transform: exec.Actor.Transform,
		Anchor:    exec.Actor.Anchor,
	}
	c.Action = ActionView{
		ID:                 sel.ActionID,
		Family:             sel.Family,
		WeaponKind:         sel.WeaponKind,
		Element:            sel.Element,
		StaggerStepSeconds: clock.Seconds(sel.StaggerStep),
	}
	if run.Recipe != nil {
		c.Action.RecipeID = run.Recipe.ID()
	}
	for _, t := range targets {
		c.Targets = append(c.Targets, TargetView{
			ID:        t.ID,
			Alignment: t.Alignment,
			Transform: t.Transform,
			Anchor:    t.Anchor,
		})
	}
	c.PerTarget = index >= 0
	c.TargetIndex = index
	c.Tags = append(c.Tags, sel.Tags...)
	return c
}

// dispatch 在表现循环上同步投递一批上下文
func (d *Dispatcher) dispatch(ctx context.Context, flag Flag, contexts []*CombatEventContext) {
	var claimed atomic.Bool
	err := d.invoker.Run(ctx, func(loopCtx context.Context) {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		for _, c := range contexts {
			d.deliver(loopCtx, flag, c)
		}
	})
	if err != nil && claimed.CompareAndSwap(false, true) {
		d.logger.Warn("combat event dropped",
			zap.Stringer("flag", flag),
			zap.Int("contexts", len(contexts)),
			zap.Error(err))
		d.releaseAll(contexts)
	}
}

// stagger 后台按间隔逐个投递，每次投递仍回到表现循环执行
func (d *Dispatcher) stagger(ctx context.Context, flag Flag, contexts []*CombatEventContext, step time.Duration) {
	d.staggerStarted()
	utils.SafeGoWithName("combatevent.stagger", func() {
		defer d.staggerDone()
		next := 0
		defer func() {
			if next < len(contexts) {
				d.logger.Debug("staggered delivery aborted",
					zap.Stringer("flag", flag),
					zap.Int("delivered", next),
					zap.Int("remaining", len(contexts)-next))
				d.releaseAll(contexts[next:])
			}
		}()

		for i, c := range contexts {
			if i > 0 {
				timer := d.clock.NewTimer(step)
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.Chan():
				}
			}
			if ctx.Err() != nil {
				return
			}
			next = i + 1
			if err := <-d.invoker.RunAsync(func(loopCtx context.Context) {
				d.deliver(loopCtx, flag, c)
			}); err != nil {
				d.logger.Warn("staggered delivery rejected", zap.Stringer("flag", flag), zap.Error(err))
				d.pool.Release(c)
				return
			}
		}
	})
}

func (d *Dispatcher) deliver(loopCtx context.Context, flag Flag, c *CombatEventContext) {
	defer d.pool.Release(c)
	if !d.invoker.OnLoop(loopCtx) {
		d.logger.DPanic("combat listeners invoked off the presentation loop", zap.Stringer("flag", flag))
	}
	for _, e := range d.listeners.snapshot() {
		d.invokeListener(e, flag, c)
	}
}

func (d *Dispatcher) invokeListener(e listenerEntry, flag Flag, c *CombatEventContext) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("combat listener panic",
				zap.String("listener", e.name),
				zap.Stringer("flag", flag),
				zap.String("run_id", c.RunID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	e.listener.OnCombatEvent(flag, c)
}

func (d *Dispatcher) releaseAll(contexts []*CombatEventContext) {
	for _, c := range contexts {
		d.pool.Release(c)
	}
}

var _ scheduler.Observer = (*Dispatcher)(nil)
