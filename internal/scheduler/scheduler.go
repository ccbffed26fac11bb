// Package scheduler implements the action step scheduler: it walks a recipe's
// groups, dispatches steps to executors and arbitrates conflicts per executor id.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/combat-engine/internal/clock"
	"yqhp/combat-engine/internal/executor"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

const (
	// DefaultMaxBranches bounds the branches taken by one recipe execution.
	DefaultMaxBranches = 16
)

var (
	// ErrNilRecipe is returned by Execute when no recipe is given.
	ErrNilRecipe = errors.New("scheduler: recipe is nil")
	// ErrNilContext is returned by Execute when no execution context is given.
	ErrNilContext = errors.New("scheduler: execution context is nil")
)

// Options configures a Scheduler.
type Options struct {
	MaxBranches int
	Logger      *zap.Logger
}

// Scheduler turns recipes into running work.
type Scheduler struct {
	registry    *executor.Registry
	clock       clock.Clock
	logger      *zap.Logger
	maxBranches int

	// active 是唯一的跨步骤共享可变状态，由 mu 保护
	mu     sync.Mutex
	active map[string]*activeExecution

	obsMu     sync.RWMutex
	observers []Observer
}

// New creates a scheduler over the given registry.
func New(registry *executor.Registry, clk clock.Clock, opts Options) *Scheduler {
	if registry == nil {
		registry = executor.NewRegistry()
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Named("scheduler")
	}
	if opts.MaxBranches <= 0 {
		opts.MaxBranches = DefaultMaxBranches
	}
	return &Scheduler{
		registry:    registry,
		clock:       clk,
		logger:      opts.Logger,
		maxBranches: opts.MaxBranches,
		active:      make(map[string]*activeExecution),
	}
}

// Registry returns the executor registry.
func (s *Scheduler) Registry() *executor.Registry {
	return s.registry
}

// RegisterExecutor registers an executor; the last registration for an id wins.
func (s *Scheduler) RegisterExecutor(e executor.Executor) error {
	previous, err := s.registry.Register(e)
	if err != nil {
		return err
	}
	if previous != nil && previous != e {
		s.logger.Debug("executor replaced", zap.String("executor_id", e.ID()))
	}
	return nil
}

// UnregisterExecutor removes an executor. Running executions are not affected.
func (s *Scheduler) UnregisterExecutor(id string) {
	s.registry.Unregister(id)
}

// RegisterObserver adds a lifecycle observer.
func (s *Scheduler) RegisterObserver(o Observer) {
	if o == nil {
		return
	}
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// UnregisterObserver removes a lifecycle observer.
func (s *Scheduler) UnregisterObserver(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for i, existing := range s.observers {
		if existing == o {
			next := make([]Observer, 0, len(s.observers)-1)
			next = append(next, s.observers[:i]...)
			s.observers = append(next, s.observers[i+1:]...)
			return
		}
	}
}

// Execute walks the recipe's groups in order. Cancellation of ctx is reported
// through RecipeResult.Cancelled; the error is reserved for invalid input.
func (s *Scheduler) Execute(ctx context.Context, recipe *types.Recipe, execCtx *types.ExecutionContext) (*types.RecipeResult, error) {
	if recipe == nil {
		return nil, ErrNilRecipe
	}
	if execCtx == nil {
		return nil, ErrNilContext
	}

	run := &Run{
		ID:        uuid.NewString(),
		Recipe:    recipe,
		Exec:      execCtx,
		StartTime: time.Now(),
	}
	result := &types.RecipeResult{
		RunID:     run.ID,
		RecipeID:  recipe.ID(),
		StartTime: run.StartTime,
	}

	s.logger.Debug("recipe started",
		zap.String("run_id", run.ID),
		zap.String("recipe_id", recipe.ID()),
		zap.String("actor", execCtx.Actor.ID))
	s.notify(func(o Observer) { o.OnRecipeStarted(ctx, run) })

groups:
	for i := 0; i < recipe.Len(); {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		group := recipe.Group(i)
		gr := s.runGroup(ctx, run, group, i)
		result.Groups = append(result.Groups, gr)
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		next := i + 1
		if o := gr.Outcome; o != nil {
			switch o.Directive {
			case types.DirectiveAbort:
				result.Aborted = true
				result.Reason = o.Reason
				s.logger.Debug("recipe aborted",
					zap.String("run_id", run.ID),
					zap.String("group_id", group.ID()),
					zap.String("reason", o.Reason))
				break groups
			case types.DirectiveBranch:
				target := recipe.GroupIndex(o.Target)
				switch {
				case target < 0:
					s.logger.Warn("branch target not found, continuing",
						zap.String("run_id", run.ID),
						zap.String("from", group.ID()),
						zap.String("to", o.Target))
				case result.Branches >= s.maxBranches:
					s.logger.Warn("branch limit reached, continuing",
						zap.String("run_id", run.ID),
						zap.Int("max_branches", s.maxBranches))
				default:
					result.Branches++
					next = target
					s.notify(func(obs Observer) { obs.OnBranchTaken(ctx, run, group.ID(), o.Target) })
				}
			}
		}
		i = next
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	s.logger.Debug("recipe completed",
		zap.String("run_id", run.ID),
		zap.Bool("cancelled", result.Cancelled),
		zap.Bool("aborted", result.Aborted),
		zap.Duration("duration", result.Duration))
	s.notify(func(o Observer) { o.OnRecipeCompleted(ctx, run, result) })
	return result, nil
}

func (s *Scheduler) runGroup(ctx context.Context, run *Run, group types.StepGroup, index int) *types.GroupResult {
	groupCtx := ctx
	if group.Timeout() > 0 {
		var cancel context.CancelFunc
		groupCtx, cancel = context.WithTimeout(ctx, group.Timeout())
		defer cancel()
	}

	s.notify(func(o Observer) { o.OnGroupStarted(ctx, run, group, index) })

	gr := &types.GroupResult{GroupID: group.ID(), Index: index}
	start := time.Now()

	switch group.Mode() {
	case types.ExecutionParallel:
		s.runParallel(groupCtx, run, group, gr)
	case types.ExecutionSequential:
		s.runSequential(groupCtx, run, group, gr)
	default:
		s.logger.Warn("unknown execution mode, running sequentially",
			zap.String("group_id", group.ID()),
			zap.String("mode", string(group.Mode())))
		s.runSequential(groupCtx, run, group, gr)
	}

	gr.Duration = time.Since(start)
	if ctx.Err() != nil {
		gr.Cancelled = true
	} else if errors.Is(groupCtx.Err(), context.DeadlineExceeded) {
		gr.TimedOut = true
		s.logger.Warn("group timed out",
			zap.String("run_id", run.ID),
			zap.String("group_id", group.ID()),
			zap.Duration("timeout", group.Timeout()))
	}

	s.notify(func(o Observer) { o.OnGroupCompleted(ctx, run, group, gr) })
	return gr
}

func (s *Scheduler) runSequential(ctx context.Context, run *Run, group types.StepGroup, gr *types.GroupResult) {
	for i := 0; i < group.Len(); i++ {
		if ctx.Err() != nil {
			return
		}
		sr := s.runStep(ctx, run, group, group.Step(i), nil)
		gr.Steps = append(gr.Steps, sr)
		if redirects(sr.Outcome) {
			gr.Outcome = sr.Outcome
			return
		}
	}
}

func (s *Scheduler) runParallel(ctx context.Context, run *Run, group types.StepGroup, gr *types.GroupResult) {
	n := group.Len()
	results := make([]*types.StepResult, n)

	memberCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	settled := make(chan int, n)
	for i := 0; i < n; i++ {
		step := group.Step(i)
		arbitrated := make(chan struct{})

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.runStep(memberCtx, run, group, step, func() { close(arbitrated) })
			settled <- i
		}(i)

		// 按列表顺序启动：上一个成员完成冲突仲裁后再启动下一个
		<-arbitrated
	}

	if group.Join() == types.JoinAny {
		<-settled
		cancel()
	} else if group.Join() != types.JoinAll {
		s.logger.Warn("unknown join policy, waiting for all members",
			zap.String("group_id", group.ID()),
			zap.String("join", string(group.Join())))
	}
	wg.Wait()

	gr.Steps = results
	for _, sr := range results {
		if redirects(sr.Outcome) {
			gr.Outcome = sr.Outcome
			break
		}
	}
}

func redirects(o *types.StepOutcome) bool {
	return o != nil && (o.Directive == types.DirectiveAbort || o.Directive == types.DirectiveBranch)
}

// runStep arbitrates, claims the executor slot, applies the delay and runs
// the executor. arbitrated (optional) is called once the conflict decision
// is made, before any waiting.
func (s *Scheduler) runStep(ctx context.Context, run *Run, group types.StepGroup, step types.Step, arbitrated func()) *types.StepResult {
	var signalOnce sync.Once
	signal := func() {
		if arbitrated != nil {
			signalOnce.Do(arbitrated)
		}
	}
	defer signal()

	sr := types.NewStepResult(step)
	log := s.logger.With(
		zap.String("run_id", run.ID),
		zap.String("step_id", step.Label()),
		zap.String("executor_id", step.ExecutorID()))

	skip := func(reason string) *types.StepResult {
		signal()
		sr.Skip(reason)
		sr.Finish()
		s.notify(func(o Observer) { o.OnStepCompleted(ctx, run, step, sr) })
		return sr
	}

	exec := s.registry.Get(step.ExecutorID())
	if exec == nil {
		log.Warn("no executor registered, skipping step")
		return skip("executor not found")
	}
	if !exec.CanExecute(step) {
		log.Warn("executor declined step, skipping")
		return skip("executor declined")
	}

	sc := &executor.StepContext{
		RunID:    run.ID,
		RecipeID: run.Recipe.ID(),
		GroupID:  group.ID(),
		Step:     step,
		Exec:     run.Exec,
		Logger:   log,
	}
	if step.BindingID() != "" && run.Exec.Bindings != nil {
		binding, ok := run.Exec.ResolveBinding(step.BindingID())
		if !ok {
			log.Warn("binding not resolved, skipping step", zap.String("binding_id", step.BindingID()))
			return skip("binding not found")
		}
		sc.Binding, sc.HasBinding = binding, true
	}

	entry, status := s.acquire(ctx, step, signal, log)
	switch status {
	case acquireSkipped:
		log.Debug("executor busy, step skipped")
		return skip("executor busy")
	case acquireCancelled:
		sr.Status = types.ResultStatusCancelled
		sr.Finish()
		s.notify(func(o Observer) { o.OnStepCompleted(ctx, run, step, sr) })
		return sr
	}
	defer s.release(step.ExecutorID(), entry)

	sr.StartTime = time.Now()
	s.notify(func(o Observer) { o.OnStepStarted(ctx, run, step) })

	outcome, err := func() (*types.StepOutcome, error) {
		if err := s.pause(entry.ctx, step.Delay()); err != nil {
			return nil, err
		}
		return s.invoke(entry.ctx, exec, sc)
	}()

	switch {
	case err != nil && entry.ctx.Err() != nil:
		sr.Status = types.ResultStatusCancelled
	case err != nil:
		sr.Fail(err)
		log.Error("step failed", zap.Error(err))
	case entry.ctx.Err() != nil && outcome == nil:
		sr.Status = types.ResultStatusCancelled
	default:
		sr.Outcome = outcome
	}
	sr.Finish()
	s.notify(func(o Observer) { o.OnStepCompleted(ctx, run, step, sr) })
	return sr
}

func (s *Scheduler) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (s *Scheduler) invoke(ctx context.Context, exec executor.Executor, sc *executor.StepContext) (outcome *types.StepOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = executor.NewPanicError(exec.ID(), sc.Step.Label(), r)
		}
	}()
	return exec.Execute(ctx, sc)
}

func (s *Scheduler) notify(fn func(o Observer)) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("observer panicked", zap.String("panic", fmt.Sprint(r)))
				}
			}()
			fn(o)
		}()
	}
}
