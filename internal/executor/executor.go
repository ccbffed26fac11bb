// Package executor provides the executor framework the scheduler dispatches steps to.
package executor

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/types"
)

// Executor performs one category of step (play a clip, apply damage, run a
// timed-hit window). Executors are registered and looked up by ID.
type Executor interface {
	// ID returns the executor identifier steps refer to.
	ID() string

	// CanExecute reports whether the executor accepts the step. A declined
	// step is skipped by the scheduler.
	CanExecute(step types.Step) bool

	// Execute runs the step. The returned outcome may redirect the recipe;
	// nil means continue. ctx is cancelled when the step must stop.
	Execute(ctx context.Context, sc *StepContext) (*types.StepOutcome, error)
}

// Lifecycle is implemented by executors that hold resources.
type Lifecycle interface {
	Init(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// StepContext is what an executor sees of one step invocation.
type StepContext struct {
	RunID    string
	RecipeID string
	GroupID  string
	Step     types.Step
	Exec     *types.ExecutionContext

	// Binding is the resolved binding handle, valid when HasBinding is true.
	Binding    any
	HasBinding bool

	Logger *zap.Logger
}

// ParamString returns a string parameter or the fallback.
func (sc *StepContext) ParamString(key, fallback string) string {
	return sc.Step.ParamOr(key, fallback)
}

// ParamInt returns an integer parameter or the fallback when absent or malformed.
func (sc *StepContext) ParamInt(key string, fallback int) int {
	v, ok := sc.Step.Param(key)
	if !ok {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return i
}

// ParamFloat returns a float parameter or the fallback when absent or malformed.
func (sc *StepContext) ParamFloat(key string, fallback float64) float64 {
	v, ok := sc.Step.Param(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

// ParamDuration accepts Go duration syntax ("250ms") or plain seconds ("0.25").
func (sc *StepContext) ParamDuration(key string, fallback time.Duration) time.Duration {
	v, ok := sc.Step.Param(key)
	if !ok {
		return fallback
	}
	return ParseDuration(v, fallback)
}

// ParseDuration parses Go duration syntax or plain seconds.
func ParseDuration(v string, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(math.Round(f * float64(time.Second)))
	}
	return fallback
}

// BaseExecutor 为执行器提供通用功能。
type BaseExecutor struct {
	id string
}

// NewBaseExecutor creates a new BaseExecutor.
func NewBaseExecutor(id string) *BaseExecutor {
	return &BaseExecutor{id: id}
}

// ID returns the executor id.
func (b *BaseExecutor) ID() string {
	return b.id
}

// CanExecute accepts every step.
func (b *BaseExecutor) CanExecute(types.Step) bool {
	return true
}

// Init is a no-op.
func (b *BaseExecutor) Init(context.Context) error {
	return nil
}

// Cleanup is a no-op.
func (b *BaseExecutor) Cleanup(context.Context) error {
	return nil
}

// Func adapts a function to the Executor interface.
type Func struct {
	*BaseExecutor
	fn func(ctx context.Context, sc *StepContext) (*types.StepOutcome, error)
}

// NewFunc creates an executor from a function.
func NewFunc(id string, fn func(ctx context.Context, sc *StepContext) (*types.StepOutcome, error)) *Func {
	return &Func{BaseExecutor: NewBaseExecutor(id), fn: fn}
}

// Execute calls the wrapped function.
func (f *Func) Execute(ctx context.Context, sc *StepContext) (*types.StepOutcome, error) {
	return f.fn(ctx, sc)
}
