package executor

import (
	"context"
	"time"

	"yqhp/combat-engine/internal/clock"
	"yqhp/combat-engine/pkg/types"
)

const (
	// WaitExecutorID is the id of the built-in wait executor.
	WaitExecutorID = "wait"
)

// WaitOutput Wait 步骤输出
type WaitOutput struct {
	Duration time.Duration `json:"duration"`
	Actual   time.Duration `json:"actual"`
}

// WaitExecutor pauses for the step's "duration" parameter.
type WaitExecutor struct {
	*BaseExecutor
	clock clock.Clock
}

// NewWaitExecutor creates a wait executor driven by the given clock.
func NewWaitExecutor(clk clock.Clock) *WaitExecutor {
	if clk == nil {
		clk = clock.NewReal()
	}
	return &WaitExecutor{BaseExecutor: NewBaseExecutor(WaitExecutorID), clock: clk}
}

// Execute waits for the configured duration or until ctx is done.
func (e *WaitExecutor) Execute(ctx context.Context, sc *StepContext) (*types.StepOutcome, error) {
	d := sc.ParamDuration("duration", 0)
	start := e.clock.Now()
	if d <= 0 {
		return types.Continue(&WaitOutput{}), nil
	}

	timer := e.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return types.Continue(&WaitOutput{Duration: d, Actual: e.clock.Now() - start}), ctx.Err()
	case <-timer.Chan():
		return types.Continue(&WaitOutput{Duration: d, Actual: e.clock.Now() - start}), nil
	}
}
