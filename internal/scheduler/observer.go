package scheduler

import (
	"context"
	"time"

	"yqhp/combat-engine/pkg/types"
)

// Run identifies one recipe execution for observers.
type Run struct {
	ID        string
	Recipe    *types.Recipe
	Exec      *types.ExecutionContext
	StartTime time.Time
}

// Observer 接收调度器的生命周期通知。
// 通知在调度路径上同步发出，实现方不能长时间阻塞。
// Step notifications of a parallel group may arrive concurrently, and no
// ordering holds across recipes running for different actors.
type Observer interface {
	OnRecipeStarted(ctx context.Context, run *Run)
	OnRecipeCompleted(ctx context.Context, run *Run, result *types.RecipeResult)
	OnGroupStarted(ctx context.Context, run *Run, group types.StepGroup, index int)
	OnGroupCompleted(ctx context.Context, run *Run, group types.StepGroup, result *types.GroupResult)
	OnStepStarted(ctx context.Context, run *Run, step types.Step)
	OnStepCompleted(ctx context.Context, run *Run, step types.Step, result *types.StepResult)
	OnBranchTaken(ctx context.Context, run *Run, from, to string)
}

// NoopObserver 空实现，嵌入后只需覆盖关心的回调
type NoopObserver struct{}

func (NoopObserver) OnRecipeStarted(context.Context, *Run) {}

func (NoopObserver) OnRecipeCompleted(context.Context, *Run, *types.RecipeResult) {}

func (NoopObserver) OnGroupStarted(context.Context, *Run, types.StepGroup, int) {}

func (NoopObserver) OnGroupCompleted(context.Context, *Run, types.StepGroup, *types.GroupResult) {}

func (NoopObserver) OnStepStarted(context.Context, *Run, types.Step) {}

func (NoopObserver) OnStepCompleted(context.Context, *Run, types.Step, *types.StepResult) {}

func (NoopObserver) OnBranchTaken(context.Context, *Run, string, string) {}

// 确保 NoopObserver 实现了 Observer 接口
var _ Observer = NoopObserver{}
