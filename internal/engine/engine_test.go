package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/combat-engine/internal/combatevent"
	"yqhp/combat-engine/internal/config"
	"yqhp/combat-engine/internal/metrics"
	"yqhp/combat-engine/internal/recipe"
	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/types"
)

const testCatalog = `
recipes:
  - id: slash
    groups:
      - id: windup
        steps:
          - "wait(duration=0.01)"
      - id: impact/hit
        steps:
          - "timed_hit(kind=instant, on_perfect=branch:finisher)"
      - id: runback
        steps:
          - "wait(duration=0.01)"
      - id: finisher
        steps:
          - "wait(duration=0.01)"
  - id: parry
    groups:
      - id: guard
        steps:
          - "emit(topic=timedhit.window.open, tag=parry) | wait(duration=0.05) | emit(topic=timedhit.window.close, tag=parry)"
`

type flagLog struct {
	mu    sync.Mutex
	flags []combatevent.Flag
}

func (l *flagLog) OnCombatEvent(flag combatevent.Flag, _ *combatevent.CombatEventContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flags = append(l.flags, flag)
}

func (l *flagLog) snapshot() []combatevent.Flag {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]combatevent.Flag(nil), l.flags...)
}

func newTestEngine(t *testing.T, mutate func(cfg *config.Config)) *Engine {
	t.Helper()
	catalog, err := recipe.NewLoader(zap.NewNop()).Parse([]byte(testCatalog))
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	e, err := New(cfg, WithLogger(zap.NewNop()), WithCatalog(catalog))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() {
		_ = e.Stop(context.Background())
	})
	return e
}

func combatants() (types.Combatant, []types.Combatant) {
	return types.Combatant{ID: "hero", Alignment: types.AlignmentAlly},
		[]types.Combatant{
			{ID: "slime", Alignment: types.AlignmentEnemy},
			{ID: "bat", Alignment: types.AlignmentEnemy},
		}
}

func TestEngine_Lifecycle(t *testing.T) {
	e, err := New(nil, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.NotNil(t, e.Config())
	assert.NotNil(t, e.Clock())
	assert.Equal(t, 0, e.Catalog().Len())
	assert.ElementsMatch(t, []string{"emit", "timed_hit", "wait"}, e.Scheduler().Registry().IDs())

	ctx := context.Background()
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop(ctx))
	require.NoError(t, e.Stop(ctx))
	assert.ErrorIs(t, e.Start(ctx), ErrStopped)
}

func TestEngine_StopWithoutStart(t *testing.T) {
	e, err := New(nil, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.NoError(t, e.Stop(context.Background()))
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.TimedHit.Retention = 0
	_, err := New(cfg, WithLogger(zap.NewNop()))
	var verrs config.ValidationErrors
	assert.ErrorAs(t, err, &verrs)
}

func TestEngine_CatalogFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recipes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0644))

	cfg := config.DefaultConfig()
	cfg.Catalog.Path = path
	e, err := New(cfg, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, []string{"parry", "slash"}, e.Catalog().IDs())

	cfg.Catalog.Path = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = New(cfg, WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestEngine_ExecuteUnknownRecipe(t *testing.T) {
	e := newTestEngine(t, nil)
	actor, targets := combatants()
	_, err := e.Execute(context.Background(), "missing", e.NewExecutionContext(actor, targets, types.Selection{}))
	assert.ErrorIs(t, err, ErrRecipeNotFound)
}

func TestEngine_InstantBranchDrivesFlagsAndMetrics(t *testing.T) {
	e := newTestEngine(t, func(cfg *config.Config) {
		cfg.TimedHit.Interactive = false
		cfg.TimedHit.InstantJudgment = "perfect"
	})
	log := &flagLog{}
	e.Dispatcher().RegisterListener("log", log)

	actor, targets := combatants()
	result, err := e.Execute(context.Background(), "slash", e.NewExecutionContext(actor, targets, types.Selection{ActionID: "slash"}))
	require.NoError(t, err)

	assert.False(t, result.Cancelled)
	assert.Equal(t, 1, result.Branches)
	var groups []string
	for _, g := range result.Groups {
		groups = append(groups, g.GroupID)
	}
	assert.Equal(t, []string{"windup", "impact/hit", "finisher"}, groups)

	assert.Equal(t, []combatevent.Flag{combatevent.FlagWindup, combatevent.FlagImpact, combatevent.FlagImpact}, log.snapshot())

	summary := e.Metrics().Summary()
	assert.Equal(t, 1.0, summary.Metrics[metrics.MetricBranches]["count"])
	assert.Equal(t, 1.0, summary.Metrics[metrics.MetricTimedHitPerfect]["count"])
	assert.Equal(t, 1.0, summary.Metrics[metrics.MetricRecipes]["count"])
}

func TestEngine_WindowDrivenFromRecipe(t *testing.T) {
	e := newTestEngine(t, func(cfg *config.Config) {
		cfg.Dispatcher.Inline = true
	})

	results := make(chan *types.TimedHitResult, 1)
	e.Bus().Subscribe(timedhit.TopicResult, func(_ string, payload any) {
		if r, ok := payload.(*types.TimedHitResult); ok {
			results <- r
		}
	})
	// 窗口打开时按下
	e.Bus().Subscribe(timedhit.TopicWindowOpen, func(string, any) {
		e.PressInput("hero", "attack")
	})

	actor, targets := combatants()
	result, err := e.Execute(context.Background(), "parry", e.NewExecutionContext(actor, targets[:1], types.Selection{}))
	require.NoError(t, err)
	assert.Equal(t, 3, result.StepCounts()[types.ResultStatusSuccess])

	select {
	case r := <-results:
		assert.Equal(t, "hero", r.Actor)
		assert.Equal(t, "parry", r.Tag)
		assert.True(t, r.ConsumedInput)
		assert.True(t, r.Judgment.IsSuccess())
	case <-time.After(time.Second):
		t.Fatal("no window result published")
	}
	assert.Equal(t, 1, e.TimedHit().Streak("hero"))
	assert.Equal(t, 1.0, e.Metrics().Summary().Metrics[metrics.MetricTimedHitSuccess]["hits"])
}

func TestEngine_ExecuteRecipeFillsContext(t *testing.T) {
	e := newTestEngine(t, func(cfg *config.Config) {
		cfg.TimedHit.Interactive = false
	})
	slash, ok := e.Catalog().Get("slash")
	require.True(t, ok)

	actor, targets := combatants()
	execCtx := &types.ExecutionContext{Actor: actor, Targets: targets}
	result, err := e.ExecuteRecipe(context.Background(), slash, execCtx)
	require.NoError(t, err)
	assert.NotNil(t, execCtx.TimedHit)
	assert.NotNil(t, execCtx.Events)
	// good 判定不跳转，依次执行全部分组
	assert.Len(t, result.Groups, 4)
}

func TestEngine_CancelledExecution(t *testing.T) {
	e := newTestEngine(t, nil)
	log := &flagLog{}
	e.Dispatcher().RegisterListener("log", log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	actor, targets := combatants()
	result, err := e.Execute(ctx, "slash", e.NewExecutionContext(actor, targets, types.Selection{}))
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Contains(t, log.snapshot(), combatevent.FlagActionCancel)
}
