package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"yqhp/combat-engine/internal/eventbus"
	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/types"
)

func TestCounterSink(t *testing.T) {
	s := NewSink(Counter)
	assert.True(t, s.IsEmpty())
	s.Add(Sample{Value: 2, Time: time.Now()})
	s.Add(Sample{Value: 3})
	out := s.Format(5)
	assert.Equal(t, 5.0, out["count"])
	assert.Equal(t, 2.0, out["samples"])
	assert.Equal(t, 3.0, out["largest"])
	assert.Equal(t, 1.0, out["per_second"])
	assert.NotContains(t, NewSink(Counter).Format(0), "per_second")
}

func TestGaugeSink(t *testing.T) {
	s := NewSink(Gauge)
	for _, v := range []float64{3, 1, 2} {
		s.Add(Sample{Value: v})
	}
	out := s.Format(0)
	assert.Equal(t, 2.0, out["value"])
	assert.Equal(t, 1.0, out["min"])
	assert.Equal(t, 3.0, out["max"])
	assert.Equal(t, 2.0, out["avg"])
	assert.Equal(t, 3.0, out["samples"])
}

func TestRateSink(t *testing.T) {
	s := NewSink(Rate)
	assert.Equal(t, 0.0, s.Format(0)["ratio"])
	for _, v := range []float64{1, 0, 1, 1, 0, 1} {
		s.Add(Sample{Value: v})
	}
	out := s.Format(0)
	assert.Equal(t, 4.0, out["hits"])
	assert.Equal(t, 2.0, out["misses"])
	assert.Equal(t, 6.0, out["total"])
	assert.InDelta(t, 4.0/6.0, out["ratio"], 1e-9)
	assert.Equal(t, 2.0, out["best_streak"])
}

func TestTrendSink(t *testing.T) {
	s := NewTrendSink()
	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0.0, s.Percentile(50))

	for i := 1; i <= 100; i++ {
		s.Add(Sample{Value: float64(i)})
	}
	out := s.Format(0)
	assert.Equal(t, 100.0, out["count"])
	assert.Equal(t, 1.0, out["min"])
	assert.Equal(t, 100.0, out["max"])
	assert.InDelta(t, 50.5, out["avg"], 1e-9)
	assert.InDelta(t, 50, out["med"], 0.1)
	assert.InDelta(t, 90, out["p(90)"], 0.1)
	assert.InDelta(t, 99, out["p(99)"], 0.1)
}

func TestTrendSink_ClampsOutOfRange(t *testing.T) {
	s := NewTrendSink()
	s.Add(Sample{Value: -5})
	s.Add(Sample{Value: 1e12})
	out := s.Format(0)
	assert.Equal(t, -5.0, out["min"])
	assert.Equal(t, 1e12, out["max"])
	assert.Equal(t, 2.0, out["count"])
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := r.NewMetric("b", Counter, Default, "")
	assert.Same(t, a, r.NewMetric("b", Trend, Time, "again"))
	r.NewMetric("a", Rate, Default, "")
	assert.Equal(t, []string{"a", "b"}, r.Names())
	assert.Nil(t, r.Get("missing"))
}

func TestCollector_SchedulerEvents(t *testing.T) {
	c := NewCollector(zap.NewNop())
	ctx := context.Background()

	c.OnStepCompleted(ctx, nil, types.Step{}, &types.StepResult{ExecutorID: "clip", Status: types.ResultStatusSuccess, Duration: 20 * time.Millisecond})
	c.OnStepCompleted(ctx, nil, types.Step{}, &types.StepResult{ExecutorID: "clip", Status: types.ResultStatusFailed, Duration: 10 * time.Millisecond})
	c.OnStepCompleted(ctx, nil, types.Step{}, &types.StepResult{ExecutorID: "vfx", Status: types.ResultStatusSkipped})
	c.OnStepCompleted(ctx, nil, types.Step{}, &types.StepResult{ExecutorID: "vfx", Status: types.ResultStatusCancelled})
	c.OnStepCompleted(ctx, nil, types.Step{}, nil)
	c.OnBranchTaken(ctx, nil, "impact", "followup")
	c.OnRecipeCompleted(ctx, nil, &types.RecipeResult{RecipeID: "slash", Duration: 40 * time.Millisecond, Cancelled: true})

	s := c.Summary()
	assert.Equal(t, 4.0, s.Metrics[MetricSteps]["count"])
	assert.Equal(t, 0.5, s.Metrics[MetricStepSuccess]["ratio"])
	assert.Equal(t, 1.0, s.Metrics[MetricStepsSkipped]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricStepsCancelled]["count"])
	assert.Equal(t, 2.0, s.Metrics[MetricStepDuration]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricBranches]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricRecipeCancelled]["ratio"])
	assert.Equal(t, 40.0, s.Metrics[MetricRecipeDuration]["max"])
	assert.NotContains(t, s.Metrics, MetricTimedHits)
}

func TestCollector_TimedHitsFromBus(t *testing.T) {
	c := NewCollector(zap.NewNop())
	bus := eventbus.New(zap.NewNop())
	unsubscribe := c.Attach(bus)

	bus.Publish(timedhit.TopicResult, &types.TimedHitResult{Judgment: types.JudgmentPerfect, ConsumedInput: true, DeltaMs: -12, DamageMultiplier: 1.5, CPRefund: 2})
	bus.Publish(timedhit.TopicResult, types.TimedHitResult{Judgment: types.JudgmentGood, ConsumedInput: true, DeltaMs: 60, DamageMultiplier: 1.2, CPRefund: 1})
	bus.Publish(timedhit.TopicResult, &types.TimedHitResult{Judgment: types.JudgmentMiss, DamageMultiplier: 1})
	bus.Publish(timedhit.TopicResult, &types.TimedHitResult{Judgment: types.JudgmentMiss, Cancelled: true})
	bus.Publish(timedhit.TopicResult, "noise")

	unsubscribe()
	bus.Publish(timedhit.TopicResult, &types.TimedHitResult{Judgment: types.JudgmentPerfect})

	s := c.Summary()
	require.Contains(t, s.Metrics, MetricTimedHits)
	assert.Equal(t, 4.0, s.Metrics[MetricTimedHits]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricTimedHitPerfect]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricTimedHitGood]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricTimedHitMiss]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricTimedHitCanceled]["count"])
	assert.InDelta(t, 2.0/3.0, s.Metrics[MetricTimedHitSuccess]["ratio"], 1e-9)
	assert.Equal(t, 12.0, s.Metrics[MetricTimedHitDelta]["min"])
	assert.Equal(t, 60.0, s.Metrics[MetricTimedHitDelta]["max"])
	assert.Equal(t, 3.0, s.Metrics[MetricCPRefund]["count"])
	assert.Equal(t, 1.0, s.Metrics[MetricDamageMultiplier]["value"])

	assert.NotPanics(t, func() { c.Attach(nil)() })
}
