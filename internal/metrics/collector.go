package metrics

import (
	"context"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"go.uber.org/zap"

	"yqhp/combat-engine/internal/eventbus"
	"yqhp/combat-engine/internal/scheduler"
	"yqhp/combat-engine/internal/timedhit"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// 指标名称
const (
	MetricRecipes          = "recipes"
	MetricRecipeDuration   = "recipe_duration"
	MetricRecipeCancelled  = "recipe_cancelled"
	MetricRecipeAborted    = "recipe_aborted"
	MetricBranches         = "branches"
	MetricSteps            = "steps"
	MetricStepDuration     = "step_duration"
	MetricStepSuccess      = "step_success"
	MetricStepsSkipped     = "steps_skipped"
	MetricStepsCancelled   = "steps_cancelled"
	MetricTimedHits        = "timed_hits"
	MetricTimedHitSuccess  = "timed_hit_success"
	MetricTimedHitPerfect  = "timed_hit_perfect"
	MetricTimedHitGood     = "timed_hit_good"
	MetricTimedHitMiss     = "timed_hit_miss"
	MetricTimedHitCanceled = "timed_hit_cancelled"
	MetricTimedHitDelta    = "timed_hit_delta"
	MetricDamageMultiplier = "damage_multiplier"
	MetricCPRefund         = "cp_refund"
)

// Subscriber is the part of the event bus the collector listens on.
type Subscriber interface {
	Subscribe(topic string, h eventbus.Handler) func()
}

// Collector observes the scheduler and the judgment results published on the
// bus and feeds the samples into a registry.
type Collector struct {
	scheduler.NoopObserver

	registry *Registry
	start    time.Time
	logger   *zap.Logger
}

// NewCollector creates a collector with every metric pre-registered.
func NewCollector(l *zap.Logger) *Collector {
	if l == nil {
		l = logger.Named("metrics")
	}
	r := NewRegistry()
	r.NewMetric(MetricRecipes, Counter, Default, "recipes completed")
	r.NewMetric(MetricRecipeDuration, Trend, Time, "recipe wall time in ms")
	r.NewMetric(MetricRecipeCancelled, Rate, Default, "share of recipes that were cancelled")
	r.NewMetric(MetricRecipeAborted, Rate, Default, "share of recipes aborted by a step outcome")
	r.NewMetric(MetricBranches, Counter, Default, "branches taken")
	r.NewMetric(MetricSteps, Counter, Default, "steps completed")
	r.NewMetric(MetricStepDuration, Trend, Time, "executed step time in ms")
	r.NewMetric(MetricStepSuccess, Rate, Default, "share of executed steps that succeeded")
	r.NewMetric(MetricStepsSkipped, Counter, Default, "steps skipped")
	r.NewMetric(MetricStepsCancelled, Counter, Default, "steps cancelled")
	r.NewMetric(MetricTimedHits, Counter, Default, "timed-hit results")
	r.NewMetric(MetricTimedHitSuccess, Rate, Default, "share of timed hits judged perfect or good")
	r.NewMetric(MetricTimedHitPerfect, Counter, Default, "perfect judgments")
	r.NewMetric(MetricTimedHitGood, Counter, Default, "good judgments")
	r.NewMetric(MetricTimedHitMiss, Counter, Default, "miss judgments")
	r.NewMetric(MetricTimedHitCanceled, Counter, Default, "cancelled timed-hit runs")
	r.NewMetric(MetricTimedHitDelta, Trend, Time, "absolute input offset from the window center in ms")
	r.NewMetric(MetricDamageMultiplier, Gauge, Default, "damage multiplier of the latest result")
	r.NewMetric(MetricCPRefund, Counter, Default, "resource refunded by timed hits")
	return &Collector{
		registry: r,
		start:    time.Now(),
		logger:   l,
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *Registry { return c.registry }

func (c *Collector) add(name string, value float64, tags map[string]string) {
	m := c.registry.Get(name)
	if m == nil {
		c.logger.Warn("unknown metric", zap.String("metric", name))
		return
	}
	m.Sink.Add(Sample{Metric: m, Time: time.Now(), Value: value, Tags: tags})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// OnRecipeCompleted implements scheduler.Observer.
func (c *Collector) OnRecipeCompleted(_ context.Context, _ *scheduler.Run, result *types.RecipeResult) {
	if result == nil {
		return
	}
	tags := map[string]string{"recipe": result.RecipeID}
	c.add(MetricRecipes, 1, tags)
	c.add(MetricRecipeDuration, millis(result.Duration), tags)
	c.add(MetricRecipeCancelled, boolValue(result.Cancelled), tags)
	c.add(MetricRecipeAborted, boolValue(result.Aborted), tags)
}

// OnStepCompleted implements scheduler.Observer.
func (c *Collector) OnStepCompleted(_ context.Context, _ *scheduler.Run, _ types.Step, result *types.StepResult) {
	if result == nil {
		return
	}
	tags := map[string]string{"executor": result.ExecutorID}
	c.add(MetricSteps, 1, tags)
	switch result.Status {
	case types.ResultStatusSkipped:
		c.add(MetricStepsSkipped, 1, tags)
		return
	case types.ResultStatusCancelled:
		c.add(MetricStepsCancelled, 1, tags)
		return
	}
	c.add(MetricStepDuration, millis(result.Duration), tags)
	c.add(MetricStepSuccess, boolValue(result.Status == types.ResultStatusSuccess), tags)
}

// OnBranchTaken implements scheduler.Observer.
func (c *Collector) OnBranchTaken(context.Context, *scheduler.Run, string, string) {
	c.add(MetricBranches, 1, nil)
}

// ObserveTimedHit records a final timed-hit result.
func (c *Collector) ObserveTimedHit(result *types.TimedHitResult) {
	if result == nil {
		return
	}
	tags := map[string]string{"actor": result.Actor, "kind": string(result.Kind)}
	c.add(MetricTimedHits, 1, tags)
	if result.Cancelled {
		c.add(MetricTimedHitCanceled, 1, tags)
		return
	}
	c.add(MetricTimedHitSuccess, boolValue(result.Judgment.IsSuccess()), tags)
	switch result.Judgment {
	case types.JudgmentPerfect:
		c.add(MetricTimedHitPerfect, 1, tags)
	case types.JudgmentGood:
		c.add(MetricTimedHitGood, 1, tags)
	default:
		c.add(MetricTimedHitMiss, 1, tags)
	}
	if result.ConsumedInput {
		delta := result.DeltaMs
		if delta < 0 {
			delta = -delta
		}
		c.add(MetricTimedHitDelta, delta, tags)
	}
	c.add(MetricDamageMultiplier, result.DamageMultiplier, tags)
	if result.CPRefund > 0 {
		c.add(MetricCPRefund, float64(result.CPRefund), tags)
	}
}

// Attach subscribes the collector to timed-hit results and returns the
// unsubscribe function.
func (c *Collector) Attach(bus Subscriber) func() {
	if bus == nil {
		return func() {}
	}
	return bus.Subscribe(timedhit.TopicResult, func(_ string, payload any) {
		switch v := payload.(type) {
		case *types.TimedHitResult:
			c.ObserveTimedHit(v)
		case types.TimedHitResult:
			c.ObserveTimedHit(&v)
		default:
			c.logger.Debug("unexpected timed-hit payload", zap.Any("payload", payload))
		}
	})
}

// Summary is a point-in-time view of every non-empty metric.
type Summary struct {
	Duration time.Duration                 `json:"duration"`
	Metrics  map[string]map[string]float64 `json:"metrics"`
}

// Summary formats every metric that received samples.
func (c *Collector) Summary() *Summary {
	elapsed := time.Since(c.start)
	names := slice.Filter(c.registry.Names(), func(_ int, name string) bool {
		return !c.registry.Get(name).Sink.IsEmpty()
	})
	s := &Summary{Duration: elapsed, Metrics: make(map[string]map[string]float64, len(names))}
	for _, name := range names {
		s.Metrics[name] = c.registry.Get(name).Sink.Format(elapsed.Seconds())
	}
	return s
}

var _ scheduler.Observer = (*Collector)(nil)
