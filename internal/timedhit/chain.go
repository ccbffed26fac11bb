package timedhit

import (
	"context"

	"yqhp/combat-engine/pkg/types"
)

// ChainRunner judges a sequence of phases. A Miss ends the chain.
//
// Idle -> PhaseWaiting(i) -> PhaseResolved(i) -> PhaseWaiting(i+1) | Terminated,
// ending Completed or Cancelled.
type ChainRunner struct {
	profile ChainProfile
}

// NewChainRunner creates a chain runner.
func NewChainRunner(profile ChainProfile) *ChainRunner {
	return &ChainRunner{profile: profile}
}

// Kind implements Runner.
func (c *ChainRunner) Kind() types.TimedHitKind { return types.TimedHitChain }

// Run implements Runner.
func (c *ChainRunner) Run(ctx context.Context, run *Run) *types.TimedHitResult {
	p := c.profile
	tier := p.Tier(run.Request.Tier)
	total := tier.Hits
	if run.Request.Hits > 0 {
		total = run.Request.Hits
	}
	if total < 1 {
		total = 1
	}

	phase := p.Phase()
	grace := p.Grace()
	tol := p.Tolerance()
	centerOffset := types.Millis(p.Center * p.PhaseDurationMs)

	var (
		perfect, good int
		multSum       float64
		resolved      int
		overall       = types.JudgmentPerfect
		last          *types.TimedHitResult
	)

	for i := 0; i < total; i++ {
		phaseStart := run.Now()
		center := phaseStart + centerOffset

		m, ok, err := run.AwaitInput(ctx, phaseStart, phaseStart+phase+grace, tol, center)
		if err != nil {
			return run.Cancelled(types.TimedHitChain, total)
		}

		j := types.JudgmentMiss
		if ok {
			j = tol.Classify(m.DeltaMs)
		}
		resolved++
		multSum += p.Multiplier(j)
		switch j {
		case types.JudgmentPerfect:
			perfect++
		case types.JudgmentGood:
			good++
			if overall == types.JudgmentPerfect {
				overall = types.JudgmentGood
			}
		default:
			overall = types.JudgmentMiss
		}

		final := j == types.JudgmentMiss || i == total-1
		last = &types.TimedHitResult{
			Kind:             types.TimedHitChain,
			Judgment:         j,
			HitsSucceeded:    perfect + good,
			TotalHits:        total,
			DamageMultiplier: p.Multiplier(j),
			PhaseIndex:       i,
			PhaseTotal:       total,
			IsFinal:          final,
			ConsumedInput:    ok,
			DeltaMs:          m.DeltaMs,
		}
		run.Emit(last)
		if final {
			break
		}

		// 提前输入时等到本阶段结束再进入下一阶段
		if err := run.SleepUntil(ctx, phaseStart+phase); err != nil {
			return run.Cancelled(types.TimedHitChain, total)
		}
	}

	hits := perfect + good
	refund := hits
	if refund > tier.RefundMax {
		refund = tier.RefundMax
	}
	return &types.TimedHitResult{
		Kind:             types.TimedHitChain,
		Judgment:         overall,
		HitsSucceeded:    hits,
		TotalHits:        total,
		DamageMultiplier: multSum / float64(resolved) * tier.Multiplier,
		PhaseIndex:       last.PhaseIndex,
		PhaseTotal:       total,
		IsFinal:          true,
		CPRefund:         refund,
		ConsumedInput:    last.ConsumedInput,
		DeltaMs:          last.DeltaMs,
	}
}
