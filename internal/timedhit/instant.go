package timedhit

import (
	"context"

	"yqhp/combat-engine/pkg/types"
)

// InstantRunner succeeds every configured hit without waiting. It backs
// headless simulation and any request whose interactive runner is missing.
type InstantRunner struct {
	judgment types.Judgment
	basic    BasicProfile
	chain    ChainProfile
}

// NewInstantRunner creates an instant runner. A non-success judgment is
// replaced by Good.
func NewInstantRunner(judgment types.Judgment, basic BasicProfile, chain ChainProfile) *InstantRunner {
	if !judgment.IsSuccess() {
		judgment = types.JudgmentGood
	}
	return &InstantRunner{judgment: judgment, basic: basic, chain: chain}
}

// Kind implements Runner.
func (r *InstantRunner) Kind() types.TimedHitKind { return types.TimedHitInstant }

// Run implements Runner.
func (r *InstantRunner) Run(ctx context.Context, run *Run) *types.TimedHitResult {
	hits := 1
	mult := r.basic.Multiplier(r.judgment)
	refund := r.basic.Refund(r.judgment)

	if run.Request.Kind == types.TimedHitChain {
		tier := r.chain.Tier(run.Request.Tier)
		hits = tier.Hits
		if run.Request.Hits > 0 {
			hits = run.Request.Hits
		}
		if hits < 1 {
			hits = 1
		}
		mult = r.chain.Multiplier(r.judgment) * tier.Multiplier
		refund = hits
		if refund > tier.RefundMax {
			refund = tier.RefundMax
		}
	}

	if ctx.Err() != nil {
		return run.Cancelled(types.TimedHitInstant, hits)
	}

	result := &types.TimedHitResult{
		Kind:             types.TimedHitInstant,
		Judgment:         r.judgment,
		HitsSucceeded:    hits,
		TotalHits:        hits,
		DamageMultiplier: mult,
		PhaseIndex:       hits - 1,
		PhaseTotal:       hits,
		IsFinal:          true,
		CPRefund:         refund,
	}
	run.Emit(result)
	return result
}
