package timedhit

import (
	"context"

	"yqhp/combat-engine/pkg/types"
)

// BasicRunner judges a single window of window_ms against target_ms.
type BasicRunner struct {
	profile  BasicProfile
	profiles *ProfileResolver
}

// NewBasicRunner creates a basic runner. A request profile id found in
// profiles overrides the perfect and good thresholds.
func NewBasicRunner(profile BasicProfile, profiles *ProfileResolver) *BasicRunner {
	return &BasicRunner{profile: profile, profiles: profiles}
}

// Kind implements Runner.
func (b *BasicRunner) Kind() types.TimedHitKind { return types.TimedHitBasic }

// Run implements Runner.
func (b *BasicRunner) Run(ctx context.Context, run *Run) *types.TimedHitResult {
	p := b.profile
	tol := types.TimedHitTolerance{PerfectMs: p.PerfectMs, GoodMs: p.GoodMs, EarlyMs: p.EarlyMs}
	if id := run.Request.ProfileID; id != "" && b.profiles != nil {
		if t, ok := b.profiles.Lookup(id); ok {
			tol.PerfectMs, tol.GoodMs = t.PerfectMs, t.GoodMs
		}
	}

	start := run.Now()
	end := start + p.Window()
	target := start + types.Millis(p.TargetMs)

	m, ok, err := run.AwaitInput(ctx, start, end, tol, target)
	if err != nil {
		return run.Cancelled(types.TimedHitBasic, 1)
	}

	j := types.JudgmentMiss
	if ok {
		j = tol.Classify(m.DeltaMs)
	}
	result := &types.TimedHitResult{
		Kind:             types.TimedHitBasic,
		Judgment:         j,
		HitsSucceeded:    boolToInt(j.IsSuccess()),
		TotalHits:        1,
		DamageMultiplier: p.Multiplier(j),
		PhaseIndex:       0,
		PhaseTotal:       1,
		IsFinal:          true,
		CPRefund:         p.Refund(j),
		ConsumedInput:    ok,
		DeltaMs:          m.DeltaMs,
	}
	run.Emit(result)
	return result
}
