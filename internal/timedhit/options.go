package timedhit

import (
	"time"

	"yqhp/combat-engine/pkg/types"
)

// BasicProfile configures the single-window runner.
type BasicProfile struct {
	WindowMs          float64 `yaml:"window_ms" json:"window_ms"`
	TargetMs          float64 `yaml:"target_ms" json:"target_ms"`
	EarlyMs           float64 `yaml:"early_ms" json:"early_ms"`
	PerfectMs         float64 `yaml:"perfect_ms" json:"perfect_ms"`
	GoodMs            float64 `yaml:"good_ms" json:"good_ms"`
	PerfectMultiplier float64 `yaml:"perfect_multiplier" json:"perfect_multiplier"`
	GoodMultiplier    float64 `yaml:"good_multiplier" json:"good_multiplier"`
	MissMultiplier    float64 `yaml:"miss_multiplier" json:"miss_multiplier"`
	PerfectRefund     int     `yaml:"perfect_refund" json:"perfect_refund"`
	GoodRefund        int     `yaml:"good_refund" json:"good_refund"`
}

// Window returns the window length.
func (p BasicProfile) Window() time.Duration { return types.Millis(p.WindowMs) }

// Multiplier returns the damage multiplier for a judgment.
func (p BasicProfile) Multiplier(j types.Judgment) float64 {
	switch j {
	case types.JudgmentPerfect:
		return p.PerfectMultiplier
	case types.JudgmentGood:
		return p.GoodMultiplier
	default:
		return p.MissMultiplier
	}
}

// Refund returns the cp refund for a judgment.
func (p BasicProfile) Refund(j types.Judgment) int {
	switch j {
	case types.JudgmentPerfect:
		return p.PerfectRefund
	case types.JudgmentGood:
		return p.GoodRefund
	default:
		return 0
	}
}

// ChainTier is one charge level of a chain.
type ChainTier struct {
	Hits       int     `yaml:"hits" json:"hits"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	RefundMax  int     `yaml:"refund_max" json:"refund_max"`
}

// ChainProfile configures the multi-phase runner. Center and radii are
// normalized to the phase duration.
type ChainProfile struct {
	PhaseDurationMs   float64     `yaml:"phase_duration_ms" json:"phase_duration_ms"`
	Center            float64     `yaml:"center" json:"center"`
	PerfectRadius     float64     `yaml:"perfect_radius" json:"perfect_radius"`
	SuccessRadius     float64     `yaml:"success_radius" json:"success_radius"`
	EarlyMs           float64     `yaml:"early_ms" json:"early_ms"`
	GraceMs           float64     `yaml:"grace_ms" json:"grace_ms"`
	PerfectMultiplier float64     `yaml:"perfect_multiplier" json:"perfect_multiplier"`
	GoodMultiplier    float64     `yaml:"good_multiplier" json:"good_multiplier"`
	Tiers             []ChainTier `yaml:"tiers" json:"tiers"`
}

// Phase returns the phase duration.
func (p ChainProfile) Phase() time.Duration { return types.Millis(p.PhaseDurationMs) }

// Grace returns the grace period after a phase.
func (p ChainProfile) Grace() time.Duration { return types.Millis(p.GraceMs) }

// Tier clamps the index into the tier list.
func (p ChainProfile) Tier(i int) ChainTier {
	if len(p.Tiers) == 0 {
		return ChainTier{Hits: 1, Multiplier: 1}
	}
	if i < 0 {
		i = 0
	}
	if i >= len(p.Tiers) {
		i = len(p.Tiers) - 1
	}
	return p.Tiers[i]
}

// Tolerance converts the normalized radii to an absolute tolerance.
func (p ChainProfile) Tolerance() types.TimedHitTolerance {
	d := p.PhaseDurationMs
	return types.TimedHitTolerance{
		PerfectMs: p.PerfectRadius * d,
		GoodMs:    p.SuccessRadius * d,
		EarlyMs:   p.EarlyMs,
		LateMs:    0,
	}
}

// Multiplier returns the per-phase multiplier for a judgment.
func (p ChainProfile) Multiplier(j types.Judgment) float64 {
	switch j {
	case types.JudgmentPerfect:
		return p.PerfectMultiplier
	case types.JudgmentGood:
		return p.GoodMultiplier
	default:
		return 0
	}
}

// Options configures the timed-hit service.
type Options struct {
	Retention       time.Duration
	Interactive     bool
	InstantJudgment types.Judgment
	Default         types.TimedHitTolerance
	Profiles        map[string]types.TimedHitTolerance
	Basic           BasicProfile
	Chain           ChainProfile
}

// DefaultBasicProfile 默认单窗口配置
func DefaultBasicProfile() BasicProfile {
	return BasicProfile{
		WindowMs:          800,
		TargetMs:          400,
		EarlyMs:           0,
		PerfectMs:         45,
		GoodMs:            120,
		PerfectMultiplier: 1.5,
		GoodMultiplier:    1.2,
		MissMultiplier:    1.0,
		PerfectRefund:     2,
		GoodRefund:        1,
	}
}

// DefaultChainProfile 默认连击配置
func DefaultChainProfile() ChainProfile {
	return ChainProfile{
		PhaseDurationMs:   600,
		Center:            0.5,
		PerfectRadius:     0.08,
		SuccessRadius:     0.2,
		EarlyMs:           60,
		GraceMs:           100,
		PerfectMultiplier: 1.5,
		GoodMultiplier:    1.2,
		Tiers: []ChainTier{
			{Hits: 2, Multiplier: 1.0, RefundMax: 1},
			{Hits: 3, Multiplier: 1.1, RefundMax: 2},
			{Hits: 4, Multiplier: 1.25, RefundMax: 3},
		},
	}
}

// DefaultOptions returns interactive options with the built-in profiles.
func DefaultOptions() Options {
	return Options{
		Retention:       DefaultRetention,
		Interactive:     true,
		InstantJudgment: types.JudgmentGood,
		Default:         types.DefaultTolerance,
		Basic:           DefaultBasicProfile(),
		Chain:           DefaultChainProfile(),
	}
}
