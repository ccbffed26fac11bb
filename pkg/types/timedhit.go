package types

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Judgment is the classification of a timed-hit attempt.
type Judgment string

const (
	JudgmentPerfect Judgment = "perfect"
	JudgmentGood    Judgment = "good"
	JudgmentMiss    Judgment = "miss"
)

// IsSuccess reports whether the judgment counts as a successful hit.
func (j Judgment) IsSuccess() bool {
	return j == JudgmentPerfect || j == JudgmentGood
}

// ParseJudgment parses a judgment name; unknown names map to Miss.
func ParseJudgment(s string) Judgment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "perfect":
		return JudgmentPerfect
	case "good":
		return JudgmentGood
	default:
		return JudgmentMiss
	}
}

// TimedHitTolerance holds the millisecond thresholds of a judgment window.
// Invariant: 0 <= PerfectMs <= GoodMs, EarlyMs >= 0, LateMs >= 0.
type TimedHitTolerance struct {
	PerfectMs float64 `yaml:"perfect_ms" json:"perfect_ms"`
	GoodMs    float64 `yaml:"good_ms" json:"good_ms"`
	EarlyMs   float64 `yaml:"early_ms" json:"early_ms"`
	LateMs    float64 `yaml:"late_ms" json:"late_ms"`
}

// DefaultTolerance is the process-wide fallback used when no profile matches.
var DefaultTolerance = TimedHitTolerance{PerfectMs: 45, GoodMs: 120, EarlyMs: 90, LateMs: 90}

// Validate checks the tolerance invariants.
func (t TimedHitTolerance) Validate() error {
	switch {
	case t.PerfectMs < 0:
		return fmt.Errorf("perfect_ms must be >= 0, got %g", t.PerfectMs)
	case t.GoodMs < t.PerfectMs:
		return fmt.Errorf("good_ms (%g) must be >= perfect_ms (%g)", t.GoodMs, t.PerfectMs)
	case t.EarlyMs < 0:
		return fmt.Errorf("early_ms must be >= 0, got %g", t.EarlyMs)
	case t.LateMs < 0:
		return fmt.Errorf("late_ms must be >= 0, got %g", t.LateMs)
	}
	return nil
}

// Classify maps an absolute millisecond delta to a judgment.
func (t TimedHitTolerance) Classify(deltaMs float64) Judgment {
	d := math.Abs(deltaMs)
	switch {
	case d <= t.PerfectMs:
		return JudgmentPerfect
	case d <= t.GoodMs:
		return JudgmentGood
	default:
		return JudgmentMiss
	}
}

// Early returns the early allowance as a duration.
func (t TimedHitTolerance) Early() time.Duration { return Millis(t.EarlyMs) }

// Late returns the late allowance as a duration.
func (t TimedHitTolerance) Late() time.Duration { return Millis(t.LateMs) }

// Millis converts fractional milliseconds to a duration.
func Millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// ToMillis converts a duration to fractional milliseconds.
func ToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// TimedHitKind selects the runner strategy of a request.
type TimedHitKind string

const (
	// TimedHitBasic is a single window.
	TimedHitBasic TimedHitKind = "basic"
	// TimedHitChain is a multi-phase chain.
	TimedHitChain TimedHitKind = "chain"
	// TimedHitInstant is the deterministic fallback runner.
	TimedHitInstant TimedHitKind = "instant"
	// TimedHitWindow is a window opened and closed by presentation events.
	TimedHitWindow TimedHitKind = "window"
)

// TimedHitRequest asks the judgment engine to evaluate one timed-hit sequence.
type TimedHitRequest struct {
	Kind      TimedHitKind
	Actor     string
	ProfileID string
	// Tier indexes the chain tiers (usually the charge level). Out of range clamps.
	Tier int
	// Hits overrides the tier's hit count when positive.
	Hits int
}

// TimedHitResult is the immutable outcome of a resolved window or chain.
type TimedHitResult struct {
	RunID            string       `json:"run_id,omitempty"`
	Actor            string       `json:"actor"`
	Kind             TimedHitKind `json:"kind"`
	Tag              string       `json:"tag,omitempty"`
	Judgment         Judgment     `json:"judgment"`
	HitsSucceeded    int          `json:"hits_succeeded"`
	TotalHits        int          `json:"total_hits"`
	DamageMultiplier float64      `json:"damage_multiplier"`
	PhaseIndex       int          `json:"phase_index"`
	PhaseTotal       int          `json:"phase_total"`
	IsFinal          bool         `json:"is_final"`
	CPRefund         int          `json:"cp_refund"`
	Cancelled        bool         `json:"cancelled"`
	SuccessStreak    int          `json:"success_streak"`
	ConsumedInput    bool         `json:"consumed_input"`
	DeltaMs          float64      `json:"delta_ms"`
}

// CancelledResult builds the result returned when a run is cancelled.
func CancelledResult(runID, actor string, kind TimedHitKind, total int) *TimedHitResult {
	return &TimedHitResult{
		RunID:            runID,
		Actor:            actor,
		Kind:             kind,
		Judgment:         JudgmentMiss,
		TotalHits:        total,
		PhaseTotal:       total,
		DamageMultiplier: 0,
		IsFinal:          true,
		Cancelled:        true,
	}
}
