package executor

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/types"
)

const (
	// TimedHitExecutorID is the id of the timed-hit step executor.
	TimedHitExecutorID = "timed_hit"

	// TopicTimedHitPhase carries per-phase results for live feedback.
	TopicTimedHitPhase = "timedhit.phase"
)

// TimedHitExecutor evaluates a timed-hit request through the execution
// context's judgment engine and turns the judgment into a directive.
//
// Parameters:
//
//	kind     basic | chain | instant (default basic)
//	profile  timed-hit profile id (default: selection profile)
//	tier     chain tier (default: selection charge level)
//	hits     overrides the tier hit count
//	on_perfect, on_good, on_miss, on_cancel
//	         continue | abort | branch:<group>
type TimedHitExecutor struct {
	*BaseExecutor
}

// NewTimedHitExecutor creates a timed-hit executor.
func NewTimedHitExecutor() *TimedHitExecutor {
	return &TimedHitExecutor{BaseExecutor: NewBaseExecutor(TimedHitExecutorID)}
}

// CanExecute declines steps with an unknown kind.
func (e *TimedHitExecutor) CanExecute(step types.Step) bool {
	_, ok := parseKind(step.ParamOr("kind", string(types.TimedHitBasic)))
	return ok
}

func parseKind(s string) (types.TimedHitKind, bool) {
	switch types.TimedHitKind(strings.ToLower(strings.TrimSpace(s))) {
	case types.TimedHitBasic:
		return types.TimedHitBasic, true
	case types.TimedHitChain:
		return types.TimedHitChain, true
	case types.TimedHitInstant:
		return types.TimedHitInstant, true
	default:
		return "", false
	}
}

// Execute runs the request and maps the judgment to an outcome.
func (e *TimedHitExecutor) Execute(ctx context.Context, sc *StepContext) (*types.StepOutcome, error) {
	if sc.Exec == nil || sc.Exec.TimedHit == nil {
		return nil, NewConfigError(e.ID(), sc.Step.Label(), "execution context has no timed-hit service")
	}
	kind, _ := parseKind(sc.ParamString("kind", string(types.TimedHitBasic)))
	req := &types.TimedHitRequest{
		Kind:      kind,
		Actor:     sc.Exec.Actor.ID,
		ProfileID: sc.ParamString("profile", sc.Exec.Selection.TimedHitProfile),
		Tier:      sc.ParamInt("tier", sc.Exec.Selection.ChargeLevel),
		Hits:      sc.ParamInt("hits", 0),
	}

	events := sc.Exec.Events
	result := sc.Exec.TimedHit.Run(ctx, req, func(phase *types.TimedHitResult) {
		if events != nil {
			events.Publish(TopicTimedHitPhase, phase)
		}
	})
	if result == nil {
		return nil, NewExecutionError(e.ID(), sc.Step.Label(), "timed-hit service returned no result", nil)
	}

	key := "on_" + string(result.Judgment)
	if result.Cancelled {
		key = "on_cancel"
	}
	raw, ok := sc.Step.Param(key)
	if !ok {
		return types.Continue(result), nil
	}
	outcome, valid := types.ParseDirective(raw)
	if !valid {
		if sc.Logger != nil {
			sc.Logger.Warn("invalid timed-hit directive, continuing",
				zap.String("param", key), zap.String("value", raw))
		}
		return types.Continue(result), nil
	}
	if outcome == nil {
		return types.Continue(result), nil
	}
	outcome.Output = result
	outcome.Reason = "timed hit " + string(result.Judgment)
	return outcome, nil
}
