package timedhit

import (
	"context"
	"time"

	"yqhp/combat-engine/pkg/types"
)

// Runner evaluates one kind of timed-hit request.
type Runner interface {
	Kind() types.TimedHitKind
	// Run must return a cancelled result when ctx is done.
	Run(ctx context.Context, run *Run) *types.TimedHitResult
}

// Run is a runner's handle on the service for one request.
type Run struct {
	ID      string
	Request *types.TimedHitRequest
	svc     *Service
}

// Now returns the service clock.
func (r *Run) Now() time.Duration {
	return r.svc.clock.Now()
}

// Emit reports a phase result to the request's phase callback.
func (r *Run) Emit(phase *types.TimedHitResult) {
	cp := *phase
	cp.RunID = r.ID
	cp.Actor = r.Request.Actor
	r.svc.emitPhase(r.ID, &cp)
}

// Cancelled builds the cancellation result for this run.
func (r *Run) Cancelled(kind types.TimedHitKind, total int) *types.TimedHitResult {
	return types.CancelledResult(r.ID, r.Request.Actor, kind, total)
}

// AwaitInput consumes the actor's input closest to center inside
// [start-early, end+late], waiting for new input until end+late passes.
// The error is non-nil only when ctx is done.
func (r *Run) AwaitInput(ctx context.Context, start, end time.Duration, tol types.TimedHitTolerance, center time.Duration) (Match, bool, error) {
	actor := r.Request.Actor
	notify, stop := r.svc.watchInput(actor)
	defer stop()

	deadline := end + tol.Late()
	for {
		if m, ok := r.svc.buffer.TryConsume(actor, start, end, tol, center); ok {
			return m, true, nil
		}
		remaining := deadline - r.Now()
		if remaining <= 0 {
			return Match{}, false, nil
		}

		timer := r.svc.clock.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Match{}, false, ctx.Err()
		case <-notify:
			timer.Stop()
		case <-timer.Chan():
		}
	}
}

// SleepUntil waits until the clock reaches t.
func (r *Run) SleepUntil(ctx context.Context, t time.Duration) error {
	d := t - r.Now()
	if d <= 0 {
		return ctx.Err()
	}
	timer := r.svc.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
