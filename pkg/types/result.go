package types

import (
	"strings"
	"time"
)

// Directive tells the scheduler how to continue after a step.
type Directive string

const (
	DirectiveContinue Directive = "continue"
	DirectiveBranch   Directive = "branch"
	DirectiveAbort    Directive = "abort"
)

// StepOutcome is the optional control-flow feedback returned by an executor.
// A nil outcome means continue.
type StepOutcome struct {
	Directive Directive
	// Target is the group id to jump to when Directive is DirectiveBranch.
	Target string
	Reason string
	Output any
}

// Continue returns a continue outcome carrying output.
func Continue(output any) *StepOutcome {
	return &StepOutcome{Directive: DirectiveContinue, Output: output}
}

// Abort returns an abort outcome.
func Abort(reason string) *StepOutcome {
	return &StepOutcome{Directive: DirectiveAbort, Reason: reason}
}

// Branch returns a branch outcome targeting the given group.
func Branch(groupID string) *StepOutcome {
	return &StepOutcome{Directive: DirectiveBranch, Target: groupID}
}

// ParseDirective parses "continue", "abort" or "branch:<group>".
func ParseDirective(s string) (*StepOutcome, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case lower == "" || lower == "continue":
		return nil, true
	case lower == "abort":
		return Abort("directive"), true
	case strings.HasPrefix(lower, "branch:"):
		target := strings.TrimSpace(s[len("branch:"):])
		if target == "" {
			return nil, false
		}
		return Branch(target), true
	default:
		return nil, false
	}
}

// ResultStatus represents the status of a step execution result.
type ResultStatus string

const (
	// ResultStatusSuccess indicates successful execution.
	ResultStatusSuccess ResultStatus = "success"
	// ResultStatusFailed indicates the executor returned an error or panicked.
	ResultStatusFailed ResultStatus = "failed"
	// ResultStatusSkipped indicates the step was not started.
	ResultStatusSkipped ResultStatus = "skipped"
	// ResultStatusCancelled indicates the step observed cancellation.
	ResultStatusCancelled ResultStatus = "cancelled"
)

// StepResult describes one step execution.
type StepResult struct {
	StepID     string
	ExecutorID string
	Status     ResultStatus
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Outcome    *StepOutcome
	Error      error
	// SkipReason is set when Status is skipped.
	SkipReason string
}

// NewStepResult creates a result for the given step, started now.
func NewStepResult(step Step) *StepResult {
	return &StepResult{
		StepID:     step.Label(),
		ExecutorID: step.ExecutorID(),
		Status:     ResultStatusSuccess,
		StartTime:  time.Now(),
	}
}

// Finish 设置 EndTime 和 Duration。
func (r *StepResult) Finish() {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
}

// Skip marks the step as skipped.
func (r *StepResult) Skip(reason string) {
	r.Status = ResultStatusSkipped
	r.SkipReason = reason
}

// Fail marks the step as failed.
func (r *StepResult) Fail(err error) {
	r.Status = ResultStatusFailed
	r.Error = err
}

// IsSuccess reports whether the step ran to completion.
func (r *StepResult) IsSuccess() bool {
	return r.Status == ResultStatusSuccess
}

// GroupResult describes one group execution.
type GroupResult struct {
	GroupID   string
	Index     int
	Steps     []*StepResult
	TimedOut  bool
	Cancelled bool
	Duration  time.Duration
	// Outcome is the first non-continue directive produced by the group, if any.
	Outcome *StepOutcome
}

// RecipeResult describes one recipe execution.
type RecipeResult struct {
	RunID     string
	RecipeID  string
	Groups    []*GroupResult
	Cancelled bool
	Aborted   bool
	Reason    string
	Branches  int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// StepCounts returns the number of steps per status.
func (r *RecipeResult) StepCounts() map[ResultStatus]int {
	counts := make(map[ResultStatus]int)
	for _, g := range r.Groups {
		for _, s := range g.Steps {
			counts[s.Status]++
		}
	}
	return counts
}
