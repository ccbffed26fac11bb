package types

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrEmptyExecutorID is returned when a step is built without an executor id.
	ErrEmptyExecutorID = errors.New("step executor id must not be empty")
	// ErrEmptyGroup is returned when a step group is built without steps.
	ErrEmptyGroup = errors.New("step group must contain at least one step")
)

// ConflictPolicy decides what happens when a step targets an executor that
// already has an active execution.
type ConflictPolicy int

const (
	// ConflictWaitForCompletion waits for the running execution to settle.
	ConflictWaitForCompletion ConflictPolicy = iota
	// ConflictCancelRunning cancels the running execution and waits for its teardown.
	ConflictCancelRunning
	// ConflictSkipIfRunning drops the new step while an execution is active.
	ConflictSkipIfRunning
)

// String returns the canonical name of the policy.
func (p ConflictPolicy) String() string {
	switch p {
	case ConflictWaitForCompletion:
		return "wait"
	case ConflictCancelRunning:
		return "cancel"
	case ConflictSkipIfRunning:
		return "skip"
	default:
		return fmt.Sprintf("conflict(%d)", int(p))
	}
}

// ParseConflictPolicy parses the text form of a conflict policy.
// Both the short ("cancel") and the long ("CancelRunning") forms are accepted.
func ParseConflictPolicy(s string) (ConflictPolicy, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wait", "waitforcompletion", "wait_for_completion":
		return ConflictWaitForCompletion, true
	case "cancel", "cancelrunning", "cancel_running":
		return ConflictCancelRunning, true
	case "skip", "skipifrunning", "skip_if_running":
		return ConflictSkipIfRunning, true
	default:
		return ConflictWaitForCompletion, false
	}
}

// ExecutionMode selects how the steps of a group are run.
type ExecutionMode string

const (
	// ExecutionSequential runs steps one at a time in list order.
	ExecutionSequential ExecutionMode = "sequential"
	// ExecutionParallel launches every step concurrently.
	ExecutionParallel ExecutionMode = "parallel"
)

// JoinPolicy decides when a parallel group is done.
type JoinPolicy string

const (
	// JoinAll waits for every member to settle.
	JoinAll JoinPolicy = "all"
	// JoinAny completes at the first settled member and cancels the rest.
	JoinAny JoinPolicy = "any"
)

// Step is the atomic unit of work. It is immutable after construction.
type Step struct {
	id         string
	executorID string
	bindingID  string
	params     map[string]string
	conflict   ConflictPolicy
	delay      time.Duration
}

// StepOption configures a Step during construction.
type StepOption func(*Step)

// WithStepID sets the addressable step id.
func WithStepID(id string) StepOption {
	return func(s *Step) { s.id = id }
}

// WithBinding sets the resource handle passed to the executor.
func WithBinding(bindingID string) StepOption {
	return func(s *Step) { s.bindingID = bindingID }
}

// WithParam sets a single parameter.
func WithParam(key, value string) StepOption {
	return func(s *Step) { s.params[key] = value }
}

// WithParams merges the given parameters.
func WithParams(params map[string]string) StepOption {
	return func(s *Step) {
		for k, v := range params {
			s.params[k] = v
		}
	}
}

// WithConflict sets the conflict policy.
func WithConflict(policy ConflictPolicy) StepOption {
	return func(s *Step) { s.conflict = policy }
}

// WithDelay sets the pause applied before execution. Negative values are clamped to zero.
func WithDelay(d time.Duration) StepOption {
	return func(s *Step) {
		if d < 0 {
			d = 0
		}
		s.delay = d
	}
}

// NewStep builds a step for the given executor.
func NewStep(executorID string, opts ...StepOption) (Step, error) {
	executorID = strings.TrimSpace(executorID)
	if executorID == "" {
		return Step{}, ErrEmptyExecutorID
	}
	s := Step{
		executorID: executorID,
		params:     make(map[string]string),
		conflict:   ConflictWaitForCompletion,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s, nil
}

// MustStep is like NewStep but panics on error. Intended for static recipes and tests.
func MustStep(executorID string, opts ...StepOption) Step {
	s, err := NewStep(executorID, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// ID returns the optional step id.
func (s Step) ID() string { return s.id }

// ExecutorID returns the executor the step is dispatched to.
func (s Step) ExecutorID() string { return s.executorID }

// BindingID returns the optional binding id.
func (s Step) BindingID() string { return s.bindingID }

// Conflict returns the conflict policy.
func (s Step) Conflict() ConflictPolicy { return s.conflict }

// Delay returns the pause applied before execution.
func (s Step) Delay() time.Duration { return s.delay }

// Param returns a parameter value.
func (s Step) Param(key string) (string, bool) {
	v, ok := s.params[key]
	return v, ok
}

// ParamOr returns a parameter value or the fallback when absent or blank.
func (s Step) ParamOr(key, fallback string) string {
	if v, ok := s.params[key]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

// Params returns a copy of the parameter map.
func (s Step) Params() map[string]string {
	out := make(map[string]string, len(s.params))
	for k, v := range s.params {
		out[k] = v
	}
	return out
}

// Label returns the step id if set, otherwise the executor id. Used in diagnostics.
func (s Step) Label() string {
	if s.id != "" {
		return s.id
	}
	return s.executorID
}

// String renders the step in the recipe text format.
func (s Step) String() string {
	var b strings.Builder
	b.WriteString(s.executorID)
	if s.bindingID != "" {
		b.WriteByte(':')
		b.WriteString(s.bindingID)
	}
	var pairs []string
	if s.id != "" {
		pairs = append(pairs, "id="+s.id)
	}
	if s.conflict != ConflictWaitForCompletion {
		pairs = append(pairs, "conflict="+s.conflict.String())
	}
	if s.delay > 0 {
		pairs = append(pairs, fmt.Sprintf("delay=%g", s.delay.Seconds()))
	}
	keys := make([]string, 0, len(s.params))
	for k := range s.params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, k+"="+s.params[k])
	}
	if len(pairs) > 0 {
		b.WriteByte('(')
		b.WriteString(strings.Join(pairs, ","))
		b.WriteByte(')')
	}
	return b.String()
}

// StepGroup is a named, ordered list of at least one step.
type StepGroup struct {
	id      string
	mode    ExecutionMode
	join    JoinPolicy
	timeout time.Duration
	steps   []Step
}

// GroupOption configures a StepGroup during construction.
type GroupOption func(*StepGroup)

// WithJoin sets the join policy of a parallel group.
func WithJoin(join JoinPolicy) GroupOption {
	return func(g *StepGroup) { g.join = join }
}

// WithTimeout bounds the whole group. Zero means no timeout.
func WithTimeout(d time.Duration) GroupOption {
	return func(g *StepGroup) {
		if d < 0 {
			d = 0
		}
		g.timeout = d
	}
}

// NewStepGroup builds a group. An empty mode means sequential.
func NewStepGroup(id string, mode ExecutionMode, steps []Step, opts ...GroupOption) (StepGroup, error) {
	if len(steps) == 0 {
		return StepGroup{}, fmt.Errorf("group %q: %w", id, ErrEmptyGroup)
	}
	if mode == "" {
		mode = ExecutionSequential
	}
	g := StepGroup{
		id:    id,
		mode:  mode,
		join:  JoinAll,
		steps: append([]Step(nil), steps...),
	}
	for _, opt := range opts {
		opt(&g)
	}
	return g, nil
}

// MustGroup is like NewStepGroup but panics on error.
func MustGroup(id string, mode ExecutionMode, steps []Step, opts ...GroupOption) StepGroup {
	g, err := NewStepGroup(id, mode, steps, opts...)
	if err != nil {
		panic(err)
	}
	return g
}

// ID returns the group id.
func (g StepGroup) ID() string { return g.id }

// Mode returns the execution mode.
func (g StepGroup) Mode() ExecutionMode { return g.mode }

// Join returns the join policy.
func (g StepGroup) Join() JoinPolicy { return g.join }

// Timeout returns the optional group timeout.
func (g StepGroup) Timeout() time.Duration { return g.timeout }

// Len returns the number of steps.
func (g StepGroup) Len() int { return len(g.steps) }

// Step returns the i-th step.
func (g StepGroup) Step(i int) Step { return g.steps[i] }

// Steps returns a copy of the step list.
func (g StepGroup) Steps() []Step { return append([]Step(nil), g.steps...) }

// Recipe is a named, ordered list of groups. An empty recipe is a no-op.
type Recipe struct {
	id     string
	groups []StepGroup
}

// NewRecipe builds a recipe.
func NewRecipe(id string, groups ...StepGroup) *Recipe {
	return &Recipe{id: id, groups: append([]StepGroup(nil), groups...)}
}

// ID returns the recipe id.
func (r *Recipe) ID() string { return r.id }

// Len returns the number of groups.
func (r *Recipe) Len() int { return len(r.groups) }

// Group returns the i-th group.
func (r *Recipe) Group(i int) StepGroup { return r.groups[i] }

// Groups returns a copy of the group list.
func (r *Recipe) Groups() []StepGroup { return append([]StepGroup(nil), r.groups...) }

// GroupIndex returns the index of the group with the given id, or -1.
func (r *Recipe) GroupIndex(id string) int {
	for i, g := range r.groups {
		if g.id == id {
			return i
		}
	}
	return -1
}

// StepCount returns the total number of steps across all groups.
func (r *Recipe) StepCount() int {
	n := 0
	for _, g := range r.groups {
		n += len(g.steps)
	}
	return n
}
