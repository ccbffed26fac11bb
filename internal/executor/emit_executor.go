package executor

import (
	"context"
	"strings"

	"yqhp/combat-engine/pkg/types"
)

const (
	// EmitExecutorID is the id of the built-in event emitter.
	EmitExecutorID = "emit"
)

// EmitExecutor publishes the step's parameters on the execution context's
// event bus. Headless runs use it to raise presentation events (window
// open/close) from a recipe.
type EmitExecutor struct {
	*BaseExecutor
}

// NewEmitExecutor creates an emit executor.
func NewEmitExecutor() *EmitExecutor {
	return &EmitExecutor{BaseExecutor: NewBaseExecutor(EmitExecutorID)}
}

// CanExecute requires a topic parameter.
func (e *EmitExecutor) CanExecute(step types.Step) bool {
	topic, ok := step.Param("topic")
	return ok && strings.TrimSpace(topic) != ""
}

// Execute publishes a map payload; "actor" defaults to the acting entity.
func (e *EmitExecutor) Execute(_ context.Context, sc *StepContext) (*types.StepOutcome, error) {
	if sc.Exec == nil || sc.Exec.Events == nil {
		return nil, NewConfigError(e.ID(), sc.Step.Label(), "execution context has no event bus")
	}
	params := sc.Step.Params()
	topic := strings.TrimSpace(params["topic"])
	delete(params, "topic")
	if _, ok := params["actor"]; !ok {
		params["actor"] = sc.Exec.Actor.ID
	}
	sc.Exec.Events.Publish(topic, params)
	return nil, nil
}
