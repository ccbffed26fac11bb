package types

import (
	"context"
	"time"
)

// Alignment is the side a combatant fights for.
type Alignment string

const (
	AlignmentAlly    Alignment = "ally"
	AlignmentEnemy   Alignment = "enemy"
	AlignmentNeutral Alignment = "neutral"
)

// Combatant is the engine-agnostic view of an actor or target.
// Transform and Anchor are opaque handles owned by the presentation layer.
type Combatant struct {
	ID        string    `yaml:"id" json:"id"`
	Alignment Alignment `yaml:"alignment" json:"alignment"`
	Transform any       `yaml:"-" json:"-"`
	Anchor    any       `yaml:"-" json:"-"`
}

// Selection describes the intent behind an action: which action, which
// charge level, which timed-hit profile.
type Selection struct {
	ActionID        string        `yaml:"action_id" json:"action_id"`
	Family          string        `yaml:"family,omitempty" json:"family,omitempty"`
	WeaponKind      string        `yaml:"weapon_kind,omitempty" json:"weapon_kind,omitempty"`
	Element         string        `yaml:"element,omitempty" json:"element,omitempty"`
	ChargeLevel     int           `yaml:"charge_level,omitempty" json:"charge_level,omitempty"`
	TimedHitProfile string        `yaml:"timed_hit_profile,omitempty" json:"timed_hit_profile,omitempty"`
	StaggerStep     time.Duration `yaml:"stagger_step,omitempty" json:"stagger_step,omitempty"`
	// TargetsGroup 为 true 表示技能显式作用于一组目标（即便只解析出一个）
	TargetsGroup bool     `yaml:"targets_group,omitempty" json:"targets_group,omitempty"`
	Tags         []string `yaml:"tags,omitempty" json:"tags,omitempty"`
}

// PhaseCallback receives each phase result of a timed-hit run as it resolves.
type PhaseCallback func(result *TimedHitResult)

// TimedHitRunner evaluates a timed-hit request. Implementations never return
// a nil result; cancellation is reported through TimedHitResult.Cancelled.
type TimedHitRunner interface {
	Run(ctx context.Context, req *TimedHitRequest, onPhase PhaseCallback) *TimedHitResult
}

// EventPublisher is the side-channel event bus carried in the execution context.
type EventPublisher interface {
	Publish(topic string, payload any)
}

// BindingResolver resolves presentation binding ids to resource handles.
type BindingResolver interface {
	Resolve(bindingID string) (any, bool)
}

// BindingMap is a static BindingResolver.
type BindingMap map[string]any

// Resolve implements BindingResolver.
func (m BindingMap) Resolve(bindingID string) (any, bool) {
	v, ok := m[bindingID]
	return v, ok
}

// ExecutionContext is the per-invocation bundle handed to the scheduler.
// It lives for one combat action and is never persisted.
type ExecutionContext struct {
	Actor     Combatant
	Targets   []Combatant
	Selection Selection

	TimedHit TimedHitRunner
	Events   EventPublisher
	Bindings BindingResolver
}

// TargetIDs returns the ids of the resolved targets.
func (c *ExecutionContext) TargetIDs() []string {
	ids := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		ids[i] = t.ID
	}
	return ids
}

// ResolveBinding resolves a binding through the context's resolver.
func (c *ExecutionContext) ResolveBinding(bindingID string) (any, bool) {
	if c == nil || c.Bindings == nil || bindingID == "" {
		return nil, false
	}
	return c.Bindings.Resolve(bindingID)
}
