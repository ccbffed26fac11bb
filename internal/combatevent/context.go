package combatevent

import (
	"sync"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// DefaultPoolCapacity bounds the pool's free list.
const DefaultPoolCapacity = 64

// ActorView is the acting combatant as seen by listeners.
type ActorView struct {
	ID        string
	Alignment types.Alignment
	Transform any
	Anchor    any
}

// ActionView describes the action that raised the flag.
type ActionView struct {
	ID                 string
	Family             string
	WeaponKind         string
	Element            string
	RecipeID           string
	StaggerStepSeconds float64
}

// TargetView is one resolved target.
type TargetView struct {
	ID        string
	Alignment types.Alignment
	Transform any
	Anchor    any
}

// CombatEventContext is the pooled payload handed to listeners.
// It is valid only for the duration of the listener call; listeners must
// copy whatever they want to keep.
type CombatEventContext struct {
	Flag   Flag
	RunID  string
	Actor  ActorView
	Action ActionView
	// Targets 在逐目标分发时只包含一个目标
	Targets   []TargetView
	PerTarget bool
	// TargetIndex is the position of the single target among the resolved
	// targets when PerTarget is set, -1 otherwise.
	TargetIndex int
	Tags        []string

	inUse bool
}

// Target returns the first target of the view.
func (c *CombatEventContext) Target() (TargetView, bool) {
	if len(c.Targets) == 0 {
		return TargetView{}, false
	}
	return c.Targets[0], true
}

// TargetIDs returns the ids in the target view.
func (c *CombatEventContext) TargetIDs() []string {
	ids := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		ids[i] = t.ID
	}
	return ids
}

func (c *CombatEventContext) reset() {
	clear(c.Targets)
	clear(c.Tags)
	*c = CombatEventContext{
		Targets:     c.Targets[:0],
		Tags:        c.Tags[:0],
		TargetIndex: -1,
	}
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Capacity       int    `json:"capacity"`
	Free           int    `json:"free"`
	InFlight       int    `json:"in_flight"`
	Created        uint64 `json:"created"`
	Acquired       uint64 `json:"acquired"`
	Released       uint64 `json:"released"`
	Discarded      uint64 `json:"discarded"`
	DoubleReleases uint64 `json:"double_releases"`
}

// ContextPool recycles CombatEventContext values through a bounded free list.
// Acquire never returns a context that has not been released.
type ContextPool struct {
	mu       sync.Mutex
	free     []*CombatEventContext
	capacity int
	stats    PoolStats
	logger   *zap.Logger
}

// NewContextPool creates a pool. A non-positive capacity uses DefaultPoolCapacity.
func NewContextPool(capacity int, l *zap.Logger) *ContextPool {
	if capacity <= 0 {
		capacity = DefaultPoolCapacity
	}
	if l == nil {
		l = logger.Named("combatevent.pool")
	}
	return &ContextPool{
		free:     make([]*CombatEventContext, 0, capacity),
		capacity: capacity,
		logger:   l,
	}
}

// Capacity returns the free list bound.
func (p *ContextPool) Capacity() int { return p.capacity }

// Acquire takes a clean context from the pool, allocating when it is empty.
func (p *ContextPool) Acquire() *CombatEventContext {
	p.mu.Lock()
	defer p.mu.Unlock()

	var c *CombatEventContext
	if n := len(p.free); n > 0 {
		c = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
	} else {
		c = &CombatEventContext{TargetIndex: -1}
		p.stats.Created++
	}
	c.inUse = true
	p.stats.Acquired++
	p.stats.InFlight++
	return c
}

// Release resets a context and returns it to the pool. Releasing a context
// twice is ignored and reported.
func (p *ContextPool) Release(c *CombatEventContext) bool {
	if c == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if !c.inUse {
		p.stats.DoubleReleases++
		p.logger.Warn("combat event context released twice",
			zap.String("flag", string(c.Flag)),
			zap.String("run_id", c.RunID))
		return false
	}
	c.reset()
	p.stats.Released++
	p.stats.InFlight--
	if len(p.free) >= p.capacity {
		p.stats.Discarded++
		return true
	}
	p.free = append(p.free, c)
	return true
}

// Stats returns a snapshot of the pool counters.
func (p *ContextPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Capacity = p.capacity
	s.Free = len(p.free)
	return s
}
