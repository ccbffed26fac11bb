package combatevent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

func TestContextPool_RoundTrip(t *testing.T) {
	p := NewContextPool(4, zap.NewNop())
	for i := 0; i < 100; i++ {
		c := p.Acquire()
		c.Flag = FlagImpact
		c.RunID = "run"
		c.Targets = append(c.Targets, TargetView{ID: "t"})
		c.Tags = append(c.Tags, "fire")
		require.True(t, p.Release(c))
		assert.LessOrEqual(t, p.Stats().Free, 4)
	}
	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(100), stats.Acquired)
	assert.Equal(t, uint64(100), stats.Released)
	assert.Zero(t, stats.InFlight)
}

func TestContextPool_ReleasedContextIsClean(t *testing.T) {
	p := NewContextPool(2, zap.NewNop())
	c := p.Acquire()
	c.Flag = FlagWindup
	c.PerTarget = true
	c.TargetIndex = 2
	c.Targets = append(c.Targets, TargetView{ID: "a"})
	c.Tags = append(c.Tags, "x")
	p.Release(c)

	again := p.Acquire()
	assert.Same(t, c, again)
	assert.Empty(t, again.Flag)
	assert.False(t, again.PerTarget)
	assert.Equal(t, -1, again.TargetIndex)
	assert.Empty(t, again.Targets)
	assert.Empty(t, again.Tags)
}

func TestContextPool_InFlightNeverHandedOut(t *testing.T) {
	p := NewContextPool(2, zap.NewNop())
	a := p.Acquire()
	b := p.Acquire()
	c := p.Acquire()
	assert.NotSame(t, a, b)
	assert.NotSame(t, b, c)
	assert.NotSame(t, a, c)
	assert.Equal(t, 3, p.Stats().InFlight)

	p.Release(a)
	p.Release(b)
	p.Release(c)
	stats := p.Stats()
	assert.Equal(t, 2, stats.Free)
	assert.Equal(t, uint64(1), stats.Discarded)
}

func TestContextPool_DoubleRelease(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	p := NewContextPool(2, zap.New(core))
	c := p.Acquire()
	require.True(t, p.Release(c))
	assert.False(t, p.Release(c))
	assert.False(t, p.Release(nil))

	assert.Equal(t, uint64(1), p.Stats().DoubleReleases)
	assert.Equal(t, 1, logs.FilterMessage("combat event context released twice").Len())
	assert.Equal(t, 1, p.Stats().Free)
}

func TestContextPool_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultPoolCapacity, NewContextPool(0, zap.NewNop()).Capacity())
}

// TestProperty_PoolRoundTrip 验证任意获取/归还序列下池的不变式
// **Property: 空闲列表不超过容量，且不会交出仍在使用中的上下文**
func TestProperty_PoolRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		p := NewContextPool(capacity, zap.NewNop())
		inFlight := make(map[*CombatEventContext]bool)
		var held []*CombatEventContext

		steps := rapid.IntRange(1, 200).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			if len(held) == 0 || rapid.Bool().Draw(t, "acquire") {
				c := p.Acquire()
				if inFlight[c] {
					t.Fatalf("acquired a context that is still in flight")
				}
				c.RunID = "r"
				c.Targets = append(c.Targets, TargetView{ID: "t"})
				inFlight[c] = true
				held = append(held, c)
			} else {
				idx := rapid.IntRange(0, len(held)-1).Draw(t, "release")
				c := held[idx]
				held = append(held[:idx], held[idx+1:]...)
				delete(inFlight, c)
				if !p.Release(c) {
					t.Fatalf("release of an in-flight context rejected")
				}
			}
			stats := p.Stats()
			if stats.Free > capacity {
				t.Fatalf("free list %d exceeds capacity %d", stats.Free, capacity)
			}
			if stats.InFlight != len(held) {
				t.Fatalf("in flight %d, want %d", stats.InFlight, len(held))
			}
		}
	})
}
