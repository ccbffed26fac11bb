package timedhit

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/combat-engine/internal/clock"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// DefaultRetention is how long buffered inputs are kept.
const DefaultRetention = 2 * time.Second

// BufferedInput is one recorded button press.
type BufferedInput struct {
	Actor     string        `json:"actor"`
	Timestamp time.Duration `json:"timestamp"`
	Source    string        `json:"source"`
	Sequence  uint64        `json:"sequence"`
}

// Match is a consumed input and its offset from the window center.
type Match struct {
	Input BufferedInput
	// DeltaMs is input time minus center, in milliseconds.
	DeltaMs float64
}

// InputBuffer 按角色保存最近的输入，按时间戳有序。
type InputBuffer struct {
	mu        sync.Mutex
	clock     clock.Clock
	retention time.Duration
	seq       uint64
	entries   map[string][]BufferedInput
	logger    *zap.Logger
}

// NewInputBuffer creates a buffer. A non-positive retention uses DefaultRetention.
func NewInputBuffer(clk clock.Clock, retention time.Duration, l *zap.Logger) *InputBuffer {
	if clk == nil {
		clk = clock.NewReal()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	if l == nil {
		l = logger.Named("timedhit.buffer")
	}
	return &InputBuffer{
		clock:     clk,
		retention: retention,
		entries:   make(map[string][]BufferedInput),
		logger:    l,
	}
}

// Retention returns the retention period.
func (b *InputBuffer) Retention() time.Duration {
	return b.retention
}

// Register records an input stamped with the current time.
func (b *InputBuffer) Register(actor, source string) BufferedInput {
	return b.RegisterAt(actor, source, b.clock.Now())
}

// RegisterAt records an input with an explicit timestamp and prunes entries
// older than the retention relative to that stamp.
func (b *InputBuffer) RegisterAt(actor, source string, ts time.Duration) BufferedInput {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	in := BufferedInput{Actor: actor, Timestamp: ts, Source: source, Sequence: b.seq}

	list := b.prune(b.entries[actor], ts)
	i := sort.Search(len(list), func(i int) bool { return list[i].Timestamp > ts })
	list = append(list, BufferedInput{})
	copy(list[i+1:], list[i:])
	list[i] = in
	b.entries[actor] = list
	return in
}

// TryConsume removes and returns the input closest to center inside
// [start-early, end+late]. Ties go to the earlier input.
func (b *InputBuffer) TryConsume(actor string, start, end time.Duration, tol types.TimedHitTolerance, center time.Duration) (Match, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.prune(b.entries[actor], b.clock.Now())
	b.entries[actor] = list

	earliest := start - tol.Early()
	latest := end + tol.Late()

	best := -1
	var bestDist time.Duration
	for i, in := range list {
		if in.Timestamp < earliest {
			continue
		}
		// 有序扫描，超过 latest 即可停止
		if in.Timestamp > latest {
			break
		}
		d := absDuration(in.Timestamp - center)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Match{}, false
	}

	in := list[best]
	b.entries[actor] = append(list[:best:best], list[best+1:]...)
	return Match{Input: in, DeltaMs: types.ToMillis(in.Timestamp - center)}, true
}

// Remove deletes a specific input by sequence number.
func (b *InputBuffer) Remove(actor string, seq uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.entries[actor]
	for i, in := range list {
		if in.Sequence == seq {
			b.entries[actor] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns a copy of the actor's buffered inputs.
func (b *InputBuffer) Pending(actor string) []BufferedInput {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BufferedInput(nil), b.entries[actor]...)
}

// Clear drops the actor's inputs. An empty actor clears every actor.
func (b *InputBuffer) Clear(actor string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if actor == "" {
		b.entries = make(map[string][]BufferedInput)
		return
	}
	delete(b.entries, actor)
}

// CheckRetention warns about every timeline longer than the retention and
// returns their names sorted.
func (b *InputBuffer) CheckRetention(timelines map[string]time.Duration) []string {
	var short []string
	for name, d := range timelines {
		if d > b.retention {
			short = append(short, name)
			b.logger.Warn("input retention shorter than timeline, early inputs may be dropped",
				zap.String("timeline", name),
				zap.Duration("length", d),
				zap.Duration("retention", b.retention))
		}
	}
	sort.Strings(short)
	return short
}

func (b *InputBuffer) prune(list []BufferedInput, ref time.Duration) []BufferedInput {
	cutoff := ref - b.retention
	i := 0
	for i < len(list) && list[i].Timestamp < cutoff {
		i++
	}
	if i == 0 {
		return list
	}
	return append([]BufferedInput(nil), list[i:]...)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
