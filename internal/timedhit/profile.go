package timedhit

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// ProfileResolver 将窗口标签或容差 id 解析为判定容差
type ProfileResolver struct {
	mu       sync.RWMutex
	def      types.TimedHitTolerance
	profiles map[string]types.TimedHitTolerance
	logger   *zap.Logger
}

// NewProfileResolver creates a resolver. Invalid profiles are dropped with a
// warning; an invalid default falls back to types.DefaultTolerance.
func NewProfileResolver(def types.TimedHitTolerance, profiles map[string]types.TimedHitTolerance, l *zap.Logger) *ProfileResolver {
	if l == nil {
		l = logger.Named("timedhit.profiles")
	}
	if err := def.Validate(); err != nil {
		l.Warn("invalid default tolerance, using built-in default", zap.Error(err))
		def = types.DefaultTolerance
	}
	r := &ProfileResolver{
		def:      def,
		profiles: make(map[string]types.TimedHitTolerance, len(profiles)),
		logger:   l,
	}
	for id, tol := range profiles {
		if err := r.Set(id, tol); err != nil {
			l.Warn("invalid tolerance profile dropped", zap.String("profile", id), zap.Error(err))
		}
	}
	return r
}

// Set adds or replaces a profile.
func (r *ProfileResolver) Set(id string, tol types.TimedHitTolerance) error {
	id = normalizeID(id)
	if id == "" {
		return fmt.Errorf("profile id is empty")
	}
	if err := tol.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", id, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[id] = tol
	return nil
}

// Lookup returns the profile registered for id.
func (r *ProfileResolver) Lookup(id string) (types.TimedHitTolerance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tol, ok := r.profiles[normalizeID(id)]
	return tol, ok
}

// Resolve returns the profile for the first id that matches, else the default.
func (r *ProfileResolver) Resolve(ids ...string) types.TimedHitTolerance {
	for _, id := range ids {
		if tol, ok := r.Lookup(id); ok {
			return tol
		}
	}
	return r.Default()
}

// Default returns the process-wide default tolerance.
func (r *ProfileResolver) Default() types.TimedHitTolerance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.def
}

// IDs returns the sorted profile ids.
func (r *ProfileResolver) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Timelines returns how long each profile keeps an input relevant.
func (r *ProfileResolver) Timelines() map[string]time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]time.Duration, len(r.profiles)+1)
	out["default"] = r.def.Early() + r.def.Late()
	for id, tol := range r.profiles {
		out["profile:"+id] = tol.Early() + tol.Late()
	}
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
