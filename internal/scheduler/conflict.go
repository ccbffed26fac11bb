package scheduler

import (
	"context"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/types"
)

// activeExecution 是某个执行器 id 当前唯一的活动执行
type activeExecution struct {
	stepID string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

type acquireStatus int

const (
	acquireClaimed acquireStatus = iota
	acquireSkipped
	acquireCancelled
)

// acquire claims the executor slot for step according to its conflict policy.
// signal is invoked once the decision is made and before blocking.
func (s *Scheduler) acquire(ctx context.Context, step types.Step, signal func(), log *zap.Logger) (*activeExecution, acquireStatus) {
	id := step.ExecutorID()
	policy := step.Conflict()
	switch policy {
	case types.ConflictWaitForCompletion, types.ConflictCancelRunning, types.ConflictSkipIfRunning:
	default:
		log.Warn("unknown conflict policy, waiting for completion", zap.Stringer("policy", policy))
		policy = types.ConflictWaitForCompletion
	}

	for {
		if ctx.Err() != nil {
			signal()
			return nil, acquireCancelled
		}

		s.mu.Lock()
		prev := s.active[id]
		if prev == nil {
			stepCtx, cancel := context.WithCancel(ctx)
			entry := &activeExecution{
				stepID: step.Label(),
				ctx:    stepCtx,
				cancel: cancel,
				done:   make(chan struct{}),
			}
			s.active[id] = entry
			s.mu.Unlock()
			signal()
			return entry, acquireClaimed
		}

		switch policy {
		case types.ConflictSkipIfRunning:
			s.mu.Unlock()
			signal()
			return nil, acquireSkipped
		case types.ConflictCancelRunning:
			log.Debug("cancelling running execution", zap.String("running_step", prev.stepID))
			prev.cancel()
		}
		s.mu.Unlock()
		signal()

		// 等待前一个执行真正结束后再重新竞争
		select {
		case <-prev.done:
		case <-ctx.Done():
			return nil, acquireCancelled
		}
	}
}

// release clears the slot only when it still refers to entry.
func (s *Scheduler) release(id string, entry *activeExecution) {
	s.mu.Lock()
	if cur, ok := s.active[id]; ok && cur == entry {
		delete(s.active, id)
	}
	s.mu.Unlock()
	entry.cancel()
	close(entry.done)
}

// IsActive reports whether an execution for the executor id is running.
func (s *Scheduler) IsActive(executorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[executorID]
	return ok
}

// ActiveCount returns the number of running executions.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// CancelAll cancels every running execution. It does not wait for them.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	entries := make([]*activeExecution, 0, len(s.active))
	for _, e := range s.active {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	for _, e := range entries {
		e.cancel()
	}
}
