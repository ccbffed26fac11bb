package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry 管理执行器的注册和查找。
// 同一 id 重复注册时，后注册的执行器覆盖先前的。
type Registry struct {
	executors map[string]Executor
	mu        sync.RWMutex
}

// NewRegistry 创建一个新的执行器注册表。
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register 注册执行器，返回被替换的旧执行器（如果有）。
func (r *Registry) Register(executor Executor) (Executor, error) {
	if executor == nil {
		return nil, fmt.Errorf("cannot register nil executor")
	}

	id := executor.ID()
	if id == "" {
		return nil, fmt.Errorf("executor id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.executors[id]
	r.executors[id] = executor
	return previous, nil
}

// MustRegister 注册执行器，如果出错则 panic。
func (r *Registry) MustRegister(executor Executor) {
	if _, err := r.Register(executor); err != nil {
		panic(err)
	}
}

// Unregister 移除给定 id 的执行器。
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.executors[id]
	delete(r.executors, id)
	return ok
}

// Get 按 id 获取执行器，不存在时返回 nil。
func (r *Registry) Get(id string) Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executors[id]
}

// GetOrError 按 id 获取执行器，如果不存在则返回错误。
func (r *Registry) GetOrError(id string) (Executor, error) {
	executor := r.Get(id)
	if executor == nil {
		return nil, NewExecutorNotFoundError(id)
	}
	return executor, nil
}

// Has 检查给定 id 是否已注册执行器。
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[id]
	return exists
}

// IDs 返回所有已注册的执行器 id（排序后）。
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.executors))
	for id := range r.executors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count 返回已注册执行器的数量。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.executors)
}

// InitAll 初始化所有实现了 Lifecycle 的执行器。
func (r *Registry) InitAll(ctx context.Context) error {
	for _, executor := range r.snapshot() {
		lc, ok := executor.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Init(ctx); err != nil {
			return NewInitError(executor.ID(), "init failed", err)
		}
	}
	return nil
}

// CleanupAll 清理所有实现了 Lifecycle 的执行器，返回最后一个错误。
func (r *Registry) CleanupAll(ctx context.Context) error {
	var lastErr error
	for _, executor := range r.snapshot() {
		lc, ok := executor.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Cleanup(ctx); err != nil {
			lastErr = fmt.Errorf("cleanup executor %s: %w", executor.ID(), err)
		}
	}
	return lastErr
}

// RegisterAlias 为已注册的执行器创建别名。
func (r *Registry) RegisterAlias(alias, targetID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, exists := r.executors[targetID]
	if !exists {
		return false
	}
	r.executors[alias] = target
	return true
}

func (r *Registry) snapshot() []Executor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Executor, 0, len(r.executors))
	for _, id := range sortedKeys(r.executors) {
		out = append(out, r.executors[id])
	}
	return out
}

func sortedKeys(m map[string]Executor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
