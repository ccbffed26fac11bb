package combatevent

import (
	"sync"
	"sync/atomic"

	"github.com/duke-git/lancet/v2/slice"
)

// Listener consumes combat events on the presentation loop.
type Listener interface {
	OnCombatEvent(flag Flag, ev *CombatEventContext)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(flag Flag, ev *CombatEventContext)

// OnCombatEvent implements Listener.
func (f ListenerFunc) OnCombatEvent(flag Flag, ev *CombatEventContext) {
	f(flag, ev)
}

// ListenerID identifies a registration.
type ListenerID uint64

type listenerEntry struct {
	id       ListenerID
	name     string
	listener Listener
}

// listenerRegistry 单锁保护的监听器列表，count 供热路径无锁判断
type listenerRegistry struct {
	mu      sync.Mutex
	entries []listenerEntry
	nextID  ListenerID
	count   atomic.Int32
}

func (r *listenerRegistry) add(name string, l Listener) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, listenerEntry{id: r.nextID, name: name, listener: l})
	r.count.Store(int32(len(r.entries)))
	return r.nextID
}

func (r *listenerRegistry) remove(id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.entries)
	r.entries = slice.Filter(r.entries, func(_ int, e listenerEntry) bool {
		return e.id != id
	})
	r.count.Store(int32(len(r.entries)))
	return len(r.entries) != before
}

// snapshot 分发前复制列表，分发期间的注册变更不影响本次调用
func (r *listenerRegistry) snapshot() []listenerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]listenerEntry(nil), r.entries...)
}

func (r *listenerRegistry) names() []string {
	return slice.Map(r.snapshot(), func(_ int, e listenerEntry) string {
		return e.name
	})
}

func (r *listenerRegistry) len() int {
	return int(r.count.Load())
}
