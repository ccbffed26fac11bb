// Package eventbus is the in-process side-channel bus carried in the
// execution context. Presentation code publishes window events on it and the
// judgment engine publishes its results back.
package eventbus

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/logger"
)

// Wildcard subscribers receive every topic.
const Wildcard = "*"

// Handler receives a published payload.
type Handler func(topic string, payload any)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a synchronous topic pub/sub. Handlers run on the publisher's
// goroutine against a snapshot of the subscriber list.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	nextID uint64
	logger *zap.Logger
}

// New creates a bus. A nil logger uses the global one.
func New(l *zap.Logger) *Bus {
	if l == nil {
		l = logger.Named("eventbus")
	}
	return &Bus{
		subs:   make(map[string][]subscription),
		logger: l,
	}
}

// Subscribe registers a handler and returns its unsubscribe function.
// Calling the returned function more than once is safe.
func (b *Bus) Subscribe(topic string, h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic] = append(b.subs[topic], subscription{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(topic, id) })
	}
}

func (b *Bus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[topic]
	for i, s := range list {
		if s.id == id {
			// copy-on-write, published snapshots stay valid
			next := make([]subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, topic)
			} else {
				b.subs[topic] = next
			}
			return
		}
	}
}

// Publish delivers payload to the topic's subscribers and to wildcard subscribers.
// A panicking handler is logged and does not stop delivery.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.RLock()
	direct := b.subs[topic]
	var wild []subscription
	if topic != Wildcard {
		wild = b.subs[Wildcard]
	}
	b.mu.RUnlock()

	for _, s := range direct {
		b.deliver(s, topic, payload)
	}
	for _, s := range wild {
		b.deliver(s, topic, payload)
	}
}

func (b *Bus) deliver(s subscription, topic string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("topic", topic),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	s.handler(topic, payload)
}

// SubscriberCount returns the number of handlers registered for a topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
