package combatevent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"

	"yqhp/combat-engine/pkg/logger"
)

var (
	// ErrLoopStopped is returned for work submitted after the loop stopped.
	ErrLoopStopped = errors.New("presentation loop stopped")
	// ErrNoLoop is returned by invokers that cannot accept work from other goroutines.
	ErrNoLoop = errors.New("invoker has no loop to marshal work onto")
)

// DefaultQueueSize is the loop's task buffer.
const DefaultQueueSize = 256

// Invoker marshals work onto the presentation loop.
type Invoker interface {
	// Run executes fn on the loop and waits for it to return.
	Run(ctx context.Context, fn func(ctx context.Context)) error
	// RunAsync queues fn. The returned channel is closed once fn returned,
	// or yields an error when fn will never run.
	RunAsync(fn func(ctx context.Context)) <-chan error
	// OnLoop reports whether ctx was handed out by the loop.
	OnLoop(ctx context.Context) bool
	// Marshals reports whether RunAsync called from any goroutine runs fn
	// on the loop.
	Marshals() bool
}

type loopKey struct{}

type loopTask struct {
	fn   func(context.Context)
	done chan error
}

// Loop is a single goroutine that runs queued tasks in submission order.
// Tasks must not call Run with a context other than the one they received,
// or Stop, from inside the loop.
type Loop struct {
	queue  chan loopTask
	ctx    context.Context
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewLoop starts a presentation loop.
func NewLoop(queueSize int, l *zap.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if l == nil {
		l = logger.Named("combatevent.loop")
	}
	lp := &Loop{
		queue:  make(chan loopTask, queueSize),
		logger: l,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	lp.ctx = context.WithValue(context.Background(), loopKey{}, lp)
	go lp.run()
	return lp
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case t := <-l.queue:
			l.exec(t)
		case <-l.stop:
			// 执行停止前已入队的任务
			for {
				select {
				case t := <-l.queue:
					l.exec(t)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) exec(t loopTask) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("presentation loop task panic",
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
		close(t.done)
	}()
	t.fn(l.ctx)
}

func (l *Loop) enqueue(ctx context.Context, t loopTask) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrLoopStopped
	}
	select {
	case l.queue <- t:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run implements Invoker. Called from the loop itself, fn runs inline.
func (l *Loop) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if l.OnLoop(ctx) {
		fn(ctx)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t := loopTask{fn: fn, done: make(chan error, 1)}
	if err := l.enqueue(ctx, t); err != nil {
		return err
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunAsync implements Invoker.
func (l *Loop) RunAsync(fn func(ctx context.Context)) <-chan error {
	t := loopTask{fn: fn, done: make(chan error, 1)}
	if err := l.enqueue(context.Background(), t); err != nil {
		t.done <- err
		close(t.done)
	}
	return t.done
}

// OnLoop implements Invoker.
func (l *Loop) OnLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	owner, _ := ctx.Value(loopKey{}).(*Loop)
	return owner == l
}

// Marshals implements Invoker.
func (l *Loop) Marshals() bool { return true }

// Stop rejects new work, drains queued tasks and waits for the loop to exit.
func (l *Loop) Stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		close(l.stop)
	})
	<-l.done
}

type inlineKey struct{}

// Inline runs work synchronously on the goroutine that calls Run. Hosts that
// already drive the engine from their presentation loop, and tests, use it
// instead of Loop. It has no queue, so RunAsync refuses work.
type Inline struct{}

// Run implements Invoker. The ctx handed to fn is only valid on the calling
// goroutine.
func (Inline) Run(ctx context.Context, fn func(ctx context.Context)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn(context.WithValue(ctx, inlineKey{}, true))
	return nil
}

// RunAsync implements Invoker. fn never runs; the channel yields ErrNoLoop.
func (Inline) RunAsync(func(ctx context.Context)) <-chan error {
	done := make(chan error, 1)
	done <- ErrNoLoop
	close(done)
	return done
}

// OnLoop implements Invoker.
func (Inline) OnLoop(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(inlineKey{}).(bool)
	return v
}

// Marshals implements Invoker.
func (Inline) Marshals() bool { return false }

var (
	_ Invoker = (*Loop)(nil)
	_ Invoker = Inline{}
)
