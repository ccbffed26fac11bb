// Package timedhit implements the timed-hit judgment engine: the input
// buffer, tolerance profiles, event-driven windows and the basic, chain and
// instant runners.
package timedhit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"yqhp/combat-engine/internal/clock"
	"yqhp/combat-engine/internal/eventbus"
	"yqhp/combat-engine/pkg/logger"
	"yqhp/combat-engine/pkg/types"
)

// Bus topics used by the service.
const (
	TopicWindowOpen  = "timedhit.window.open"
	TopicWindowClose = "timedhit.window.close"
	TopicInput       = "timedhit.input"
	TopicResult      = "timedhit.result"
)

// Bus is the event bus the service listens and publishes on.
type Bus interface {
	Publish(topic string, payload any)
	Subscribe(topic string, h eventbus.Handler) func()
}

// Service 判定引擎：管理窗口、输入缓冲、连击计数和运行器选择
type Service struct {
	clock    clock.Clock
	bus      Bus
	buffer   *InputBuffer
	profiles *ProfileResolver
	opts     Options
	logger   *zap.Logger

	mu       sync.Mutex
	windows  map[string][]*ActiveWindow
	streaks  map[string]int
	waiters  map[string]map[uint64]chan struct{}
	waiterID uint64
	phases   map[string]types.PhaseCallback
	unsubs   []func()
	started  bool
	runners  map[types.TimedHitKind]Runner
	instant  Runner
}

var _ types.TimedHitRunner = (*Service)(nil)

// NewService creates a judgment engine. bus may be nil for direct use.
func NewService(clk clock.Clock, bus Bus, opts Options, l *zap.Logger) *Service {
	if clk == nil {
		clk = clock.NewReal()
	}
	if l == nil {
		l = logger.Named("timedhit")
	}
	if !opts.InstantJudgment.IsSuccess() {
		if opts.InstantJudgment != "" {
			l.Warn("instant judgment must be a success, using good",
				zap.String("judgment", string(opts.InstantJudgment)))
		}
		opts.InstantJudgment = types.JudgmentGood
	}

	profiles := NewProfileResolver(opts.Default, opts.Profiles, l.Named("profiles"))
	s := &Service{
		clock:    clk,
		bus:      bus,
		buffer:   NewInputBuffer(clk, opts.Retention, l.Named("buffer")),
		profiles: profiles,
		opts:     opts,
		logger:   l,
		windows:  make(map[string][]*ActiveWindow),
		streaks:  make(map[string]int),
		waiters:  make(map[string]map[uint64]chan struct{}),
		phases:   make(map[string]types.PhaseCallback),
		runners:  make(map[types.TimedHitKind]Runner),
	}
	s.RegisterRunner(NewBasicRunner(opts.Basic, profiles))
	s.RegisterRunner(NewChainRunner(opts.Chain))
	s.instant = NewInstantRunner(opts.InstantJudgment, opts.Basic, opts.Chain)
	return s
}

// Buffer returns the input buffer.
func (s *Service) Buffer() *InputBuffer { return s.buffer }

// Profiles returns the tolerance resolver.
func (s *Service) Profiles() *ProfileResolver { return s.profiles }

// RegisterRunner installs or replaces the interactive runner for its kind.
func (s *Service) RegisterRunner(r Runner) {
	if r == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runners[r.Kind()] = r
}

// Start subscribes to window and input topics and checks the buffer
// retention against every configured timeline. Calling Start twice is a no-op.
func (s *Service) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	if s.bus != nil {
		s.unsubs = []func(){
			s.bus.Subscribe(TopicWindowOpen, func(_ string, payload any) {
				if ev, ok := decodeWindowEvent(payload); ok {
					s.OpenWindow(ev)
				} else {
					s.logger.Warn("unrecognized window open payload", zap.String("type", fmt.Sprintf("%T", payload)))
				}
			}),
			s.bus.Subscribe(TopicWindowClose, func(_ string, payload any) {
				if ev, ok := decodeWindowEvent(payload); ok {
					s.CloseWindow(ev)
				} else {
					s.logger.Warn("unrecognized window close payload", zap.String("type", fmt.Sprintf("%T", payload)))
				}
			}),
			s.bus.Subscribe(TopicInput, func(_ string, payload any) {
				if ev, ok := decodeInputEvent(payload); ok {
					s.RegisterInput(ev.Actor, ev.Source)
				}
			}),
		}
	}
	s.mu.Unlock()

	s.buffer.CheckRetention(s.Timelines())
	s.logger.Debug("timed-hit service started", zap.Bool("interactive", s.opts.Interactive))
}

// Stop unsubscribes from the bus and drops open windows.
func (s *Service) Stop() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.started = false
	s.windows = make(map[string][]*ActiveWindow)
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	s.logger.Debug("timed-hit service stopped")
}

// Timelines returns every timeline an input must survive, by name.
func (s *Service) Timelines() map[string]time.Duration {
	t := s.profiles.Timelines()
	t["basic"] = types.Millis(s.opts.Basic.EarlyMs) + s.opts.Basic.Window()
	t["chain"] = types.Millis(s.opts.Chain.EarlyMs) + s.opts.Chain.Phase() + s.opts.Chain.Grace()
	return t
}

// RegisterInput buffers a press and wakes runners waiting on the actor.
func (s *Service) RegisterInput(actor, source string) BufferedInput {
	in := s.buffer.Register(actor, source)

	s.mu.Lock()
	for _, ch := range s.waiters[actor] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
	return in
}

// Streak returns the actor's current success streak.
func (s *Service) Streak(actor string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaks[actor]
}

// ResetStreak clears the actor's success streak.
func (s *Service) ResetStreak(actor string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streaks, actor)
}

// OpenWindow records an active window stamped with the current time.
func (s *Service) OpenWindow(ev WindowEvent) *ActiveWindow {
	w := &ActiveWindow{WindowEvent: ev, ID: uuid.NewString(), OpenedAt: s.clock.Now()}
	s.mu.Lock()
	s.windows[ev.Actor] = append(s.windows[ev.Actor], w)
	s.mu.Unlock()

	s.logger.Debug("window opened",
		zap.String("actor", ev.Actor),
		zap.String("tag", ev.Tag),
		zap.Int("index", ev.Index),
		zap.Int("count", ev.Count))
	return w
}

// ActiveWindows returns the actor's open windows in opening order.
func (s *Service) ActiveWindows(actor string) []ActiveWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActiveWindow, len(s.windows[actor]))
	for i, w := range s.windows[actor] {
		out[i] = *w
	}
	return out
}

// CloseWindow matches an open window (by index, then tag, then oldest),
// judges the buffered input against it and publishes the result. It returns
// nil when no window matches.
func (s *Service) CloseWindow(ev WindowEvent) *types.TimedHitResult {
	now := s.clock.Now()
	s.mu.Lock()
	w := s.takeWindow(ev)
	s.mu.Unlock()
	if w == nil {
		s.logger.Warn("window close without matching open window",
			zap.String("actor", ev.Actor), zap.String("tag", ev.Tag), zap.Int("index", ev.Index))
		return nil
	}

	tol := s.profiles.Resolve(w.ToleranceID, w.Tag)
	m, ok := s.buffer.TryConsume(w.Actor, w.OpenedAt, now, tol, w.Center(now))
	j := types.JudgmentMiss
	if ok {
		j = tol.Classify(m.DeltaMs)
	}

	result := &types.TimedHitResult{
		RunID:            w.ID,
		Actor:            w.Actor,
		Kind:             types.TimedHitWindow,
		Tag:              w.Tag,
		Judgment:         j,
		HitsSucceeded:    boolToInt(j.IsSuccess()),
		TotalHits:        1,
		DamageMultiplier: s.opts.Basic.Multiplier(j),
		PhaseIndex:       w.Index,
		PhaseTotal:       w.Count,
		IsFinal:          w.IsFinal(),
		CPRefund:         s.opts.Basic.Refund(j),
		ConsumedInput:    ok,
		DeltaMs:          m.DeltaMs,
	}
	result.SuccessStreak = s.updateStreak(w.Actor, j)
	s.publish(result)
	return result
}

// takeWindow 调用方持有 s.mu
func (s *Service) takeWindow(ev WindowEvent) *ActiveWindow {
	list := s.windows[ev.Actor]
	if len(list) == 0 {
		return nil
	}

	pick := -1
	if ev.Count > 0 {
		for i, w := range list {
			if w.Index == ev.Index {
				pick = i
				break
			}
		}
	}
	if pick < 0 && ev.Tag != "" {
		for i, w := range list {
			if w.Tag == ev.Tag {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		pick = 0
	}

	w := list[pick]
	s.windows[ev.Actor] = append(list[:pick:pick], list[pick+1:]...)
	if len(s.windows[ev.Actor]) == 0 {
		delete(s.windows, ev.Actor)
	}
	return w
}

// Run evaluates a request. Non-interactive services and kinds without a
// registered runner use the instant runner. It never returns nil.
func (s *Service) Run(ctx context.Context, req *types.TimedHitRequest, onPhase types.PhaseCallback) *types.TimedHitResult {
	var r types.TimedHitRequest
	if req != nil {
		r = *req
	}
	// 调用方的请求保持不变
	req = &r
	if req.Kind == "" {
		req.Kind = types.TimedHitBasic
	}

	run := &Run{ID: uuid.NewString(), Request: req, svc: s}
	runner := s.selectRunner(req.Kind)

	if onPhase != nil {
		s.mu.Lock()
		s.phases[run.ID] = onPhase
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.phases, run.ID)
			s.mu.Unlock()
		}()
	}

	result := s.execute(ctx, runner, run)
	result.RunID = run.ID
	result.Actor = req.Actor
	if !result.Cancelled {
		result.SuccessStreak = s.updateStreak(req.Actor, result.Judgment)
	} else {
		result.SuccessStreak = s.Streak(req.Actor)
	}
	s.publish(result)
	return result
}

func (s *Service) selectRunner(kind types.TimedHitKind) Runner {
	if !s.opts.Interactive {
		return s.instant
	}
	s.mu.Lock()
	r, ok := s.runners[kind]
	s.mu.Unlock()
	if !ok {
		if kind != types.TimedHitInstant {
			s.logger.Debug("no interactive runner, using instant", zap.String("kind", string(kind)))
		}
		return s.instant
	}
	return r
}

func (s *Service) execute(ctx context.Context, runner Runner, run *Run) (result *types.TimedHitResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("timed-hit runner panicked",
				zap.String("run_id", run.ID),
				zap.String("kind", string(runner.Kind())),
				zap.String("panic", fmt.Sprint(r)))
			result = missResult(runner.Kind())
		}
	}()

	if ctx.Err() != nil {
		return run.Cancelled(runner.Kind(), 0)
	}
	result = runner.Run(ctx, run)
	if result == nil {
		result = missResult(runner.Kind())
	}
	return result
}

func missResult(kind types.TimedHitKind) *types.TimedHitResult {
	return &types.TimedHitResult{
		Kind:       kind,
		Judgment:   types.JudgmentMiss,
		TotalHits:  1,
		PhaseTotal: 1,
		IsFinal:    true,
	}
}

func (s *Service) updateStreak(actor string, j types.Judgment) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.IsSuccess() {
		s.streaks[actor]++
	} else {
		s.streaks[actor] = 0
	}
	return s.streaks[actor]
}

func (s *Service) watchInput(actor string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.waiterID++
	id := s.waiterID
	if s.waiters[actor] == nil {
		s.waiters[actor] = make(map[uint64]chan struct{})
	}
	s.waiters[actor][id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.waiters[actor], id)
		if len(s.waiters[actor]) == 0 {
			delete(s.waiters, actor)
		}
	}
}

func (s *Service) emitPhase(runID string, phase *types.TimedHitResult) {
	s.mu.Lock()
	cb := s.phases[runID]
	s.mu.Unlock()
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("phase callback panicked", zap.String("run_id", runID), zap.String("panic", fmt.Sprint(r)))
		}
	}()
	cb(phase)
}

func (s *Service) publish(result *types.TimedHitResult) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(TopicResult, result)
}
