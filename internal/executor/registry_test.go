package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/combat-engine/pkg/types"
)

type lifecycleExecutor struct {
	*BaseExecutor
	inited   bool
	cleaned  bool
	initErr  error
	cleanErr error
}

func (l *lifecycleExecutor) Execute(context.Context, *StepContext) (*types.StepOutcome, error) {
	return nil, nil
}

func (l *lifecycleExecutor) Init(context.Context) error {
	l.inited = true
	return l.initErr
}

func (l *lifecycleExecutor) Cleanup(context.Context) error {
	l.cleaned = true
	return l.cleanErr
}

func noop(id string) Executor {
	return NewFunc(id, func(context.Context, *StepContext) (*types.StepOutcome, error) { return nil, nil })
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	prev, err := r.Register(noop("clip"))
	require.NoError(t, err)
	assert.Nil(t, prev)

	assert.True(t, r.Has("clip"))
	assert.Equal(t, "clip", r.Get("clip").ID())
	assert.Nil(t, r.Get("missing"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := NewRegistry()
	first := noop("clip")
	second := noop("clip")
	r.MustRegister(first)

	prev, err := r.Register(second)
	require.NoError(t, err)
	assert.Same(t, first, prev)
	assert.Same(t, second, r.Get("clip"))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(nil)
	assert.Error(t, err)
	_, err = r.Register(noop(""))
	assert.Error(t, err)
	assert.Panics(t, func() { r.MustRegister(nil) })
}

func TestRegistry_GetOrError(t *testing.T) {
	r := NewRegistry()
	_, err := r.GetOrError("ghost")
	require.Error(t, err)
	assert.True(t, IsNotFoundError(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestRegistry_UnregisterAndIDs(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(noop("vfx"))
	r.MustRegister(noop("clip"))
	r.MustRegister(noop("audio"))

	assert.Equal(t, []string{"audio", "clip", "vfx"}, r.IDs())
	assert.True(t, r.Unregister("clip"))
	assert.False(t, r.Unregister("clip"))
	assert.Equal(t, []string{"audio", "vfx"}, r.IDs())
}

func TestRegistry_Alias(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(noop("wait"))
	assert.True(t, r.RegisterAlias("sleep", "wait"))
	assert.False(t, r.RegisterAlias("pause", "missing"))
	assert.Same(t, r.Get("wait"), r.Get("sleep"))
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()
	a := &lifecycleExecutor{BaseExecutor: NewBaseExecutor("a")}
	b := &lifecycleExecutor{BaseExecutor: NewBaseExecutor("b"), cleanErr: errors.New("busy")}
	r.MustRegister(a)
	r.MustRegister(b)
	r.MustRegister(noop("plain"))

	require.NoError(t, r.InitAll(context.Background()))
	assert.True(t, a.inited)
	assert.True(t, b.inited)

	err := r.CleanupAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b")
	assert.True(t, a.cleaned)
	assert.True(t, b.cleaned)
}

func TestRegistry_InitFailure(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(&lifecycleExecutor{BaseExecutor: NewBaseExecutor("bad"), initErr: errors.New("no assets")})

	err := r.InitAll(context.Background())
	require.Error(t, err)
	var execErr *ExecutorError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrCodeInit, execErr.Code)
}
