package module_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/module"
	"github.com/joeycumines/nativebridge/internal/queue"
	"github.com/joeycumines/nativebridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	name        string
	invalidated atomic.Int32
}

func (c *counter) Invalidate() { c.invalidated.Add(1) }

func (c *counter) Methods() map[string]module.Method {
	return map[string]module.Method{
		"name": func([]any) (any, error) { return c.name, nil },
		"echo": func(args []any) (any, error) { return args, nil },
	}
}

func newRegistry(t *testing.T, descs ...module.Descriptor) (*module.Registry, *fault.Recorder) {
	t.Helper()
	rec := new(fault.Recorder)
	q, err := queue.New(queue.Config{Name: "native"}, rec)
	require.NoError(t, err)
	t.Cleanup(q.QuiesceAndJoin)
	r, err := module.NewRegistry(q, descs, module.Options{BridgeID: "test", Reporter: rec})
	require.NoError(t, err)
	return r, rec
}

func onQueue[T any](t *testing.T, r *module.Registry, fn func() (T, error)) (T, error) {
	t.Helper()
	return queue.Call(r.Queue(), fn).GetTimeout(testutil.WaitTimeout)
}

func TestNewRegistry_RejectsBadDescriptors(t *testing.T) {
	q, err := queue.New(queue.Config{Name: "native"}, nil)
	require.NoError(t, err)
	defer q.QuiesceAndJoin()
	f := func(*module.Context) (any, error) { return 1, nil }

	_, err = module.NewRegistry(q, []module.Descriptor{{Name: "a", Factory: f}, {Name: "a", Factory: f}}, module.Options{})
	require.Error(t, err)
	_, err = module.NewRegistry(q, []module.Descriptor{{Name: "", Factory: f}}, module.Options{})
	require.Error(t, err)
	_, err = module.NewRegistry(q, []module.Descriptor{{Name: "x"}}, module.Options{})
	require.Error(t, err)
}

func TestRegistry_SingleConstructionUnderConcurrentLookup(t *testing.T) {
	var built atomic.Int32
	r, _ := newRegistry(t, module.Descriptor{
		Name: "clipboard",
		Factory: func(*module.Context) (any, error) {
			built.Add(1)
			return &counter{name: "clipboard"}, nil
		},
	})

	const callers = 64
	results := make([]any, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := r.Lookup("clipboard").GetTimeout(testutil.WaitTimeout)
			assert.NoError(t, err)
			results[i] = v
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, v := range results {
		assert.Same(t, results[0], v)
	}
	has, err := onQueue(t, r, func() (bool, error) { return r.HasModule("clipboard"), nil })
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRegistry_HasModuleDoesNotConstruct(t *testing.T) {
	var built atomic.Int32
	r, _ := newRegistry(t, module.Descriptor{
		Name:    "lazy",
		Factory: func(*module.Context) (any, error) { built.Add(1); return &counter{}, nil },
	})
	has, err := onQueue(t, r, func() (bool, error) { return r.HasModule("lazy"), nil })
	require.NoError(t, err)
	assert.False(t, has)
	assert.Zero(t, built.Load())
}

func TestRegistry_UnknownModuleReported(t *testing.T) {
	r, rec := newRegistry(t)
	_, err := r.Lookup("nope").GetTimeout(testutil.WaitTimeout)
	require.ErrorIs(t, err, fault.ErrUnknownModule)
	assert.Equal(t, fault.KindSoft, fault.KindOf(err))
	assert.Len(t, rec.Matching(fault.ErrUnknownModule), 1)
}

func TestRegistry_FailedConstructionIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	cause := errors.New("no display")
	r, rec := newRegistry(t,
		module.Descriptor{
			Name:    "broken",
			Factory: func(*module.Context) (any, error) { attempts.Add(1); return nil, cause },
		},
		module.Descriptor{
			Name:    "panicky",
			Factory: func(*module.Context) (any, error) { panic("init") },
		},
	)
	for range 3 {
		_, err := r.Lookup("broken").GetTimeout(testutil.WaitTimeout)
		require.ErrorIs(t, err, fault.ErrModuleUnavailable)
		require.ErrorIs(t, err, cause)
	}
	assert.Equal(t, int32(1), attempts.Load())
	assert.Len(t, rec.Matching(cause), 1)

	_, err := r.Lookup("panicky").GetTimeout(testutil.WaitTimeout)
	var pe *fault.PanicError
	require.ErrorAs(t, err, &pe)
	require.ErrorIs(t, err, fault.ErrModuleUnavailable)
}

func TestRegistry_ConstructionCycle(t *testing.T) {
	r, _ := newRegistry(t,
		module.Descriptor{
			Name: "a",
			Factory: func(ctx *module.Context) (any, error) {
				if _, err := ctx.Registry.GetModule("b"); err != nil {
					return nil, err
				}
				return &counter{}, nil
			},
		},
		module.Descriptor{
			Name: "b",
			Factory: func(ctx *module.Context) (any, error) {
				_, _ = ctx.Registry.GetModule("a")
				return &counter{}, nil
			},
		},
	)
	_, err := r.Lookup("a").GetTimeout(testutil.WaitTimeout)
	require.ErrorIs(t, err, fault.ErrModuleCycle)
	// b completed on its own; only the module that was re-entered fails
	_, err = r.Lookup("b").GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
	_, err = r.Lookup("a").GetTimeout(testutil.WaitTimeout)
	require.ErrorIs(t, err, fault.ErrModuleUnavailable)
}

func TestRegistry_DependencyIsShared(t *testing.T) {
	dep := &counter{name: "dep"}
	r, _ := newRegistry(t,
		module.Descriptor{Name: "dep", Factory: func(*module.Context) (any, error) { return dep, nil }},
		module.Descriptor{Name: "user", Factory: func(ctx *module.Context) (any, error) {
			return ctx.Registry.GetModule("dep")
		}},
	)
	v, err := r.Lookup("user").GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
	assert.Same(t, dep, v)
}

func TestRegistry_EagerInit(t *testing.T) {
	var built atomic.Int32
	f := func(*module.Context) (any, error) { built.Add(1); return &counter{}, nil }
	r, _ := newRegistry(t,
		module.Descriptor{Name: "lazy", Factory: f},
		module.Descriptor{Name: "warm", EagerInit: true, Factory: f},
	)
	assert.Equal(t, []string{"lazy", "warm"}, r.Names())
	assert.Equal(t, []string{"warm"}, r.EagerInitNames())

	_, err := onQueue(t, r, func() (struct{}, error) { return struct{}{}, r.InitEager() })
	require.NoError(t, err)
	assert.Equal(t, int32(1), built.Load())
}

func TestRegistry_InvalidateAllIsIdempotent(t *testing.T) {
	a, b := &counter{}, &counter{}
	r, _ := newRegistry(t,
		module.Descriptor{Name: "a", Factory: func(*module.Context) (any, error) { return a, nil }},
		module.Descriptor{Name: "b", Factory: func(*module.Context) (any, error) { return b, nil }},
		module.Descriptor{Name: "never", Factory: func(*module.Context) (any, error) { return &counter{}, nil }},
	)
	_, err := r.Lookup("a").GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
	_, err = r.Lookup("b").GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)

	for range 2 {
		_, err = onQueue(t, r, func() (struct{}, error) { r.InvalidateAll(); return struct{}{}, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), a.invalidated.Load())
	assert.Equal(t, int32(1), b.invalidated.Load())

	_, err = r.Lookup("never").GetTimeout(testutil.WaitTimeout)
	require.ErrorIs(t, err, fault.ErrRegistryInvalidated)
	has, err := onQueue(t, r, func() (bool, error) { return r.HasModule("a"), nil })
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRegistry_Invoke(t *testing.T) {
	r, rec := newRegistry(t,
		module.Descriptor{Name: "c", Factory: func(*module.Context) (any, error) { return &counter{name: "c"}, nil }},
		module.Descriptor{Name: "plain", Factory: func(*module.Context) (any, error) { return struct{}{}, nil }},
	)
	v, err := r.InvokeAsync("c", "name", nil).GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
	assert.Equal(t, "c", v)

	v, err = r.InvokeAsync("c", "echo", []any{1, "x"}).GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
	assert.Equal(t, []any{1, "x"}, v)

	_, err = r.InvokeAsync("c", "missing", nil).GetTimeout(testutil.WaitTimeout)
	require.ErrorIs(t, err, fault.ErrUnknownMethod)
	_, err = r.InvokeAsync("plain", "anything", nil).GetTimeout(testutil.WaitTimeout)
	require.ErrorIs(t, err, fault.ErrUnknownMethod)
	assert.Len(t, rec.Matching(fault.ErrUnknownMethod), 2)
}

func TestRegistry_GetModuleOffQueuePanics(t *testing.T) {
	r, _ := newRegistry(t)
	assert.Panics(t, func() { _, _ = r.GetModule("x") })
}
