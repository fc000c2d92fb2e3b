package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuture_SetOnce(t *testing.T) {
	f := queue.NewFuture[int]()
	assert.False(t, f.IsDone())
	require.NoError(t, f.Set(7))
	assert.True(t, f.IsDone())

	err := f.Set(8)
	require.ErrorIs(t, err, fault.ErrAlreadySet)
	assert.True(t, fault.IsFatal(err))
	require.ErrorIs(t, f.SetFailure(errors.New("late")), fault.ErrAlreadySet)

	v, err := f.Get()
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestFuture_FailureIsWrapped(t *testing.T) {
	cause := errors.New("boom")
	f := queue.Failed[string](cause)
	_, err := f.Get()
	require.ErrorIs(t, err, cause)

	_, err = queue.Failed[int](nil).Get()
	require.Error(t, err)
}

func TestFuture_GetTimeoutThenLateSet(t *testing.T) {
	f := queue.NewFuture[string]()
	start := time.Now()
	_, err := f.GetTimeout(20 * time.Millisecond)
	require.ErrorIs(t, err, fault.ErrTimeout)
	assert.Equal(t, fault.KindTimeout, fault.KindOf(err))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	require.NoError(t, f.Set("late"))
	v, err := f.GetTimeout(time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "late", v)
}

func TestFuture_GetContext(t *testing.T) {
	f := queue.NewFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.GetContext(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFuture_ConcurrentSettersOneWins(t *testing.T) {
	f := queue.NewFuture[int]()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.Set(i) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	<-f.Done()
}
