package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/nativebridge/internal/fault"
)

// errNilFailure stands in for a nil cause passed to SetFailure.
var errNilFailure = errors.New("failure with nil cause")

// Future is a one-shot, thread-safe result cell. The first Set or
// SetFailure wins; any later attempt is a fatal ErrAlreadySet, returned to
// the caller so it can be reported.
//
// A caller that gave up waiting (GetTimeout, GetContext) is unaffected by a
// late Set, which is still accepted.
type Future[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	set   bool
	value T
	err   error
}

// NewFuture returns an unset Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future already set to v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	_ = f.Set(v)
	return f
}

// Failed returns a Future already failed with err.
func Failed[T any](err error) *Future[T] {
	f := NewFuture[T]()
	_ = f.SetFailure(err)
	return f
}

// Set stores the result and releases all waiters.
func (f *Future[T]) Set(v T) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return fault.Fatal("future.set", fault.ErrAlreadySet)
	}
	f.set = true
	f.value = v
	close(f.done)
	return nil
}

// SetFailure stores a failure cause and releases all waiters.
func (f *Future[T]) SetFailure(err error) error {
	if err == nil {
		err = errNilFailure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return fault.Fatal("future.set_failure", fault.ErrAlreadySet)
	}
	f.set = true
	f.err = err
	close(f.done)
	return nil
}

// Done is closed once the future is set.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future has been set.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future is set. A failure is returned wrapped, so
// errors.Is and errors.As see the original cause.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.result()
}

// GetTimeout blocks for at most d. If the deadline elapses first it returns a
// KindTimeout error wrapping fault.ErrTimeout.
func (f *Future[T]) GetTimeout(d time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.result()
	default:
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result()
	case <-timer.C:
		var zero T
		return zero, fault.Timeout("future.get", d)
	}
}

// GetContext blocks until the future is set or ctx is done, in which case the
// context's error is returned.
func (f *Future[T]) GetContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		var zero T
		return zero, fmt.Errorf("future failed: %w", f.err)
	}
	return f.value, nil
}
