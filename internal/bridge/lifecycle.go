package bridge

import (
	"context"
	"errors"

	"github.com/joeycumines/nativebridge/internal/queue"
)

// Resume re-enables event flushing.
func (b *Bridge) Resume() {
	if !b.state.CompareAndSwap(int32(Paused), int32(Running)) {
		return
	}
	b.onLifecycle(b.dispatcher.Resume)
	b.logger.Debug("bridge resumed")
}

// Pause defers event flushing. Nothing queued is dropped.
func (b *Bridge) Pause() {
	if !b.state.CompareAndSwap(int32(Running), int32(Paused)) {
		return
	}
	b.onLifecycle(b.dispatcher.Pause)
	b.logger.Debug("bridge paused")
}

func (b *Bridge) onLifecycle(fn func()) {
	if b.queues.UI.IsOnQueue() {
		fn()
		return
	}
	if err := b.queues.UI.Submit(fn); err != nil {
		b.reporter.Report(err)
	}
}

// Destroy tears the bridge down: modules are invalidated, every live surface
// is stopped, the engine is closed, then the Scripting and NativeDispatch
// queues are drained and joined. Each step is bounded by the shutdown
// timeout. Only the first call does any work.
func (b *Bridge) Destroy() error {
	b.destroyed.Do(func() {
		b.state.Store(int32(Destroyed))
		if b.stopAfter != nil {
			b.stopAfter()
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, b.await(ctx, b.queues.NativeDispatch, func() error {
			b.registry.InvalidateAll()
			return nil
		}))
		errs = append(errs, b.await(ctx, b.queues.UI, func() error {
			b.mounting.StopAll()
			return nil
		}))
		if b.engine != nil {
			errs = append(errs, b.await(ctx, b.queues.Scripting, b.engine.Close))
		}
		errs = append(errs, b.queues.DestroyContext(ctx))

		b.destroyErr = errors.Join(errs...)
		if b.destroyErr != nil {
			b.logger.Warn("bridge destroyed with errors", "error", b.destroyErr)
		} else {
			b.logger.Info("bridge destroyed")
		}
		b.cancel()
	})
	return b.destroyErr
}

// await runs fn on q and waits for it, running inline when already on q.
func (b *Bridge) await(ctx context.Context, q *queue.TaskQueue, fn func() error) error {
	if q.IsOnQueue() {
		return fn()
	}
	_, err := queue.Run(q, fn).GetContext(ctx)
	return err
}
