package bridge

import (
	"fmt"

	"github.com/joeycumines/nativebridge/internal/event"
	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/mount"
	"github.com/joeycumines/nativebridge/internal/queue"
)

// SubmitMountItems implements Host. Items are checked on NativeDispatch;
// malformed ones are reported and dropped, the rest are scheduled onto the
// UI queue in their original order.
func (b *Bridge) SubmitMountItems(items []mount.Item) error {
	if err := b.accepting("bridge.mount"); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	batch := append([]mount.Item(nil), items...)
	return b.queues.NativeDispatch.Submit(func() {
		valid := batch[:0]
		for i, item := range batch {
			if err := validateItem(item); err != nil {
				b.reporter.Report(&fault.Error{Op: "bridge.mount", Err: fmt.Errorf("item %d: %w", i, err)})
				continue
			}
			valid = append(valid, item)
		}
		if err := b.accepting("bridge.mount"); err != nil {
			return
		}
		if err := b.mounting.Schedule(valid); err != nil {
			b.reporter.Report(err)
		}
	})
}

func validateItem(item mount.Item) error {
	switch it := item.(type) {
	case nil:
		return fmt.Errorf("%w: nil item", fault.ErrInvalidItem)
	case mount.Create:
		if it.ViewType == "" {
			return fmt.Errorf("%w: %v has no view type", fault.ErrInvalidItem, it)
		}
	case mount.Insert:
		if it.Parent == it.Child {
			return fmt.Errorf("%w: %v inserts a view into itself", fault.ErrInvalidItem, it)
		}
	}
	return nil
}

// InvokeModule implements Host.
func (b *Bridge) InvokeModule(name, method string, args []any) *queue.Future[any] {
	if err := b.accepting("bridge.invoke"); err != nil {
		return queue.Failed[any](err)
	}
	return b.registry.InvokeAsync(name, method, args)
}

// Module returns the named module, constructing it if needed.
func (b *Bridge) Module(name string) *queue.Future[any] {
	return b.registry.Lookup(name)
}

// DispatchEvent posts ev to the dispatcher from any goroutine. Hosts already
// on the UI queue should use Dispatcher().DispatchEvent directly.
func (b *Bridge) DispatchEvent(ev event.Event) error {
	if err := b.accepting("bridge.dispatch"); err != nil {
		return err
	}
	return b.queues.UI.Submit(func() { b.dispatcher.DispatchEvent(ev) })
}

// StartSurface registers a root view on the UI queue.
func (b *Bridge) StartSurface(id, rootTag int, root mount.View) *queue.Future[struct{}] {
	return b.onUI(func() error { return b.mounting.StartSurface(id, rootTag, root) })
}

// StopSurface releases a surface's views on the UI queue.
func (b *Bridge) StopSurface(id int) *queue.Future[struct{}] {
	return b.onUI(func() error { return b.mounting.StopSurface(id) })
}

func (b *Bridge) onUI(fn func() error) *queue.Future[struct{}] {
	if b.queues.UI.IsOnQueue() {
		if err := fn(); err != nil {
			return queue.Failed[struct{}](err)
		}
		return queue.Resolved(struct{}{})
	}
	return queue.Run(b.queues.UI, fn)
}

// MeasureView returns the size of a view. Off the UI queue it waits at most
// the configured measure timeout.
func (b *Bridge) MeasureView(tag int) (mount.Size, error) {
	if b.queues.UI.IsOnQueue() {
		return b.mounting.Measure(tag)
	}
	return queue.Call(b.queues.UI, func() (mount.Size, error) {
		return b.mounting.Measure(tag)
	}).GetTimeout(b.measureTimeout)
}
