package scripting

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/goroutineid"
	"github.com/joeycumines/nativebridge/internal/queue"
)

// Loop is the goja_nodejs event loop that owns the runtime, adapted to
// queue.StoppableLoop so the bridge's Scripting queue runs on it. Timers
// and the console come from the loop.
type Loop struct {
	loop     *eventloop.EventLoop
	registry *require.Registry
	vm       *goja.Runtime
	loopID   atomic.Int64

	mu     sync.Mutex
	closed bool
}

var _ queue.StoppableLoop = (*Loop)(nil)

// NewLoop starts an event loop whose console prints to logger.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(&printer{logger: logger.With("source", "console")}))
	l := &Loop{
		loop: eventloop.NewEventLoop(
			eventloop.WithRegistry(registry),
			eventloop.EnableConsole(true),
		),
		registry: registry,
	}
	l.loop.Start()

	// Capture the loop goroutine once, for IsLoopThread.
	ready := make(chan struct{})
	l.loop.RunOnLoop(func(vm *goja.Runtime) {
		l.vm = vm
		l.loopID.Store(goroutineid.Get())
		close(ready)
	})
	<-ready
	return l
}

// Post implements queue.MainLoop. It fails after Stop.
func (l *Loop) Post(task func()) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed || !l.loop.RunOnLoop(func(*goja.Runtime) { task() }) {
		return fault.Soft("scripting.post", fault.ErrQueueClosed)
	}
	return nil
}

// IsLoopThread implements queue.MainLoop.
func (l *Loop) IsLoopThread() bool {
	id := l.loopID.Load()
	return id != 0 && id == goroutineid.Get()
}

// Stop rejects further posts and terminates the loop, cancelling its
// timers. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	if l.IsLoopThread() {
		// Terminate waits for the loop, which is the caller.
		go l.loop.Terminate()
		return
	}
	l.loop.Terminate()
}

// printer routes console output to slog.
type printer struct {
	logger *slog.Logger
}

func (p *printer) Log(s string)   { p.logger.Info(s) }
func (p *printer) Warn(s string)  { p.logger.Warn(s) }
func (p *printer) Error(s string) { p.logger.Error(s) }
