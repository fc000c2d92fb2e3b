// Package scripting is the goja engine behind a bridge. The runtime lives on
// a goja_nodejs event loop, and the bridge's Scripting queue runs on that
// loop: every touch of the goja.Runtime, including promise settlement and
// timer callbacks, happens on the loop goroutine. The loop provides the
// setTimeout, setInterval and setImmediate globals.
//
// Scripts reach the bridge through CommonJS modules:
//
//	const bridge = require("bridge");
//	const clipboard = require("native:clipboard");
//
//	bridge.onEvents(batch => { ... });
//	bridge.mount([{op: "create", surface: 1, tag: 2, type: "text", props: {text: "hi"}}]);
//	clipboard.write("copied").then(() => console.log("done"));
package scripting

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/joeycumines/nativebridge/internal/bridge"
	"github.com/joeycumines/nativebridge/internal/event"
	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/queue"
)

const (
	// ModuleName is the require() name of the core bridge API.
	ModuleName = "bridge"
	// NativePrefix prefixes the require() name of each registered module.
	NativePrefix = "native:"
	// DefaultCallTimeout bounds bridge.callSync.
	DefaultCallTimeout = time.Second
)

// ErrNotAttached is returned by RunScript before the engine is attached.
var ErrNotAttached = errors.New("scripting: engine not attached")

// ErrForeignLoop is returned by Attach when the Scripting queue does not run
// on the engine's Loop.
var ErrForeignLoop = errors.New("scripting: scripting queue is not on the engine loop")

// Options configures an Engine.
type Options struct {
	Logger *slog.Logger
	// CallTimeout bounds bridge.callSync. Defaults to DefaultCallTimeout.
	CallTimeout time.Duration
}

// Engine implements bridge.Engine on a goja runtime.
type Engine struct {
	logger      *slog.Logger
	callTimeout time.Duration

	// mu guards host, which is written once by Attach, and loop.
	mu   sync.Mutex
	host bridge.Host
	loop *Loop

	// Owned by the Scripting queue.
	vm        *goja.Runtime
	listeners []*listener
	closed    bool
}

type listener struct {
	fn goja.Callable
}

var _ bridge.LoopEngine = (*Engine)(nil)

// New returns an unattached Engine. Pass it as bridge.Options.Engine; the
// bridge then runs its Scripting queue on the engine's Loop.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Engine{
		logger:      logger.With("component", "scripting"),
		callTimeout: timeout,
	}
}

// ScriptingLoop implements bridge.LoopEngine. The loop starts on first use.
func (e *Engine) ScriptingLoop() queue.StoppableLoop {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.loop == nil {
		e.loop = NewLoop(e.logger)
	}
	return e.loop
}

// Attach implements bridge.Engine. It registers the bridge module plus one
// native:<name> module per registered module on the loop's runtime.
func (e *Engine) Attach(host bridge.Host) error {
	host.Scripting().AssertOnQueue("scripting.attach")
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.host != nil {
		return errors.New("scripting: engine already attached")
	}
	if e.loop == nil || !e.loop.IsLoopThread() {
		return ErrForeignLoop
	}

	e.loop.registry.RegisterNativeModule(ModuleName, e.loadBridge)
	for _, name := range host.ModuleNames() {
		e.loop.registry.RegisterNativeModule(NativePrefix+name, e.loadNative(name))
	}

	e.host = host
	e.vm = e.loop.vm
	e.logger = e.logger.With("bridge", host.ID())
	e.logger.Debug("engine attached", "modules", host.ModuleNames())
	return nil
}

func (e *Engine) attached() bridge.Host {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.host
}

// RunScript evaluates src on the Scripting queue. The future fails with the
// script's exception, if any.
func (e *Engine) RunScript(name, src string) *queue.Future[struct{}] {
	host := e.attached()
	if host == nil {
		return queue.Failed[struct{}](ErrNotAttached)
	}
	return queue.Run(host.Scripting(), func() error {
		_, err := e.run(name, src)
		return err
	})
}

// Evaluate is RunScript returning the exported completion value.
func (e *Engine) Evaluate(name, src string) *queue.Future[any] {
	host := e.attached()
	if host == nil {
		return queue.Failed[any](ErrNotAttached)
	}
	return queue.Call(host.Scripting(), func() (any, error) {
		v, err := e.run(name, src)
		if err != nil || v == nil {
			return nil, err
		}
		return v.Export(), nil
	})
}

func (e *Engine) run(name, src string) (goja.Value, error) {
	if e.closed {
		return nil, fmt.Errorf("scripting: run %s: %w", name, fault.ErrBridgeDestroyed)
	}
	v, err := e.vm.RunScript(name, src)
	if err != nil {
		return nil, fmt.Errorf("scripting: run %s: %w", name, err)
	}
	return v, nil
}

// ReceiveEvents implements bridge.Engine. Each listener gets the batch as
// an array; an exception from one listener is reported and the rest still
// run.
func (e *Engine) ReceiveEvents(batch []event.Event) {
	if e.closed || e.vm == nil || len(e.listeners) == 0 {
		return
	}
	values := make([]any, len(batch))
	for i, ev := range batch {
		values[i] = e.eventObject(ev)
	}
	arr := e.vm.NewArray(values...)
	for _, l := range append([]*listener(nil), e.listeners...) {
		if _, err := l.fn(goja.Undefined(), arr); err != nil {
			e.host.Reporter().Report(&fault.Error{Op: "scripting.listener", Kind: fault.KindSoft, Err: err, Queue: e.host.Scripting().Name()})
		}
	}
}

// Close implements bridge.Engine. Outstanding promises are never settled;
// pending timers are cancelled when the bridge stops the loop.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	e.listeners = nil
	if e.vm != nil {
		e.vm.Interrupt(fault.ErrBridgeDestroyed)
	}
	e.logger.Debug("engine closed")
	return nil
}

func (e *Engine) eventObject(ev event.Event) *goja.Object {
	obj := e.vm.NewObject()
	_ = obj.Set("surface", ev.Surface)
	_ = obj.Set("target", ev.Target)
	_ = obj.Set("name", ev.Name)
	_ = obj.Set("timestamp", ev.Timestamp.UnixMilli())
	if ev.Payload != nil {
		_ = obj.Set("payload", ev.Payload)
	}
	return obj
}
