// Package bridge wires the queues, module registry, event dispatcher and
// mounting manager of one bridge instance, and owns its lifecycle.
//
// Multiple bridges may coexist in one process; nothing here is global.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/nativebridge/internal/event"
	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/module"
	"github.com/joeycumines/nativebridge/internal/mount"
	"github.com/joeycumines/nativebridge/internal/queue"
)

// Defaults for Options.
const (
	DefaultMeasureTimeout  = 50 * time.Millisecond
	DefaultShutdownTimeout = 5 * time.Second
)

// State is the bridge's lifecycle state.
type State int32

const (
	Running State = iota
	Paused
	Failed
	Destroyed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Failed:
		return "failed"
	case Destroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Engine is the scripting side of the bridge. Every method is called on the
// Scripting queue.
type Engine interface {
	// Attach gives the engine its Host. An error aborts bridge creation.
	Attach(host Host) error
	// ReceiveEvents delivers one flushed batch of UI events.
	ReceiveEvents(batch []event.Event)
	// Close releases the engine during Destroy.
	Close() error
}

// LoopEngine is an Engine that owns the loop its runtime is confined to.
// The bridge runs its Scripting queue on that loop and stops the loop
// during Destroy, after the queue has drained.
type LoopEngine interface {
	Engine
	ScriptingLoop() queue.StoppableLoop
}

// Host is the bridge as seen by an Engine.
type Host interface {
	ID() string
	// SubmitMountItems validates items on the NativeDispatch queue, then
	// schedules them onto the UI queue.
	SubmitMountItems(items []mount.Item) error
	// InvokeModule calls a module method on the NativeDispatch queue.
	InvokeModule(name, method string, args []any) *queue.Future[any]
	ModuleNames() []string
	Scripting() *queue.TaskQueue
	Reporter() fault.Reporter
	Logger() *slog.Logger
}

// Options configures a Bridge.
type Options struct {
	// ID defaults to a random UUID.
	ID string
	// MainLoop hosts the UI queue. Required.
	MainLoop queue.MainLoop
	Queues   queue.SetConfig
	Modules  []module.Descriptor
	Views    mount.ViewFactory
	// Executor runs mount batches on the UI queue; defaults to submitting
	// to it.
	Executor func(run func()) error
	// Engine is optional; without one, events are flushed and dropped.
	Engine Engine

	Logger *slog.Logger
	// Reporter additionally receives every reported error.
	Reporter fault.Reporter
	// ErrorRates throttles logged reports per category. Nil uses
	// fault.DefaultRates.
	ErrorRates        map[time.Duration]int
	DisableCoalescing bool
	MeasureTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

// Bridge is one running instance of the runtime core.
type Bridge struct {
	id       string
	logger   *slog.Logger
	reporter fault.Reporter

	queues     *queue.QueueSet
	registry   *module.Registry
	dispatcher *event.Dispatcher
	mounting   *mount.Manager
	engine     Engine

	measureTimeout  time.Duration
	shutdownTimeout time.Duration

	state   atomic.Int32
	mu      sync.Mutex
	failure error

	ctx        context.Context
	cancel     context.CancelFunc
	stopAfter  func() bool
	destroyed  sync.Once
	destroyErr error
}

var _ Host = (*Bridge)(nil)

// New builds and starts a bridge: queues, registry, dispatcher and mounting
// manager, then eager modules, then the engine. Cancelling ctx destroys the
// bridge.
func New(ctx context.Context, opts Options) (*Bridge, error) {
	if opts.MainLoop == nil {
		return nil, errors.New("bridge: main loop required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("bridge", id)
	rates := opts.ErrorRates
	if rates == nil {
		rates = fault.DefaultRates
	}

	b := &Bridge{
		id:              id,
		logger:          logger,
		engine:          opts.Engine,
		measureTimeout:  opts.MeasureTimeout,
		shutdownTimeout: opts.ShutdownTimeout,
	}
	if b.measureTimeout <= 0 {
		b.measureTimeout = DefaultMeasureTimeout
	}
	if b.shutdownTimeout <= 0 {
		b.shutdownTimeout = DefaultShutdownTimeout
	}
	reporters := []fault.Reporter{fault.NewLogReporter(logger, rates), fault.ReporterFunc(b.observe)}
	if opts.Reporter != nil {
		reporters = append(reporters, opts.Reporter)
	}
	b.reporter = fault.Multi(reporters...)
	b.ctx, b.cancel = context.WithCancel(context.Background())

	qcfg := opts.Queues
	if qcfg.Logger == nil {
		qcfg.Logger = logger
	}
	if le, ok := opts.Engine.(LoopEngine); ok && qcfg.ScriptingLoop == nil {
		qcfg.ScriptingLoop = le.ScriptingLoop()
	}
	var err error
	if b.queues, err = queue.NewQueueSet(qcfg, opts.MainLoop, b.reporter); err != nil {
		return nil, fmt.Errorf("bridge: %w", err)
	}
	if b.registry, err = module.NewRegistry(b.queues.NativeDispatch, opts.Modules, module.Options{
		BridgeID: id,
		Logger:   logger,
		Reporter: b.reporter,
	}); err != nil {
		b.queues.Destroy()
		return nil, fmt.Errorf("bridge: %w", err)
	}
	b.dispatcher = event.NewDispatcher(event.Options{
		UI:                b.queues.UI,
		Scripting:         b.queues.Scripting,
		Deliver:           b.deliverEvents,
		DisableCoalescing: opts.DisableCoalescing,
		Logger:            logger,
		Reporter:          b.reporter,
	})
	b.mounting = mount.NewManager(mount.Options{
		UI:       b.queues.UI,
		Factory:  opts.Views,
		Executor: opts.Executor,
		Logger:   logger,
		Reporter: b.reporter,
	})

	if _, err := queue.Run(b.queues.NativeDispatch, b.registry.InitEager).GetContext(ctx); err != nil {
		if ctx.Err() != nil {
			_ = b.Destroy()
			return nil, fmt.Errorf("bridge: %w", err)
		}
		logger.Warn("eager module initialization failed", "error", err)
	}
	if b.engine != nil {
		if _, err := queue.Run(b.queues.Scripting, func() error { return b.engine.Attach(b) }).GetContext(ctx); err != nil {
			b.engine = nil
			_ = b.Destroy()
			return nil, fmt.Errorf("bridge: attach engine: %w", err)
		}
	}

	b.stopAfter = context.AfterFunc(ctx, func() { _ = b.Destroy() })
	logger.Info("bridge started", "modules", len(opts.Modules), "eager", b.registry.EagerInitNames())
	return b, nil
}

// ID implements Host.
func (b *Bridge) ID() string { return b.id }

// Logger implements Host.
func (b *Bridge) Logger() *slog.Logger { return b.logger }

// Reporter implements Host.
func (b *Bridge) Reporter() fault.Reporter { return b.reporter }

// Scripting implements Host.
func (b *Bridge) Scripting() *queue.TaskQueue { return b.queues.Scripting }

// ModuleNames implements Host.
func (b *Bridge) ModuleNames() []string { return b.registry.Names() }

// Queues returns the bridge's queues.
func (b *Bridge) Queues() *queue.QueueSet { return b.queues }

// Registry returns the module registry, confined to NativeDispatch.
func (b *Bridge) Registry() *module.Registry { return b.registry }

// Dispatcher returns the event dispatcher, confined to the UI queue.
func (b *Bridge) Dispatcher() *event.Dispatcher { return b.dispatcher }

// Mounting returns the mounting manager, confined to the UI queue.
func (b *Bridge) Mounting() *mount.Manager { return b.mounting }

// Done is closed once Destroy has completed.
func (b *Bridge) Done() <-chan struct{} { return b.ctx.Done() }

// State returns the current lifecycle state.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Err returns the fatal error that failed the bridge, if any.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failure
}

func (b *Bridge) observe(err error) {
	if !fault.IsFatal(err) {
		return
	}
	for {
		cur := b.state.Load()
		if cur == int32(Failed) || cur == int32(Destroyed) {
			return
		}
		if b.state.CompareAndSwap(cur, int32(Failed)) {
			break
		}
	}
	b.mu.Lock()
	b.failure = err
	b.mu.Unlock()
	b.logger.Error("bridge failed", "error", err)
}

func (b *Bridge) accepting(op string) error {
	switch b.State() {
	case Failed, Destroyed:
		return fault.Soft(op, fault.ErrBridgeDestroyed)
	}
	return nil
}

func (b *Bridge) deliverEvents(batch []event.Event) {
	if b.engine == nil || b.State() == Destroyed {
		return
	}
	b.engine.ReceiveEvents(batch)
}
