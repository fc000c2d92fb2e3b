package module

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/queue"
)

type entryState int

const (
	stateUnbuilt entryState = iota
	stateBuilding
	stateLive
	stateUnavailable
)

type entry struct {
	desc     Descriptor
	state    entryState
	instance any
	err      error
	cycle    bool
}

// Options configures a Registry.
type Options struct {
	BridgeID string
	Logger   *slog.Logger
	Reporter fault.Reporter
}

// Registry maps module names to lazily constructed instances. It is
// confined to a single TaskQueue, normally NativeDispatch.
type Registry struct {
	queue    *queue.TaskQueue
	logger   *slog.Logger
	reporter fault.Reporter
	bridgeID string

	names   []string
	eager   []string
	entries map[string]*entry

	invalidated bool
}

// NewRegistry validates descriptors and returns a registry confined to q.
// Names must be unique and non-empty, and every descriptor needs a factory.
func NewRegistry(q *queue.TaskQueue, descriptors []Descriptor, opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = fault.NewLogReporter(logger, fault.DefaultRates)
	}
	r := &Registry{
		queue:    q,
		logger:   logger,
		reporter: reporter,
		bridgeID: opts.BridgeID,
		entries:  make(map[string]*entry, len(descriptors)),
	}
	for _, d := range descriptors {
		switch {
		case d.Name == "":
			return nil, fault.Soft("registry.create", errors.New("module name required"))
		case d.Factory == nil:
			return nil, &fault.Error{Op: "registry.create", Module: d.Name, Err: errors.New("module factory required")}
		case r.entries[d.Name] != nil:
			return nil, &fault.Error{Op: "registry.create", Module: d.Name, Err: errors.New("duplicate module name")}
		}
		r.entries[d.Name] = &entry{desc: d}
		r.names = append(r.names, d.Name)
		if d.EagerInit {
			r.eager = append(r.eager, d.Name)
		}
	}
	return r, nil
}

// Queue returns the queue the registry is confined to.
func (r *Registry) Queue() *queue.TaskQueue { return r.queue }

// Names returns every registered module name in registration order. Safe
// from any goroutine.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// EagerInitNames returns the names of modules built at startup. Safe from
// any goroutine.
func (r *Registry) EagerInitNames() []string {
	return append([]string(nil), r.eager...)
}

// GetModule returns the instance for name, constructing it on first use.
// Unknown names and failed constructions are reported and returned as
// errors; a failed module is never retried. After InvalidateAll it returns
// ErrRegistryInvalidated for every name.
func (r *Registry) GetModule(name string) (any, error) {
	r.queue.AssertOnQueue("module registry access")

	if r.invalidated {
		return nil, &fault.Error{Op: "registry.get", Module: name, Err: fault.ErrRegistryInvalidated}
	}
	e := r.entries[name]
	if e == nil {
		err := &fault.Error{Op: "registry.get", Module: name, Err: fault.ErrUnknownModule}
		r.reporter.Report(err)
		return nil, err
	}

	switch e.state {
	case stateLive:
		return e.instance, nil
	case stateUnavailable:
		return nil, e.err
	case stateBuilding:
		e.cycle = true
		return nil, &fault.Error{Op: "registry.get", Module: name, Err: fault.ErrModuleCycle}
	}

	e.state = stateBuilding
	instance, err := r.construct(e)
	if err == nil && e.cycle {
		err = fault.ErrModuleCycle
	}
	if err != nil {
		e.state = stateUnavailable
		e.err = &fault.Error{Op: "registry.get", Kind: fault.KindOf(err), Module: name, Err: fmt.Errorf("%w: %w", fault.ErrModuleUnavailable, err)}
		r.reporter.Report(e.err)
		if inv, ok := instance.(Invalidator); ok {
			r.invalidate(name, inv)
		}
		return nil, e.err
	}
	e.state = stateLive
	e.instance = instance
	r.logger.Debug("module constructed", "module", name)
	return instance, nil
}

func (r *Registry) construct(e *entry) (instance any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fault.RecoveredSoft("module.factory", rec)
		}
	}()
	instance, err = e.desc.Factory(&Context{
		BridgeID: r.bridgeID,
		Logger:   r.logger.With("module", e.desc.Name),
		Reporter: r.reporter,
		Registry: r,
	})
	if err == nil && instance == nil {
		err = errors.New("factory returned nil module")
	}
	return instance, err
}

// HasModule reports whether name has been constructed. It never constructs.
func (r *Registry) HasModule(name string) bool {
	r.queue.AssertOnQueue("module registry access")
	if r.invalidated {
		return false
	}
	e := r.entries[name]
	return e != nil && e.state == stateLive
}

// InitEager constructs every eager module, returning the joined
// construction errors.
func (r *Registry) InitEager() error {
	r.queue.AssertOnQueue("module registry access")
	var errs []error
	for _, name := range r.eager {
		if _, err := r.GetModule(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateAll tears down every constructed module exactly once and makes
// the registry terminal. Later calls do nothing.
func (r *Registry) InvalidateAll() {
	r.queue.AssertOnQueue("module registry access")
	if r.invalidated {
		return
	}
	r.invalidated = true
	for _, name := range r.names {
		e := r.entries[name]
		if e.state != stateLive {
			continue
		}
		if inv, ok := e.instance.(Invalidator); ok {
			r.invalidate(name, inv)
		}
		e.instance = nil
	}
	r.logger.Debug("module registry invalidated")
}

func (r *Registry) invalidate(name string, inv Invalidator) {
	defer func() {
		if rec := recover(); rec != nil {
			err := fault.RecoveredSoft("module.invalidate", rec)
			var fe *fault.Error
			if errors.As(err, &fe) && fe.Module == "" {
				fe.Module = name
			}
			r.reporter.Report(err)
		}
	}()
	inv.Invalidate()
}

// Invoke calls method on the named module, constructing it if needed.
func (r *Registry) Invoke(name, method string, args []any) (any, error) {
	instance, err := r.GetModule(name)
	if err != nil {
		return nil, err
	}
	var fn Method
	if p, ok := instance.(MethodProvider); ok {
		fn = p.Methods()[method]
	}
	if fn == nil {
		err := &fault.Error{Op: "registry.invoke", Module: name, Err: fmt.Errorf("%w: %q", fault.ErrUnknownMethod, method)}
		r.reporter.Report(err)
		return nil, err
	}
	return r.call(name, method, fn, args)
}

// call runs a module method. A panic fails only this call.
func (r *Registry) call(name, method string, fn Method, args []any) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			cause := fault.RecoveredSoft("module.method", rec)
			err = &fault.Error{Op: "registry.invoke", Kind: fault.KindOf(cause), Module: name, Err: fmt.Errorf("%s: %w", method, cause)}
			r.reporter.Report(err)
		}
	}()
	return fn(args)
}

// Lookup is GetModule from any goroutine.
func (r *Registry) Lookup(name string) *queue.Future[any] {
	return queue.Call(r.queue, func() (any, error) {
		return r.GetModule(name)
	})
}

// InvokeAsync is Invoke from any goroutine.
func (r *Registry) InvokeAsync(name, method string, args []any) *queue.Future[any] {
	return queue.Call(r.queue, func() (any, error) {
		return r.Invoke(name, method, args)
	})
}
