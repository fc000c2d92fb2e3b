package scripting

import (
	"fmt"
	"slices"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/mount"
)

// loadBridge is the require.ModuleLoader for "bridge".
//
// The API surface:
//   - id: the bridge instance id
//   - mount(items): submit mount items, see decodeItem for the shape
//   - onEvents(fn): receive each flushed event batch; returns an unsubscribe function
//   - call(module, method, ...args): Promise of the module call result
//   - callSync(module, method, ...args): blocking call, bounded by the call timeout
//   - modules(): registered module names
//   - setTimeout(fn, ms, ...args): the loop's setTimeout, reporting exceptions thrown by fn
//   - clearTimeout(timer): the loop's clearTimeout
func (e *Engine) loadBridge(vm *goja.Runtime, module *goja.Object) {
	exports := module.Get("exports").(*goja.Object)
	_ = exports.Set("id", e.host.ID())
	_ = exports.Set("mount", e.jsMount)
	_ = exports.Set("onEvents", e.jsOnEvents)
	_ = exports.Set("call", func(call goja.FunctionCall) goja.Value {
		name, method := e.target(call, "call")
		return e.invoke(name, method, exportArgs(call.Arguments[2:]))
	})
	_ = exports.Set("callSync", func(call goja.FunctionCall) goja.Value {
		name, method := e.target(call, "callSync")
		return e.invokeSync(name, method, exportArgs(call.Arguments[2:]))
	})
	_ = exports.Set("modules", func(goja.FunctionCall) goja.Value {
		names := e.host.ModuleNames()
		values := make([]any, len(names))
		for i, n := range names {
			values[i] = n
		}
		return vm.NewArray(values...)
	})
	_ = exports.Set("setTimeout", e.jsSetTimeout)
	_ = exports.Set("clearTimeout", vm.Get("clearTimeout"))
}

// loadNative returns the loader for "native:<name>". Every property of the
// exported object is a function calling that method asynchronously.
func (e *Engine) loadNative(name string) require.ModuleLoader {
	return func(vm *goja.Runtime, module *goja.Object) {
		_ = module.Set("exports", vm.NewDynamicObject(&nativeProxy{engine: e, module: name}))
	}
}

type nativeProxy struct {
	engine  *Engine
	module  string
	methods map[string]goja.Value
}

func (p *nativeProxy) Get(key string) goja.Value {
	// Not thenable, so the module object can be passed to resolve().
	if key == "then" {
		return nil
	}
	if fn, ok := p.methods[key]; ok {
		return fn
	}
	fn := p.engine.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		return p.engine.invoke(p.module, key, exportArgs(call.Arguments))
	})
	if p.methods == nil {
		p.methods = make(map[string]goja.Value)
	}
	p.methods[key] = fn
	return fn
}

func (p *nativeProxy) Set(string, goja.Value) bool { return false }
func (p *nativeProxy) Has(key string) bool         { return key != "then" }
func (p *nativeProxy) Delete(string) bool          { return false }
func (p *nativeProxy) Keys() []string              { return nil }

func (e *Engine) target(call goja.FunctionCall, fn string) (string, string) {
	if len(call.Arguments) < 2 {
		panic(e.vm.NewTypeError(fn + " requires a module name and a method name"))
	}
	return call.Arguments[0].String(), call.Arguments[1].String()
}

func exportArgs(values []goja.Value) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v.Export()
	}
	return args
}

// invoke returns a Promise settled on the Scripting queue once the module
// call completes.
func (e *Engine) invoke(name, method string, args []any) goja.Value {
	promise, resolve, reject := e.vm.NewPromise()
	f := e.host.InvokeModule(name, method, args)
	scripting := e.host.Scripting()
	go func() {
		<-f.Done()
		v, err := f.Get()
		if serr := scripting.Submit(func() {
			if e.closed {
				return
			}
			if err != nil {
				reject(e.vm.NewGoError(err))
				return
			}
			resolve(v)
		}); serr != nil {
			e.host.Reporter().Report(&fault.Error{Op: "scripting.settle", Kind: fault.KindSoft, Module: name, Err: serr, Queue: scripting.Name()})
		}
	}()
	return e.vm.ToValue(promise)
}

func (e *Engine) invokeSync(name, method string, args []any) goja.Value {
	v, err := e.host.InvokeModule(name, method, args).GetTimeout(e.callTimeout)
	if err != nil {
		panic(e.vm.NewGoError(err))
	}
	return e.vm.ToValue(v)
}

func (e *Engine) jsMount(call goja.FunctionCall) goja.Value {
	var raw []map[string]any
	if err := e.vm.ExportTo(call.Argument(0), &raw); err != nil {
		panic(e.vm.NewTypeError("mount requires an array of items: " + err.Error()))
	}
	items := make([]mount.Item, 0, len(raw))
	for i, r := range raw {
		item, err := decodeItem(r)
		if err != nil {
			panic(e.vm.NewTypeError(fmt.Sprintf("mount item %d: %v", i, err)))
		}
		items = append(items, item)
	}
	if err := e.host.SubmitMountItems(items); err != nil {
		panic(e.vm.NewGoError(err))
	}
	return goja.Undefined()
}

func (e *Engine) jsOnEvents(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(e.vm.NewTypeError("onEvents requires a function"))
	}
	l := &listener{fn: fn}
	e.listeners = append(e.listeners, l)
	return e.vm.ToValue(func(goja.FunctionCall) goja.Value {
		e.listeners = slices.DeleteFunc(e.listeners, func(x *listener) bool { return x == l })
		return goja.Undefined()
	})
}

// jsSetTimeout schedules fn through the loop's setTimeout, wrapped so an
// exception it throws is reported instead of dropped.
func (e *Engine) jsSetTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(e.vm.NewTypeError("setTimeout requires a function"))
	}
	setTimeout, ok := goja.AssertFunction(e.vm.Get("setTimeout"))
	if !ok {
		panic(e.vm.NewTypeError("setTimeout is not available"))
	}
	queueName := e.host.Scripting().Name()
	wrapped := e.vm.ToValue(func(inner goja.FunctionCall) goja.Value {
		if e.closed {
			return goja.Undefined()
		}
		if _, err := fn(goja.Undefined(), inner.Arguments...); err != nil {
			e.host.Reporter().Report(&fault.Error{Op: "scripting.timer", Kind: fault.KindSoft, Err: err, Queue: queueName})
		}
		return goja.Undefined()
	})
	args := append([]goja.Value{wrapped}, call.Arguments[1:]...)
	timer, err := setTimeout(goja.Undefined(), args...)
	if err != nil {
		panic(err)
	}
	return timer
}
