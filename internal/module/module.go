// Package module implements the bridge's table of named native capabilities.
//
// Modules are declared up front as Descriptors and constructed lazily, at
// most once each, on the queue the Registry is confined to. Everything that
// touches the table runs on that queue; callers elsewhere use Lookup and
// InvokeAsync, which hop onto it and return a Future.
package module

import (
	"log/slog"

	"github.com/joeycumines/nativebridge/internal/fault"
)

// Context is handed to every Factory.
type Context struct {
	// BridgeID identifies the owning bridge instance.
	BridgeID string
	// Logger is scoped to the module being built.
	Logger *slog.Logger
	// Reporter receives errors the module wants to surface.
	Reporter fault.Reporter
	// Registry allows a module to depend on other modules. It may only be
	// used from within the factory or from the registry's queue.
	Registry *Registry
}

// Factory constructs a module instance.
type Factory func(ctx *Context) (any, error)

// Descriptor declares a module.
type Descriptor struct {
	Name string
	// EagerInit modules are built when the bridge starts rather than on
	// first use.
	EagerInit bool
	Factory   Factory
}

// Invalidator is implemented by modules that hold resources needing
// teardown. Invalidate is called at most once, on the registry's queue.
type Invalidator interface {
	Invalidate()
}

// Method is a callable exposed by a module.
type Method func(args []any) (any, error)

// MethodProvider is implemented by modules that can be invoked by name, e.g.
// from script.
type MethodProvider interface {
	Methods() map[string]Method
}
