package mount

import (
	"fmt"

	"github.com/joeycumines/nativebridge/internal/fault"
)

// View is a native view instance.
type View interface {
	// SetProps merges a property delta onto the view.
	SetProps(props Props)
}

// Container is a View that holds child views.
type Container interface {
	View
	InsertChild(child View, index int)
	RemoveChild(child View)
}

// Releaser is implemented by views holding native resources.
type Releaser interface {
	Release()
}

// Size is a measured view size, in host units.
type Size struct {
	Width, Height int
}

// Measurer is implemented by views that can report their size.
type Measurer interface {
	Measure() Size
}

// ViewFactory constructs native views by type name.
type ViewFactory interface {
	CreateView(viewType string, tag int) (View, error)
}

// FactoryMap is a ViewFactory backed by a fixed table.
type FactoryMap map[string]func(tag int) View

// CreateView implements ViewFactory.
func (m FactoryMap) CreateView(viewType string, tag int) (View, error) {
	fn := m[viewType]
	if fn == nil {
		return nil, fmt.Errorf("%w: %q", fault.ErrUnknownViewType, viewType)
	}
	return fn(tag), nil
}
