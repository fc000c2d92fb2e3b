package mount

import (
	"errors"
	"slices"

	"github.com/joeycumines/nativebridge/internal/fault"
)

// ErrNotMeasurable is returned by Measure for views without a size.
var ErrNotMeasurable = errors.New("view cannot be measured")

// SurfaceState returns the lifecycle state of surface id.
func (m *Manager) SurfaceState(id int) SurfaceState {
	m.ui.AssertOnQueue("surface query")
	if m.surfaces[id] != nil {
		return Started
	}
	if _, ok := m.stopped[id]; ok {
		return Stopped
	}
	return Unregistered
}

// LiveSurfaces returns the ids of every started surface, ascending.
func (m *Manager) LiveSurfaces() []int {
	m.ui.AssertOnQueue("surface query")
	ids := make([]int, 0, len(m.surfaces))
	for id := range m.surfaces {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// RootOf returns the root tag of a started surface.
func (m *Manager) RootOf(id int) (int, bool) {
	m.ui.AssertOnQueue("surface query")
	s := m.surfaces[id]
	if s == nil {
		return 0, false
	}
	return s.root, true
}

// SurfaceOf returns the live surface that owns tag.
func (m *Manager) SurfaceOf(tag int) (int, bool) {
	m.ui.AssertOnQueue("surface query")
	id, ok := m.owner[tag]
	return id, ok
}

// ViewAt returns the view registered under tag.
func (m *Manager) ViewAt(tag int) (View, bool) {
	n := m.node(tag)
	if n == nil {
		return nil, false
	}
	return n.view, true
}

// ViewType returns the type a view was created with, "root" for roots.
func (m *Manager) ViewType(tag int) (string, bool) {
	n := m.node(tag)
	if n == nil {
		return "", false
	}
	return n.viewType, true
}

// ParentOf returns the parent tag of tag, if attached.
func (m *Manager) ParentOf(tag int) (int, bool) {
	n := m.node(tag)
	if n == nil || n.parent == 0 {
		return 0, false
	}
	return n.parent, true
}

// ChildrenOf returns the child tags of tag in order.
func (m *Manager) ChildrenOf(tag int) []int {
	n := m.node(tag)
	if n == nil {
		return nil
	}
	return slices.Clone(n.children)
}

// ViewCount returns the number of views registered in surface id, root
// included.
func (m *Manager) ViewCount(id int) int {
	m.ui.AssertOnQueue("surface query")
	if s := m.surfaces[id]; s != nil {
		return len(s.nodes)
	}
	return 0
}

// Measure returns the size of the view under tag.
func (m *Manager) Measure(tag int) (Size, error) {
	n := m.node(tag)
	if n == nil {
		return Size{}, &fault.Error{Op: "mount.measure", Tag: tag, Err: fault.ErrUnknownTag}
	}
	ms, ok := n.view.(Measurer)
	if !ok {
		return Size{}, &fault.Error{Op: "mount.measure", Tag: tag, Err: ErrNotMeasurable}
	}
	return ms.Measure(), nil
}

func (m *Manager) node(tag int) *node {
	m.ui.AssertOnQueue("view query")
	id, ok := m.owner[tag]
	if !ok {
		return nil
	}
	return m.surfaces[id].nodes[tag]
}
