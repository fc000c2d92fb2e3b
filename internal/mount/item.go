// Package mount applies tree-mutation instructions to per-surface native
// view trees on the UI queue.
//
// Each surface owns an arena of views keyed by tag. Relationships are
// stored as tags, never as pointers between nodes; the native views mirror
// the arena through the Container interface.
package mount

import (
	"fmt"
	"maps"
)

// Props is a set of view properties, or a delta to merge onto them.
type Props map[string]any

// Clone returns a shallow copy of p.
func (p Props) Clone() Props {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

// Item is a single mount instruction. The concrete types are Create, Update,
// Insert, Remove and Delete.
type Item interface {
	SurfaceID() int
	fmt.Stringer
	isItem()
}

// Create instantiates a view of ViewType under Tag and applies Props.
type Create struct {
	Surface  int
	Tag      int
	ViewType string
	Props    Props
}

// Update merges Props onto an existing view.
type Update struct {
	Surface int
	Tag     int
	Props   Props
}

// Insert attaches Child to Parent at Index. A child that already has a
// parent is moved.
type Insert struct {
	Surface int
	Parent  int
	Child   int
	Index   int
}

// Remove detaches Child from Parent. The child stays registered.
type Remove struct {
	Surface int
	Parent  int
	Child   int
}

// Delete detaches and releases a view.
type Delete struct {
	Surface int
	Tag     int
}

func (i Create) SurfaceID() int { return i.Surface }
func (i Update) SurfaceID() int { return i.Surface }
func (i Insert) SurfaceID() int { return i.Surface }
func (i Remove) SurfaceID() int { return i.Surface }
func (i Delete) SurfaceID() int { return i.Surface }

func (Create) isItem() {}
func (Update) isItem() {}
func (Insert) isItem() {}
func (Remove) isItem() {}
func (Delete) isItem() {}

func (i Create) String() string {
	return fmt.Sprintf("create(%d:%d %s)", i.Surface, i.Tag, i.ViewType)
}

func (i Update) String() string {
	return fmt.Sprintf("update(%d:%d)", i.Surface, i.Tag)
}

func (i Insert) String() string {
	return fmt.Sprintf("insert(%d:%d<-%d@%d)", i.Surface, i.Parent, i.Child, i.Index)
}

func (i Remove) String() string {
	return fmt.Sprintf("remove(%d:%d<-%d)", i.Surface, i.Parent, i.Child)
}

func (i Delete) String() string {
	return fmt.Sprintf("delete(%d:%d)", i.Surface, i.Tag)
}
