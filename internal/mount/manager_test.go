package mount_test

import (
	"slices"
	"testing"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/mount"
	"github.com/joeycumines/nativebridge/internal/queue"
	"github.com/joeycumines/nativebridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	tag      int
	props    mount.Props
	released int
}

func (v *fakeView) SetProps(p mount.Props) {
	if v.props == nil {
		v.props = mount.Props{}
	}
	for k, val := range p {
		if k == "explode" {
			panic("setter failed")
		}
		v.props[k] = val
	}
}

func (v *fakeView) Release() { v.released++ }

func (v *fakeView) Measure() mount.Size { return mount.Size{Width: v.tag, Height: 1} }

type fakeContainer struct {
	fakeView
	children []mount.View
}

func (c *fakeContainer) InsertChild(child mount.View, index int) {
	c.children = slices.Insert(c.children, index, child)
}

func (c *fakeContainer) RemoveChild(child mount.View) {
	if i := slices.Index(c.children, child); i >= 0 {
		c.children = slices.Delete(c.children, i, i+1)
	}
}

type harness struct {
	ui    *queue.TaskQueue
	m     *mount.Manager
	rec   *fault.Recorder
	views map[int]mount.View
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	qs, _, rec := testutil.StartQueueSet(t)
	h := &harness{ui: qs.UI, rec: rec, views: map[int]mount.View{}}
	h.m = mount.NewManager(mount.Options{
		UI:       qs.UI,
		Reporter: rec,
		Factory: mount.FactoryMap{
			"box": func(tag int) mount.View {
				v := &fakeContainer{fakeView: fakeView{tag: tag}}
				h.views[tag] = v
				return v
			},
			"text": func(tag int) mount.View {
				v := &fakeView{tag: tag}
				h.views[tag] = v
				return v
			},
		},
	})
	return h
}

func (h *harness) onUI(t *testing.T, fn func()) {
	t.Helper()
	_, err := queue.Run(h.ui, func() error { fn(); return nil }).GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
}

func (h *harness) start(t *testing.T, id, root int) *fakeContainer {
	t.Helper()
	v := &fakeContainer{fakeView: fakeView{tag: root}}
	h.onUI(t, func() { assert.NoError(t, h.m.StartSurface(id, root, v)) })
	return v
}

func (h *harness) exec(t *testing.T, items ...mount.Item) []error {
	t.Helper()
	var errs []error
	h.onUI(t, func() { errs = h.m.ExecuteItems(items) })
	return errs
}

func TestManager_MountOrdering(t *testing.T) {
	h := newHarness(t)
	root := h.start(t, 1, 100)

	errs := h.exec(t,
		mount.Create{Surface: 1, Tag: 1, ViewType: "text", Props: mount.Props{"text": "hi"}},
		mount.Insert{Surface: 1, Parent: 100, Child: 1, Index: 0},
		mount.Update{Surface: 1, Tag: 1, Props: mount.Props{"x": 5}},
		mount.Delete{Surface: 1, Tag: 1},
	)
	assert.Empty(t, errs)
	h.onUI(t, func() {
		_, ok := h.m.ViewAt(1)
		assert.False(t, ok)
		assert.Empty(t, h.m.ChildrenOf(100))
	})
	assert.Empty(t, root.children)
	v := h.views[1].(*fakeView)
	assert.Equal(t, mount.Props{"text": "hi", "x": 5}, v.props)
	assert.Equal(t, 1, v.released)
	assert.Empty(t, h.rec.Reports())
}

func TestManager_UpdateBeforeCreateReportsAndContinues(t *testing.T) {
	h := newHarness(t)
	h.start(t, 1, 100)

	errs := h.exec(t,
		mount.Update{Surface: 1, Tag: 1, Props: mount.Props{"x": 5}},
		mount.Create{Surface: 1, Tag: 1, ViewType: "text"},
		mount.Insert{Surface: 1, Parent: 100, Child: 1, Index: 0},
		mount.Delete{Surface: 1, Tag: 1},
	)
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], fault.ErrUnknownTag)
	assert.Equal(t, fault.KindSoft, fault.KindOf(errs[0]))
	assert.Len(t, h.rec.Matching(fault.ErrUnknownTag), 1)
	h.onUI(t, func() {
		_, ok := h.m.ViewAt(1)
		assert.False(t, ok)
	})
	assert.Equal(t, 1, h.views[1].(*fakeView).released)
}

func TestManager_SurfaceIsolation(t *testing.T) {
	h := newHarness(t)
	rootA := h.start(t, 1, 100)
	rootB := h.start(t, 2, 200)

	errs := h.exec(t,
		mount.Create{Surface: 1, Tag: 1, ViewType: "text"},
		mount.Create{Surface: 2, Tag: 2, ViewType: "text"},
		mount.Create{Surface: 2, Tag: 3, ViewType: "text"},
		mount.Insert{Surface: 1, Parent: 100, Child: 1, Index: 0},
		mount.Insert{Surface: 2, Parent: 200, Child: 3, Index: 0},
		mount.Create{Surface: 1, Tag: 4, ViewType: "text"},
		mount.Insert{Surface: 2, Parent: 200, Child: 2, Index: 0},
		mount.Insert{Surface: 1, Parent: 100, Child: 4, Index: 1},
	)
	require.Empty(t, errs)
	h.onUI(t, func() {
		assert.Equal(t, []int{1, 4}, h.m.ChildrenOf(100))
		assert.Equal(t, []int{2, 3}, h.m.ChildrenOf(200))
		id, ok := h.m.SurfaceOf(3)
		assert.True(t, ok)
		assert.Equal(t, 2, id)
	})
	assert.Equal(t, []mount.View{h.views[1], h.views[4]}, rootA.children)
	assert.Equal(t, []mount.View{h.views[2], h.views[3]}, rootB.children)

	// a tag is only visible through its own surface
	errs = h.exec(t, mount.Update{Surface: 1, Tag: 2, Props: mount.Props{"x": 1}})
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], fault.ErrUnknownTag)
}

func TestManager_StartSurfaceTwice(t *testing.T) {
	h := newHarness(t)
	h.start(t, 1, 100)
	h.onUI(t, func() {
		err := h.m.StartSurface(1, 101, &fakeContainer{})
		assert.ErrorIs(t, err, fault.ErrSurfaceStarted)
		assert.Equal(t, fault.KindSoft, fault.KindOf(err))

		err = h.m.StartSurface(2, 100, &fakeContainer{})
		assert.ErrorIs(t, err, fault.ErrTagCollision)
		assert.True(t, fault.IsFatal(err))

		assert.Equal(t, mount.Started, h.m.SurfaceState(1))
		assert.Equal(t, mount.Unregistered, h.m.SurfaceState(2))
	})
	assert.Len(t, h.rec.Reports(), 2)
}

func TestManager_StopSurfaceReleasesViews(t *testing.T) {
	h := newHarness(t)
	root := h.start(t, 1, 100)
	require.Empty(t, h.exec(t,
		mount.Create{Surface: 1, Tag: 1, ViewType: "box"},
		mount.Create{Surface: 1, Tag: 2, ViewType: "text"},
		mount.Insert{Surface: 1, Parent: 100, Child: 1, Index: 0},
		mount.Insert{Surface: 1, Parent: 1, Child: 2, Index: 0},
	))
	h.onUI(t, func() {
		assert.Equal(t, 3, h.m.ViewCount(1))
		assert.NoError(t, h.m.StopSurface(1))
		assert.Equal(t, mount.Stopped, h.m.SurfaceState(1))
		assert.Empty(t, h.m.LiveSurfaces())
		_, ok := h.m.ViewAt(2)
		assert.False(t, ok)
		assert.ErrorIs(t, h.m.StopSurface(1), fault.ErrUnknownSurface)

		// the id and tags are free again
		assert.NoError(t, h.m.StartSurface(1, 100, root))
		assert.Equal(t, mount.Started, h.m.SurfaceState(1))
	})
	assert.Equal(t, 1, h.views[1].(*fakeContainer).released)
	assert.Equal(t, 1, h.views[2].(*fakeView).released)
	assert.Zero(t, root.released)

	errs := h.exec(t, mount.Create{Surface: 1, Tag: 1, ViewType: "text"})
	assert.Empty(t, errs)
}

func TestManager_ItemsForUnstartedSurface(t *testing.T) {
	h := newHarness(t)
	errs := h.exec(t, mount.Create{Surface: 9, Tag: 1, ViewType: "text"})
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], fault.ErrUnknownSurface)
}

func TestManager_CreateErrors(t *testing.T) {
	h := newHarness(t)
	h.start(t, 1, 100)
	h.start(t, 2, 200)
	errs := h.exec(t,
		mount.Create{Surface: 1, Tag: 1, ViewType: "slider"},
		mount.Create{Surface: 1, Tag: 2, ViewType: "text"},
		mount.Create{Surface: 2, Tag: 2, ViewType: "text"},
		mount.Create{Surface: 1, Tag: 0, ViewType: "text"},
		mount.Create{Surface: 1, Tag: 3, ViewType: "text", Props: mount.Props{"explode": true}},
		mount.Create{Surface: 1, Tag: 4, ViewType: "text"},
	)
	require.Len(t, errs, 4)
	require.ErrorIs(t, errs[0], fault.ErrUnknownViewType)
	require.ErrorIs(t, errs[1], fault.ErrDuplicateTag)
	require.ErrorIs(t, errs[2], fault.ErrInvalidItem)
	var pe *fault.PanicError
	require.ErrorAs(t, errs[3], &pe)
	assert.Equal(t, fault.KindSoft, fault.KindOf(errs[3]))
	h.onUI(t, func() {
		_, ok := h.m.ViewAt(4)
		assert.True(t, ok)
	})
}

func TestManager_InsertEdgeCases(t *testing.T) {
	h := newHarness(t)
	root := h.start(t, 1, 100)
	require.Empty(t, h.exec(t,
		mount.Create{Surface: 1, Tag: 1, ViewType: "box"},
		mount.Create{Surface: 1, Tag: 2, ViewType: "text"},
		mount.Create{Surface: 1, Tag: 3, ViewType: "text"},
		mount.Insert{Surface: 1, Parent: 100, Child: 1, Index: 0},
	))

	errs := h.exec(t,
		mount.Insert{Surface: 1, Parent: 1, Child: 2, Index: 7},
		mount.Insert{Surface: 1, Parent: 1, Child: 3, Index: -1},
		mount.Insert{Surface: 1, Parent: 2, Child: 3, Index: 0},
		mount.Insert{Surface: 1, Parent: 1, Child: 1, Index: 0},
		mount.Insert{Surface: 1, Parent: 1, Child: 100, Index: 0},
	)
	require.Len(t, errs, 5)
	require.ErrorIs(t, errs[0], fault.ErrIndexOutOfRange)
	require.ErrorIs(t, errs[1], fault.ErrIndexOutOfRange)
	require.ErrorIs(t, errs[2], fault.ErrNotContainer)
	require.ErrorIs(t, errs[3], fault.ErrInvalidItem)
	require.ErrorIs(t, errs[4], fault.ErrInvalidItem)

	box := h.views[1].(*fakeContainer)
	h.onUI(t, func() {
		assert.Equal(t, []int{3, 2}, h.m.ChildrenOf(1))
	})
	assert.Equal(t, []mount.View{h.views[3], h.views[2]}, box.children)

	// moving re-parents without a separate remove
	require.Empty(t, h.exec(t, mount.Insert{Surface: 1, Parent: 100, Child: 3, Index: 1}))
	h.onUI(t, func() {
		assert.Equal(t, []int{2}, h.m.ChildrenOf(1))
		assert.Equal(t, []int{1, 3}, h.m.ChildrenOf(100))
		p, ok := h.m.ParentOf(3)
		assert.True(t, ok)
		assert.Equal(t, 100, p)
	})
	assert.Equal(t, []mount.View{h.views[1], h.views[3]}, root.children)
}

func TestManager_RemoveAndDelete(t *testing.T) {
	h := newHarness(t)
	h.start(t, 1, 100)
	require.Empty(t, h.exec(t,
		mount.Create{Surface: 1, Tag: 1, ViewType: "box"},
		mount.Create{Surface: 1, Tag: 2, ViewType: "text"},
		mount.Insert{Surface: 1, Parent: 100, Child: 1, Index: 0},
		mount.Insert{Surface: 1, Parent: 1, Child: 2, Index: 0},
	))

	errs := h.exec(t,
		mount.Remove{Surface: 1, Parent: 100, Child: 2},
		mount.Delete{Surface: 1, Tag: 100},
		mount.Delete{Surface: 1, Tag: 1},
	)
	require.Len(t, errs, 2)
	require.ErrorIs(t, errs[0], fault.ErrNotChild)
	require.ErrorIs(t, errs[1], fault.ErrInvalidItem)

	h.onUI(t, func() {
		// children of a deleted view are orphaned, not deleted
		_, ok := h.m.ViewAt(2)
		assert.True(t, ok)
		_, ok = h.m.ParentOf(2)
		assert.False(t, ok)
		assert.Empty(t, h.m.ChildrenOf(100))
	})

	require.Empty(t, h.exec(t,
		mount.Insert{Surface: 1, Parent: 100, Child: 2, Index: 0},
		mount.Remove{Surface: 1, Parent: 100, Child: 2},
	))
	h.onUI(t, func() {
		_, ok := h.m.ViewAt(2)
		assert.True(t, ok)
	})
}

func TestManager_ScheduleRunsOnUI(t *testing.T) {
	h := newHarness(t)
	h.start(t, 1, 100)
	require.NoError(t, h.m.Schedule([]mount.Item{mount.Create{Surface: 1, Tag: 1, ViewType: "text"}}))
	require.NoError(t, h.m.Schedule(nil))
	h.onUI(t, func() {
		typ, ok := h.m.ViewType(1)
		assert.True(t, ok)
		assert.Equal(t, "text", typ)
	})
}

func TestManager_Measure(t *testing.T) {
	h := newHarness(t)
	h.start(t, 1, 100)
	require.Empty(t, h.exec(t, mount.Create{Surface: 1, Tag: 7, ViewType: "text"}))
	h.onUI(t, func() {
		size, err := h.m.Measure(7)
		assert.NoError(t, err)
		assert.Equal(t, mount.Size{Width: 7, Height: 1}, size)
		_, err = h.m.Measure(8)
		assert.ErrorIs(t, err, fault.ErrUnknownTag)
	})
}

func TestManager_OffQueuePanics(t *testing.T) {
	h := newHarness(t)
	assert.Panics(t, func() { h.m.ExecuteItems(nil) })
}
