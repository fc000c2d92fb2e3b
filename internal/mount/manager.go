package mount

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/queue"
)

// SurfaceState is a surface's lifecycle position.
type SurfaceState int

const (
	Unregistered SurfaceState = iota
	Started
	Stopped
)

func (s SurfaceState) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type node struct {
	tag      int
	viewType string
	view     View
	parent   int
	children []int
}

type surface struct {
	id    int
	root  int
	nodes map[int]*node
}

// Options configures a Manager.
type Options struct {
	UI      *queue.TaskQueue
	Factory ViewFactory
	// Executor runs a closure on the UI queue once a batch is assembled.
	// Defaults to UI.Submit.
	Executor func(run func()) error
	Logger   *slog.Logger
	Reporter fault.Reporter
}

// Manager owns every surface of one bridge. Tags are unique across all of
// its live surfaces. Everything except Schedule must run on the UI queue.
type Manager struct {
	ui       *queue.TaskQueue
	factory  ViewFactory
	executor func(run func()) error
	logger   *slog.Logger
	reporter fault.Reporter

	surfaces map[int]*surface
	stopped  map[int]struct{}
	owner    map[int]int
}

// NewManager returns a Manager with no surfaces.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = fault.NewLogReporter(logger, fault.DefaultRates)
	}
	factory := opts.Factory
	if factory == nil {
		factory = FactoryMap{}
	}
	m := &Manager{
		ui:       opts.UI,
		factory:  factory,
		executor: opts.Executor,
		logger:   logger,
		reporter: reporter,
		surfaces: make(map[int]*surface),
		stopped:  make(map[int]struct{}),
		owner:    make(map[int]int),
	}
	if m.executor == nil {
		m.executor = func(run func()) error { return m.ui.Submit(run) }
	}
	return m
}

// StartSurface registers root under rootTag as surface id. Starting a live
// surface again is a soft ErrSurfaceStarted; a root tag already owned by
// another live surface is a fatal ErrTagCollision. Both are reported.
func (m *Manager) StartSurface(id, rootTag int, root View) error {
	m.ui.AssertOnQueue("surface start")
	var err error
	switch {
	case rootTag <= 0 || root == nil:
		err = &fault.Error{Op: "mount.start", Surface: id, Tag: rootTag, Err: fmt.Errorf("%w: root requires a positive tag and a view", fault.ErrInvalidItem)}
	case m.surfaces[id] != nil:
		err = &fault.Error{Op: "mount.start", Surface: id, Tag: rootTag, Err: fault.ErrSurfaceStarted}
	default:
		if other, ok := m.owner[rootTag]; ok {
			err = &fault.Error{Op: "mount.start", Kind: fault.KindFatal, Surface: id, Tag: rootTag, Err: fmt.Errorf("%w: owned by surface %d", fault.ErrTagCollision, other)}
		}
	}
	if err != nil {
		m.reporter.Report(err)
		return err
	}

	s := &surface{id: id, root: rootTag, nodes: make(map[int]*node)}
	s.nodes[rootTag] = &node{tag: rootTag, viewType: "root", view: root}
	m.surfaces[id] = s
	m.owner[rootTag] = id
	delete(m.stopped, id)
	m.logger.Debug("surface started", "surface", id, "root", rootTag)
	return nil
}

// StopSurface releases every view registered under the surface and forgets
// it. The root view itself belongs to the host and is not released.
func (m *Manager) StopSurface(id int) error {
	m.ui.AssertOnQueue("surface stop")
	s := m.surfaces[id]
	if s == nil {
		err := &fault.Error{Op: "mount.stop", Surface: id, Err: fault.ErrUnknownSurface}
		m.reporter.Report(err)
		return err
	}
	for tag, n := range s.nodes {
		delete(m.owner, tag)
		if tag != s.root {
			m.release(s, n)
		}
	}
	delete(m.surfaces, id)
	m.stopped[id] = struct{}{}
	m.logger.Debug("surface stopped", "surface", id)
	return nil
}

// StopAll stops every live surface.
func (m *Manager) StopAll() {
	for _, id := range m.LiveSurfaces() {
		_ = m.StopSurface(id)
	}
}

// Schedule hands items to the executor, so they are applied on the UI queue
// once the current batch has been assembled.
func (m *Manager) Schedule(items []Item) error {
	if len(items) == 0 {
		return nil
	}
	batch := slices.Clone(items)
	return m.executor(func() { m.ExecuteItems(batch) })
}

// ExecuteItems applies items strictly in order. A failing item is reported
// and skipped; the rest of the batch is still applied. The returned slice
// holds every reported error.
func (m *Manager) ExecuteItems(items []Item) []error {
	m.ui.AssertOnQueue("mount execute")
	var errs []error
	for _, item := range items {
		if err := m.apply(item); err != nil {
			m.reporter.Report(err)
			errs = append(errs, err)
		}
	}
	return errs
}

func (m *Manager) apply(item Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &fault.Error{Op: "mount.apply", Surface: item.SurfaceID(), Err: fmt.Errorf("%v: %w", item, fault.Recovered("mount.view", r))}
		}
	}()
	switch it := item.(type) {
	case Create:
		return m.create(it)
	case Update:
		return m.update(it)
	case Insert:
		return m.insert(it)
	case Remove:
		return m.remove(it)
	case Delete:
		return m.delete(it)
	default:
		return &fault.Error{Op: "mount.apply", Err: fmt.Errorf("%w: %T", fault.ErrInvalidItem, item)}
	}
}

func (m *Manager) itemError(item Item, tag int, err error) error {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Op == "mount.apply" {
		return err
	}
	return &fault.Error{Op: "mount.apply", Kind: fault.KindOf(err), Surface: item.SurfaceID(), Tag: tag, Err: fmt.Errorf("%v: %w", item, err)}
}

func (m *Manager) lookup(item Item, tag int) (*surface, *node, error) {
	s := m.surfaces[item.SurfaceID()]
	if s == nil {
		return nil, nil, m.itemError(item, tag, fault.ErrUnknownSurface)
	}
	n := s.nodes[tag]
	if n == nil {
		return s, nil, m.itemError(item, tag, fault.ErrUnknownTag)
	}
	return s, n, nil
}

func (m *Manager) create(it Create) error {
	s := m.surfaces[it.Surface]
	switch {
	case s == nil:
		return m.itemError(it, it.Tag, fault.ErrUnknownSurface)
	case it.Tag <= 0:
		return m.itemError(it, it.Tag, fault.ErrInvalidItem)
	}
	if owner, ok := m.owner[it.Tag]; ok {
		return m.itemError(it, it.Tag, fmt.Errorf("%w: owned by surface %d", fault.ErrDuplicateTag, owner))
	}
	view, err := m.factory.CreateView(it.ViewType, it.Tag)
	if err != nil {
		return m.itemError(it, it.Tag, err)
	}
	if view == nil {
		return m.itemError(it, it.Tag, fmt.Errorf("%w: factory returned nil view", fault.ErrUnknownViewType))
	}
	s.nodes[it.Tag] = &node{tag: it.Tag, viewType: it.ViewType, view: view}
	m.owner[it.Tag] = it.Surface
	if len(it.Props) != 0 {
		view.SetProps(it.Props.Clone())
	}
	return nil
}

func (m *Manager) update(it Update) error {
	_, n, err := m.lookup(it, it.Tag)
	if err != nil {
		return err
	}
	if len(it.Props) != 0 {
		n.view.SetProps(it.Props.Clone())
	}
	return nil
}

func (m *Manager) insert(it Insert) error {
	s, parent, err := m.lookup(it, it.Parent)
	if err != nil {
		return err
	}
	_, child, err := m.lookup(it, it.Child)
	if err != nil {
		return err
	}
	container, ok := parent.view.(Container)
	if !ok {
		return m.itemError(it, it.Parent, fault.ErrNotContainer)
	}
	if child.tag == s.root || m.isAncestor(s, child.tag, parent.tag) {
		return m.itemError(it, it.Child, fmt.Errorf("%w: insert would create a cycle", fault.ErrInvalidItem))
	}

	if child.parent != 0 {
		m.detach(s, child)
	}

	index := it.Index
	var clamped error
	if index < 0 || index > len(parent.children) {
		clamped = m.itemError(it, it.Child, fmt.Errorf("%w: index %d, %d children", fault.ErrIndexOutOfRange, it.Index, len(parent.children)))
		index = max(0, min(index, len(parent.children)))
	}
	parent.children = slices.Insert(parent.children, index, child.tag)
	child.parent = parent.tag
	container.InsertChild(child.view, index)
	return clamped
}

// isAncestor reports whether tag is an ancestor of (or equal to) of.
func (m *Manager) isAncestor(s *surface, tag, of int) bool {
	for cur := of; cur != 0; {
		if cur == tag {
			return true
		}
		n := s.nodes[cur]
		if n == nil {
			return false
		}
		cur = n.parent
	}
	return false
}

func (m *Manager) remove(it Remove) error {
	s, parent, err := m.lookup(it, it.Parent)
	if err != nil {
		return err
	}
	_, child, err := m.lookup(it, it.Child)
	if err != nil {
		return err
	}
	if child.parent != parent.tag {
		return m.itemError(it, it.Child, fault.ErrNotChild)
	}
	m.detach(s, child)
	return nil
}

func (m *Manager) delete(it Delete) error {
	s, n, err := m.lookup(it, it.Tag)
	if err != nil {
		return err
	}
	if n.tag == s.root {
		return m.itemError(it, it.Tag, fmt.Errorf("%w: cannot delete a surface root", fault.ErrInvalidItem))
	}
	if n.parent != 0 {
		m.detach(s, n)
	}
	for _, c := range n.children {
		if child := s.nodes[c]; child != nil {
			child.parent = 0
		}
	}
	n.children = nil
	delete(s.nodes, n.tag)
	delete(m.owner, n.tag)
	m.release(s, n)
	return nil
}

func (m *Manager) detach(s *surface, child *node) {
	parent := s.nodes[child.parent]
	child.parent = 0
	if parent == nil {
		return
	}
	if i := slices.Index(parent.children, child.tag); i >= 0 {
		parent.children = slices.Delete(parent.children, i, i+1)
	}
	if c, ok := parent.view.(Container); ok {
		c.RemoveChild(child.view)
	}
}

func (m *Manager) release(s *surface, n *node) {
	r, ok := n.view.(Releaser)
	if !ok {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			m.reporter.Report(&fault.Error{Op: "mount.release", Surface: s.id, Tag: n.tag, Err: fault.Recovered("mount.release", rec)})
		}
	}()
	r.Release()
}
