// Package termhost runs a bridge inside a bubbletea program. The program's
// event loop is the bridge's UI main loop: posted tasks are drained inside
// Update, native views render with lipgloss, and terminal input becomes
// bridge events.
package termhost

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joeycumines/nativebridge/internal/bridge"
	"github.com/joeycumines/nativebridge/internal/event"
	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/goroutineid"
	"github.com/joeycumines/nativebridge/internal/mount"
	"github.com/joeycumines/nativebridge/internal/queue"
	zone "github.com/lrstanley/bubblezone"
)

// Event names produced by the host.
const (
	EventKeyPress = "keyPress"
	EventLayout   = "layout"
	EventPress    = "press"
	EventScroll   = "scroll"
)

// Coalescing keys for the host's continuous events.
const (
	LayoutCoalescingKey event.CoalescingKey = 1
	ScrollCoalescingKey event.CoalescingKey = 2
)

// wheelStep is how many lines one wheel notch scrolls.
const wheelStep = 1

// Options configures a Host.
type Options struct {
	// Input and Output default to the process terminal.
	Input     io.Reader
	Output    io.Writer
	AltScreen bool
	Mouse     bool
	Logger    *slog.Logger
}

// drainMsg asks Update to run the posted tasks.
type drainMsg struct{}

// Host is a tea.Model and the queue.MainLoop its bridge's UI queue is bound
// to. Attach the bridge before calling Run.
type Host struct {
	opts   Options
	logger *slog.Logger
	zones  *zone.Manager
	prefix string
	bridge atomic.Pointer[bridge.Bridge]
	loopID atomic.Int64

	mu          sync.Mutex
	inbox       []func()
	wakePending bool
	closed      bool
	send        func(tea.Msg)

	// Owned by the loop.
	buttons       map[int]*Button
	scrolls       map[int]*Scroll
	width, height int
}

var (
	_ tea.Model      = (*Host)(nil)
	_ queue.MainLoop = (*Host)(nil)
)

// New returns a Host with nothing attached.
func New(opts Options) *Host {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	zones := zone.New()
	return &Host{
		opts:    opts,
		logger:  logger.With("component", "termhost"),
		zones:   zones,
		prefix:  zones.NewPrefix(),
		buttons: make(map[int]*Button),
		scrolls: make(map[int]*Scroll),
	}
}

// Attach connects b, whose MainLoop must be h.
func (h *Host) Attach(b *bridge.Bridge) {
	h.bridge.Store(b)
	go func() {
		<-b.Done()
		h.Quit()
	}()
}

// Views returns the factory for box, text, button and scroll views.
func (h *Host) Views() mount.ViewFactory {
	return mount.FactoryMap{
		TypeBox:  func(int) mount.View { return new(Box) },
		TypeText: func(int) mount.View { return new(Text) },
		TypeButton: func(tag int) mount.View {
			b := &Button{tag: tag, zoneID: h.prefix + strconv.Itoa(tag), zones: h.zones, release: h.forgetButton}
			h.buttons[tag] = b
			return b
		},
		TypeScroll: func(tag int) mount.View {
			s := &Scroll{tag: tag, zoneID: h.prefix + strconv.Itoa(tag), zones: h.zones, release: h.forgetScroll}
			h.scrolls[tag] = s
			return s
		},
	}
}

func (h *Host) forgetButton(tag int) {
	delete(h.buttons, tag)
}

func (h *Host) forgetScroll(tag int) {
	delete(h.scrolls, tag)
}

// StartSurface starts surface id with a fresh root box under rootTag.
func (h *Host) StartSurface(id, rootTag int) *queue.Future[struct{}] {
	b := h.bridge.Load()
	if b == nil {
		return queue.Failed[struct{}](errors.New("termhost: no bridge attached"))
	}
	return b.StartSurface(id, rootTag, new(Box))
}

// Post implements queue.MainLoop.
func (h *Host) Post(task func()) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fault.Soft("termhost.post", fault.ErrQueueClosed)
	}
	h.inbox = append(h.inbox, task)
	send := h.send
	wake := send != nil && !h.wakePending
	if wake {
		h.wakePending = true
	}
	h.mu.Unlock()
	if wake {
		// Send blocks until the loop reads it, and the loop may be the caller.
		go send(drainMsg{})
	}
	return nil
}

// IsLoopThread implements queue.MainLoop.
func (h *Host) IsLoopThread() bool {
	id := h.loopID.Load()
	return id != 0 && id == goroutineid.Get()
}

// enterLoop claims the calling goroutine as the loop, once.
func (h *Host) enterLoop() {
	if h.loopID.Load() == 0 {
		h.loopID.CompareAndSwap(0, goroutineid.Get())
	}
}

// RunPending runs the tasks posted so far on the calling goroutine, which
// must be the loop. Tasks they post wait for the next drain.
func (h *Host) RunPending() int {
	h.enterLoop()
	h.mu.Lock()
	tasks := h.inbox
	h.inbox = nil
	h.wakePending = false
	h.mu.Unlock()
	for _, task := range tasks {
		task()
	}
	return len(tasks)
}

// Run runs the bubbletea program until it quits or ctx is done, then
// closes the host.
func (h *Host) Run(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithContext(ctx), tea.WithReportFocus()}
	if h.opts.Input != nil {
		opts = append(opts, tea.WithInput(h.opts.Input))
	}
	if h.opts.Output != nil {
		opts = append(opts, tea.WithOutput(h.opts.Output))
	}
	if h.opts.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if h.opts.Mouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(h, opts...)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fault.Soft("termhost.run", fault.ErrQueueClosed)
	}
	h.send = p.Send
	h.mu.Unlock()

	h.logger.Debug("program starting")
	_, err := p.Run()
	h.Close()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	return err
}

// Quit asks a running program to exit.
func (h *Host) Quit() {
	h.mu.Lock()
	send := h.send
	h.mu.Unlock()
	if send != nil {
		go send(tea.QuitMsg{})
	}
}

// Close stops accepting tasks. The caller becomes the loop and runs
// whatever was still queued, so bound queues can finish quiescing.
func (h *Host) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.send = nil
	tasks := h.inbox
	h.inbox = nil
	h.mu.Unlock()

	h.loopID.Store(goroutineid.Get())
	for _, task := range tasks {
		task()
	}
	h.zones.Close()
}

// Init implements tea.Model.
func (h *Host) Init() tea.Cmd {
	h.enterLoop()
	return func() tea.Msg { return drainMsg{} }
}

// Update implements tea.Model.
func (h *Host) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	h.enterLoop()
	switch msg := msg.(type) {
	case drainMsg:
		h.RunPending()
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return h, h.shutdown()
		}
		h.toRoots(func(surface, root int) event.Event {
			return event.Event{Surface: surface, Target: root, Name: EventKeyPress, Payload: map[string]any{
				"key": msg.String(),
				"alt": msg.Alt,
			}}
		})
	case tea.WindowSizeMsg:
		h.width, h.height = msg.Width, msg.Height
		h.toRoots(func(surface, root int) event.Event {
			return event.Event{Surface: surface, Target: root, Name: EventLayout, CoalescingKey: LayoutCoalescingKey, Payload: map[string]any{
				"width":  msg.Width,
				"height": msg.Height,
			}}
		})
	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress {
			break
		}
		switch msg.Button {
		case tea.MouseButtonLeft:
			h.click(msg)
		case tea.MouseButtonWheelUp:
			h.wheel(msg, -wheelStep)
		case tea.MouseButtonWheelDown:
			h.wheel(msg, wheelStep)
		}
	case tea.FocusMsg:
		if b := h.bridge.Load(); b != nil {
			b.Resume()
		}
	case tea.BlurMsg:
		if b := h.bridge.Load(); b != nil {
			b.Pause()
		}
	}
	return h, nil
}

// shutdown destroys the bridge off the loop, which keeps draining until
// the destroy completes, then quits.
func (h *Host) shutdown() tea.Cmd {
	b := h.bridge.Load()
	return func() tea.Msg {
		if b != nil {
			if err := b.Destroy(); err != nil {
				h.logger.Warn("bridge destroy failed", "error", err)
			}
		}
		return tea.QuitMsg{}
	}
}

func (h *Host) toRoots(build func(surface, root int) event.Event) {
	b := h.bridge.Load()
	if b == nil {
		return
	}
	m := b.Mounting()
	for _, id := range m.LiveSurfaces() {
		if root, ok := m.RootOf(id); ok {
			b.Dispatcher().DispatchEvent(build(id, root))
		}
	}
}

func (h *Host) click(msg tea.MouseMsg) {
	b := h.bridge.Load()
	if b == nil {
		return
	}
	for tag, btn := range h.buttons {
		if info := h.zones.Get(btn.zoneID); info == nil || !info.InBounds(msg) {
			continue
		}
		surface, ok := b.Mounting().SurfaceOf(tag)
		if !ok {
			continue
		}
		b.Dispatcher().DispatchEvent(event.Event{Surface: surface, Target: tag, Name: EventPress, Payload: map[string]any{
			"x": msg.X,
			"y": msg.Y,
		}})
		return
	}
}

// wheel scrolls the innermost scroll view under the pointer.
func (h *Host) wheel(msg tea.MouseMsg, delta int) {
	b := h.bridge.Load()
	if b == nil {
		return
	}
	m := b.Mounting()
	var (
		target *Scroll
		depth  = -1
	)
	for tag, s := range h.scrolls {
		if info := h.zones.Get(s.zoneID); info == nil || !info.InBounds(msg) {
			continue
		}
		if d := depthOf(m, tag); d > depth {
			target, depth = s, d
		}
	}
	if target == nil || !target.scrollBy(delta) {
		return
	}
	surface, ok := m.SurfaceOf(target.tag)
	if !ok {
		return
	}
	b.Dispatcher().DispatchEvent(event.Event{Surface: surface, Target: target.tag, Name: EventScroll, CoalescingKey: ScrollCoalescingKey, Payload: map[string]any{
		"offset": target.Offset(),
	}})
}

func depthOf(m *mount.Manager, tag int) int {
	var d int
	for {
		parent, ok := m.ParentOf(tag)
		if !ok {
			return d
		}
		tag = parent
		d++
	}
}

// View implements tea.Model. Surfaces render top to bottom in id order.
func (h *Host) View() string {
	h.enterLoop()
	b := h.bridge.Load()
	if b == nil {
		return ""
	}
	m := b.Mounting()
	var parts []string
	for _, id := range m.LiveSurfaces() {
		root, _ := m.RootOf(id)
		if v, ok := m.ViewAt(root); ok {
			if r, ok := v.(renderer); ok {
				parts = append(parts, r.render())
			}
		}
	}
	return h.zones.Scan(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// Size returns the last reported terminal size.
func (h *Host) Size() (width, height int) {
	return h.width, h.height
}
