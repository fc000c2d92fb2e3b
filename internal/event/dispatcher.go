package event

import (
	"log/slog"
	"time"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/queue"
)

// State is the dispatcher's position in the batch cycle.
type State int

const (
	Idle State = iota
	Collecting
	Flushing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Collecting:
		return "collecting"
	case Flushing:
		return "flushing"
	default:
		return "unknown"
	}
}

// Listener observes every accepted event on the UI queue, before
// coalescing.
type Listener func(Event)

// Stats are the dispatcher's counters.
type Stats struct {
	Dispatched uint64
	Coalesced  uint64
	Batches    uint64
	Delivered  uint64
	Pending    int
}

// Options configures a Dispatcher.
type Options struct {
	UI        *queue.TaskQueue
	Scripting *queue.TaskQueue
	// Deliver receives each batch on the Scripting queue.
	Deliver func(batch []Event)
	// DisableCoalescing delivers every event, even those with a key.
	DisableCoalescing bool
	Logger            *slog.Logger
	Reporter          fault.Reporter
}

// Dispatcher batches events on the UI queue and delivers them to the
// Scripting queue. All methods except Options-time construction must run on
// the UI queue.
//
// The first event appended while idle schedules a flush on the UI queue.
// That flush runs after every UI task already queued, so one batch holds
// everything produced in the current pass of the UI loop.
type Dispatcher struct {
	ui        *queue.TaskQueue
	scripting *queue.TaskQueue
	deliver   func([]Event)
	logger    *slog.Logger
	reporter  fault.Reporter

	coalesce  bool
	paused    bool
	scheduled bool
	state     State
	pending   []Event
	index     map[coalesceKey]int
	listeners []Listener
	stats     Stats
}

// NewDispatcher returns an idle Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = fault.NewLogReporter(logger, fault.DefaultRates)
	}
	deliver := opts.Deliver
	if deliver == nil {
		deliver = func([]Event) {}
	}
	return &Dispatcher{
		ui:        opts.UI,
		scripting: opts.Scripting,
		deliver:   deliver,
		logger:    logger,
		reporter:  reporter,
		coalesce:  !opts.DisableCoalescing,
		index:     make(map[coalesceKey]int),
	}
}

// DispatchEvent appends ev to the pending batch, or replaces the pending
// event it supersedes in place.
func (d *Dispatcher) DispatchEvent(ev Event) {
	d.ui.AssertOnQueue("event dispatch")
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	d.stats.Dispatched++
	for _, l := range d.listeners {
		d.notify(l, ev)
	}

	if d.coalesce && ev.Coalescable() {
		k := keyOf(ev)
		if i, ok := d.index[k]; ok {
			d.pending[i] = ev
			d.stats.Coalesced++
			return
		}
		d.index[k] = len(d.pending)
	}
	d.pending = append(d.pending, ev)
	d.state = Collecting
	d.schedule()
}

func (d *Dispatcher) notify(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.reporter.Report(fault.RecoveredSoft("event.listener", r))
		}
	}()
	l(ev)
}

func (d *Dispatcher) schedule() {
	if d.scheduled || d.paused {
		return
	}
	if err := d.ui.Submit(d.batchEnd); err != nil {
		d.reporter.Report(err)
		return
	}
	d.scheduled = true
}

func (d *Dispatcher) batchEnd() {
	d.scheduled = false
	if d.paused {
		return
	}
	d.DispatchAllEvents()
}

// DispatchAllEvents hands every pending event to the Scripting queue as a
// single batch, in pending order, and resets to Idle. It flushes even while
// paused.
func (d *Dispatcher) DispatchAllEvents() {
	d.ui.AssertOnQueue("event flush")
	if len(d.pending) == 0 {
		d.state = Idle
		return
	}
	d.state = Flushing
	batch := d.pending
	d.pending = nil
	clear(d.index)

	deliver := d.deliver
	if err := d.scripting.Submit(func() { deliver(batch) }); err != nil {
		d.reporter.Report(&fault.Error{Op: "event.flush", Kind: fault.KindOf(err), Err: err})
	} else {
		d.stats.Batches++
		d.stats.Delivered += uint64(len(batch))
	}
	d.logger.Debug("event batch flushed", "events", len(batch))
	d.state = Idle
}

// Pause stops automatic flushing. Events keep accumulating.
func (d *Dispatcher) Pause() {
	d.ui.AssertOnQueue("event pause")
	d.paused = true
}

// Resume re-enables automatic flushing and schedules a flush of anything
// collected while paused.
func (d *Dispatcher) Resume() {
	d.ui.AssertOnQueue("event resume")
	d.paused = false
	if len(d.pending) != 0 {
		d.schedule()
	}
}

// Paused reports whether automatic flushing is paused.
func (d *Dispatcher) Paused() bool {
	d.ui.AssertOnQueue("event state")
	return d.paused
}

// SetCoalescing toggles merging for events dispatched from now on.
func (d *Dispatcher) SetCoalescing(enabled bool) {
	d.ui.AssertOnQueue("event config")
	d.coalesce = enabled
	if !enabled {
		clear(d.index)
	}
}

// AddListener registers l for every subsequently dispatched event.
func (d *Dispatcher) AddListener(l Listener) {
	d.ui.AssertOnQueue("event listener")
	d.listeners = append(d.listeners, l)
}

// State returns the current batch state.
func (d *Dispatcher) State() State {
	d.ui.AssertOnQueue("event state")
	return d.state
}

// Stats returns the dispatcher's counters.
func (d *Dispatcher) Stats() Stats {
	d.ui.AssertOnQueue("event stats")
	s := d.stats
	s.Pending = len(d.pending)
	return s
}
