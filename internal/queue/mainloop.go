package queue

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/goroutineid"
)

// MainLoop is a host-owned loop that a bound TaskQueue runs on. Post must run
// tasks in the order they were posted, on a single goroutine, and must never
// run a task inline, including when called from the loop itself.
type MainLoop interface {
	// Post schedules task to run on the loop.
	Post(task func()) error
	// IsLoopThread reports whether the caller is the loop's goroutine.
	IsLoopThread() bool
}

// StoppableLoop is a MainLoop whose lifetime a QueueSet owns. Stop must not
// be called from the loop itself; once it returns no further task runs.
type StoppableLoop interface {
	MainLoop
	Stop()
}

// Looper is a FIFO MainLoop driven by whichever goroutine calls Run. It is
// the headless stand-in for a platform UI loop.
type Looper struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool
	wake   chan struct{}
	loopID atomic.Int64
}

var _ MainLoop = (*Looper)(nil)

// NewLooper returns a Looper with nothing queued.
func NewLooper() *Looper {
	return &Looper{wake: make(chan struct{}, 1)}
}

// Post implements MainLoop. It fails only after Close.
func (l *Looper) Post(task func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return fault.Soft("looper.post", fault.ErrQueueClosed)
	}
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// IsLoopThread implements MainLoop.
func (l *Looper) IsLoopThread() bool {
	id := l.loopID.Load()
	return id != 0 && id == goroutineid.Get()
}

// Run processes tasks on the calling goroutine until ctx is done or Close is
// called. Tasks are taken in batches: anything posted while a batch runs
// waits for the next batch.
func (l *Looper) Run(ctx context.Context) error {
	l.loopID.Store(goroutineid.Get())
	defer l.loopID.Store(0)
	for {
		if l.RunPending() != 0 {
			continue
		}
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending runs one batch, i.e. every task queued at the time of the call,
// on the calling goroutine, and returns how many ran. Hosts that pump their
// own loop call this instead of Run.
func (l *Looper) RunPending() int {
	l.mu.Lock()
	batch := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	if len(batch) != 0 && l.loopID.Load() == 0 {
		l.loopID.Store(goroutineid.Get())
		defer l.loopID.Store(0)
	}
	for _, task := range batch {
		task()
	}
	return len(batch)
}

// Close rejects further posts and stops Run once the current batch is done.
// Tasks still queued are discarded.
func (l *Looper) Close() {
	l.mu.Lock()
	l.closed = true
	l.tasks = nil
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
