package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/nativebridge/internal/fault"
	"github.com/joeycumines/nativebridge/internal/goroutineid"
)

// Task is a unit of work run on a TaskQueue.
type Task func()

// Config configures a dedicated TaskQueue.
type Config struct {
	// Name identifies the queue in errors and logs.
	Name string
	// Priority is a niceness hint applied to the worker's OS thread where the
	// platform supports it. Zero leaves the thread untouched.
	Priority int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Stats is a point-in-time snapshot of a queue's counters.
type Stats struct {
	Name         string
	Pending      int
	HighWater    int
	Executed     uint64
	Failed       uint64
	LastDuration time.Duration
	Closed       bool
}

// TaskQueue runs tasks sequentially, in FIFO order, on exactly one worker.
// Tasks submitted from within a running task are appended behind everything
// already queued; they never run inline.
//
// A panic escaping a task is recovered, converted by fault.Recovered, and
// passed to the queue's exception handler. The queue keeps running.
type TaskQueue struct {
	name    string
	handler fault.Reporter
	logger  *slog.Logger
	loop    MainLoop // nil for dedicated queues

	mu        sync.Mutex
	cond      *sync.Cond
	inbox     []Task
	pending   int
	highWater int
	closed    bool
	executed  uint64
	failed    uint64
	lastDur   time.Duration

	workerID  atomic.Int64
	done      chan struct{}
	closeDone sync.Once
}

// New starts a dedicated queue on its own goroutine, locked to an OS thread.
// A nil handler logs recovered errors through the queue's logger.
func New(cfg Config, handler fault.Reporter) (*TaskQueue, error) {
	if cfg.Name == "" {
		return nil, fault.Soft("queue.create", fmt.Errorf("%w: queue name required", fault.ErrInvalidItem))
	}
	q := newQueue(cfg.Name, cfg.Logger, handler)
	ready := make(chan struct{})
	go q.work(ready, cfg.Priority)
	<-ready
	return q, nil
}

// NewBound returns a queue that runs its tasks on loop. The queue's
// identity is the loop's goroutine. Quiescing a bound queue waits for its
// outstanding tasks but never stops the loop.
func NewBound(name string, loop MainLoop, logger *slog.Logger, handler fault.Reporter) *TaskQueue {
	q := newQueue(name, logger, handler)
	q.loop = loop
	return q
}

func newQueue(name string, logger *slog.Logger, handler fault.Reporter) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &TaskQueue{
		name:   name,
		logger: logger.With("queue", name),
		done:   make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	if handler == nil {
		handler = fault.NewLogReporter(q.logger, fault.DefaultRates)
	}
	q.handler = handler
	return q
}

// Name returns the queue's configured name.
func (q *TaskQueue) Name() string { return q.name }

// Submit enqueues task. It never runs task inline, even when called from
// the queue's own worker. After quiesce it returns a soft ErrQueueClosed.
func (q *TaskQueue) Submit(task Task) error {
	if task == nil {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return q.closedError()
	}
	q.pending++
	if q.pending > q.highWater {
		q.highWater = q.pending
	}
	if q.loop == nil {
		q.inbox = append(q.inbox, task)
		q.cond.Broadcast()
		q.mu.Unlock()
		return nil
	}
	q.mu.Unlock()

	if err := q.loop.Post(func() { q.execute(task) }); err != nil {
		q.finish(0, false, false)
		return &fault.Error{Op: "queue.submit", Kind: fault.KindSoft, Queue: q.name, Err: fmt.Errorf("%w: %w", fault.ErrQueueClosed, err)}
	}
	return nil
}

func (q *TaskQueue) closedError() error {
	return &fault.Error{Op: "queue.submit", Kind: fault.KindSoft, Queue: q.name, Err: fault.ErrQueueClosed}
}

// IsOnQueue reports whether the caller is running on this queue's worker.
func (q *TaskQueue) IsOnQueue() bool {
	if q.loop != nil {
		return q.loop.IsLoopThread()
	}
	id := q.workerID.Load()
	return id != 0 && id == goroutineid.Get()
}

// AssertOnQueue panics with a fatal ErrOffQueue when the caller is not on
// this queue. When the caller is itself a task on another queue, that
// queue's exception handler receives the error unchanged.
func (q *TaskQueue) AssertOnQueue(what string) {
	if q.IsOnQueue() {
		return
	}
	panic(&fault.Error{
		Op:    "queue.assert",
		Kind:  fault.KindFatal,
		Queue: q.name,
		Err:   fmt.Errorf("%w: %s", fault.ErrOffQueue, what),
	})
}

// QuiesceAndJoin stops accepting tasks, runs everything already queued,
// and for dedicated queues joins the worker. It is idempotent. Called from
// the queue's own worker it only marks the queue closed, since joining
// would never return.
func (q *TaskQueue) QuiesceAndJoin() {
	_ = q.Quiesce(context.Background())
}

// Quiesce is QuiesceAndJoin bounded by ctx. The queue is closed even when
// the wait is abandoned.
func (q *TaskQueue) Quiesce(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	if q.IsOnQueue() {
		return nil
	}

	if q.loop != nil {
		go func() {
			q.mu.Lock()
			for q.pending != 0 {
				q.cond.Wait()
			}
			q.mu.Unlock()
			q.closeDone.Do(func() { close(q.done) })
		}()
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return &fault.Error{Op: "queue.quiesce", Kind: fault.KindTimeout, Queue: q.name, Err: fmt.Errorf("%w: %w", fault.ErrTimeout, ctx.Err())}
	}
}

// Done is closed once the queue has been quiesced and every accepted task
// has run.
func (q *TaskQueue) Done() <-chan struct{} {
	return q.done
}

// Stats returns a snapshot of the queue's counters.
func (q *TaskQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Name:         q.name,
		Pending:      q.pending,
		HighWater:    q.highWater,
		Executed:     q.executed,
		Failed:       q.failed,
		LastDuration: q.lastDur,
		Closed:       q.closed,
	}
}

func (q *TaskQueue) work(ready chan<- struct{}, priority int) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer q.closeDone.Do(func() { close(q.done) })

	q.workerID.Store(goroutineid.Get())
	if priority != 0 {
		if err := setThreadPriority(priority); err != nil {
			q.logger.Warn("failed to set queue thread priority", "priority", priority, "error", err)
		}
	}
	close(ready)

	for {
		q.mu.Lock()
		for len(q.inbox) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.inbox) == 0 {
			q.mu.Unlock()
			return
		}
		task := q.inbox[0]
		q.inbox[0] = nil
		q.inbox = q.inbox[1:]
		if len(q.inbox) == 0 {
			q.inbox = nil
		}
		q.mu.Unlock()

		q.execute(task)
	}
}

func (q *TaskQueue) execute(task Task) {
	start := time.Now()
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			q.handler.Report(fault.Recovered("queue."+q.name, r))
		}
		q.finish(time.Since(start), true, failed)
	}()
	task()
}

func (q *TaskQueue) finish(d time.Duration, ran, failed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if ran {
		q.executed++
		q.lastDur = d
	}
	if failed {
		q.failed++
	}
	if q.pending == 0 {
		q.cond.Broadcast()
	}
}

// Call runs fn on q and returns a Future carrying its result. A panic in fn
// fails the future; a fatal panic is also passed to q's exception handler.
// If q no longer accepts tasks the returned future is already failed.
func Call[T any](q *TaskQueue, fn func() (T, error)) *Future[T] {
	f := NewFuture[T]()
	err := q.Submit(func() {
		var (
			v   T
			err error
		)
		func() {
			defer func() {
				if r := recover(); r != nil {
					err = fault.Recovered("queue.call", r)
					if fault.IsFatal(err) {
						q.handler.Report(err)
					}
				}
			}()
			v, err = fn()
		}()
		if err != nil {
			_ = f.SetFailure(err)
			return
		}
		_ = f.Set(v)
	})
	if err != nil {
		_ = f.SetFailure(err)
	}
	return f
}

// Run is Call for functions with no result.
func Run(q *TaskQueue, fn func() error) *Future[struct{}] {
	return Call(q, func() (struct{}, error) {
		return struct{}{}, fn()
	})
}
