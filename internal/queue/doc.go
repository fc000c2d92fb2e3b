// Package queue provides the single-threaded executors the bridge runs on.
//
// A [TaskQueue] executes closures one at a time, in submission order, on
// exactly one worker. Dedicated queues own a goroutine locked to an OS
// thread. Bound queues run on a host-owned [MainLoop] (the platform UI loop)
// and never own a thread of their own.
//
// A [QueueSet] wires the three queues every bridge needs: UI (bound),
// Scripting and NativeDispatch (dedicated). Cross-queue communication happens
// only through [TaskQueue.Submit] and [Call], whose [Future] is the one
// intentional blocking primitive.
//
// Usage:
//
//	qs, err := queue.NewQueueSet(queue.SetConfig{}, looper, nil)
//	if err != nil { ... }
//	defer qs.Destroy()
//
//	size, err := queue.Call(qs.UI, func() (int, error) {
//	    return measure(tag), nil
//	}).GetTimeout(50 * time.Millisecond)
package queue
