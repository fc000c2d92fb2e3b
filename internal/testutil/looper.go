package testutil

import (
	"context"
	"testing"

	"github.com/joeycumines/nativebridge/internal/queue"
)

// StartLooper runs a queue.Looper on its own goroutine for the life of the
// test, standing in for a platform UI loop.
func StartLooper(t testing.TB) *queue.Looper {
	t.Helper()
	l := queue.NewLooper()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return l
}

// StartQueueSet builds a QueueSet on a fresh looper, destroyed when the test
// ends. Errors reported by any queue land in the returned recorder.
func StartQueueSet(t testing.TB) (*queue.QueueSet, *queue.Looper, *Reports) {
	t.Helper()
	l := StartLooper(t)
	rec := new(Reports)
	qs, err := queue.NewQueueSet(queue.SetConfig{}, l, rec)
	if err != nil {
		t.Fatalf("new queue set: %v", err)
	}
	t.Cleanup(qs.Destroy)
	return qs, l, rec
}
