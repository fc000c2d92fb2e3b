package queue_test

import (
	"testing"

	"github.com/joeycumines/nativebridge/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooper_RunPendingIsBatched(t *testing.T) {
	l := queue.NewLooper()
	var order []string
	require.NoError(t, l.Post(func() {
		order = append(order, "a")
		require.NoError(t, l.Post(func() { order = append(order, "c") }))
		assert.True(t, l.IsLoopThread())
	}))
	require.NoError(t, l.Post(func() { order = append(order, "b") }))

	assert.Equal(t, 2, l.RunPending())
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, l.RunPending())
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Zero(t, l.RunPending())
	assert.False(t, l.IsLoopThread())
}

func TestLooper_CloseRejects(t *testing.T) {
	l := queue.NewLooper()
	require.NoError(t, l.Post(func() { t.Fatal("discarded task ran") }))
	l.Close()
	require.Error(t, l.Post(func() {}))
	assert.Zero(t, l.RunPending())
}
