package goroutineid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	require.Equal(t, int64(123), parse([]byte("goroutine 123 [running]:\n")))
}

func TestParse_Invalid(t *testing.T) {
	require.Equal(t, int64(0), parse([]byte("something else\n")))
	require.Equal(t, int64(0), parse([]byte("goroutine ")))
	require.Equal(t, int64(0), parse([]byte("goroutine x [running]")))
}

func TestGet_DistinctPerGoroutine(t *testing.T) {
	self := Get()
	require.Greater(t, self, int64(0))

	other := make(chan int64, 1)
	go func() { other <- Get() }()
	require.NotEqual(t, self, <-other)
	require.Equal(t, self, Get())
}
