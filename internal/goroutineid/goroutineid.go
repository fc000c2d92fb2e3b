// Package goroutineid identifies the calling goroutine, so that a worker can
// tell whether it is being re-entered from its own thread of execution.
package goroutineid

import (
	"runtime"
	"sync"
)

// header is the fixed prefix of the first line of a runtime.Stack trace.
const header = "goroutine "

var stackBufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64)
		return &b
	},
}

// Get returns the id of the calling goroutine, or 0 if it cannot be parsed.
//
// Only the first line of the trace is needed, so the buffer is small and
// runtime.Stack truncates the rest.
func Get() int64 {
	bp := stackBufPool.Get().(*[]byte)
	defer stackBufPool.Put(bp)
	n := runtime.Stack(*bp, false)
	return parse((*bp)[:n])
}

// parse reads the decimal id following the "goroutine " header, without
// allocating. Returns 0 when the header is missing or no digits follow.
func parse(stack []byte) int64 {
	if len(stack) <= len(header) || string(stack[:len(header)]) != header {
		return 0
	}
	var id int64
	for _, b := range stack[len(header):] {
		if b < '0' || b > '9' {
			break
		}
		id = id*10 + int64(b-'0')
	}
	return id
}
