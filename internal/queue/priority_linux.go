//go:build linux

package queue

import "golang.org/x/sys/unix"

// setThreadPriority applies nice to the calling OS thread. The caller must
// hold runtime.LockOSThread.
func setThreadPriority(nice int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), nice)
}
