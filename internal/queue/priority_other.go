//go:build !linux

package queue

func setThreadPriority(int) error { return nil }
