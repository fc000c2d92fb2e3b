// Package testutil holds the shared timing constants and helpers used by the
// bridge's tests.
package testutil

import "time"

// PollingInterval is the default interval between condition checks in Poll
// and WaitForState.
const PollingInterval = 10 * time.Millisecond

// WaitTimeout bounds any single wait on a queue, future or host in tests.
// It is deliberately generous; a test that hits it is hung, not slow.
const WaitTimeout = 5 * time.Second

// FlushSettleTime is how long a test waits to observe that something did
// NOT happen, e.g. that a paused dispatcher stayed quiet.
const FlushSettleTime = 50 * time.Millisecond
