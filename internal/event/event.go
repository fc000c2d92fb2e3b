// Package event carries UI-originated events to the scripting side.
//
// Events are produced on the UI queue and collected by a Dispatcher, which
// merges stale events sharing a coalescing key and hands each batch to the
// Scripting queue as one unit.
package event

import (
	"fmt"
	"time"
)

// CoalescingKey groups events that may be merged. NoCoalescing, the zero
// value, means the event is never merged.
type CoalescingKey uint16

// NoCoalescing marks an event that must always be delivered.
const NoCoalescing CoalescingKey = 0

// Event is a single UI occurrence addressed to a view.
type Event struct {
	Surface       int
	Target        int
	Name          string
	CoalescingKey CoalescingKey
	Timestamp     time.Time
	Payload       any
}

// Coalescable reports whether e may be merged with an earlier pending event.
func (e Event) Coalescable() bool {
	return e.CoalescingKey != NoCoalescing
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%d/%d", e.Name, e.Surface, e.Target)
}

type coalesceKey struct {
	target int
	name   string
	key    CoalescingKey
}

func keyOf(e Event) coalesceKey {
	return coalesceKey{target: e.Target, name: e.Name, key: e.CoalescingKey}
}
