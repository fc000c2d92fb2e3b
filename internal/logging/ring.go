package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one record kept by a RingHandler.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   []slog.Attr
}

func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", e.Time.Format(time.TimeOnly), e.Level, e.Message)
	for _, a := range e.Attrs {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
	}
	return b.String()
}

type ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// RingHandler is a slog.Handler keeping the most recent records in memory.
// The terminal host uses it in place of stderr, which it owns while running.
type RingHandler struct {
	ring   *ring
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

var _ slog.Handler = (*RingHandler)(nil)

// NewRingHandler keeps up to size records at or above level.
func NewRingHandler(size int, level slog.Leveler) *RingHandler {
	if size <= 0 {
		size = 1000
	}
	if level == nil {
		level = slog.LevelInfo
	}
	return &RingHandler{ring: &ring{entries: make([]Entry, size)}, level: level}
}

// Enabled implements slog.Handler.
func (h *RingHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *RingHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = flatten(attrs, h.prefix, a)
		return true
	})
	e := Entry{Time: r.Time, Level: r.Level, Message: r.Message, Attrs: attrs}

	h.ring.mu.Lock()
	h.ring.entries[h.ring.next] = e
	h.ring.next = (h.ring.next + 1) % len(h.ring.entries)
	if h.ring.next == 0 {
		h.ring.full = true
	}
	h.ring.mu.Unlock()
	return nil
}

// flatten appends a to dst with its key under prefix, expanding group values
// into dotted keys. Empty attrs and empty groups are dropped, as in the
// standard handlers; a group with an empty key is inlined.
func flatten(dst []slog.Attr, prefix string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() != slog.KindGroup {
		if a.Equal(slog.Attr{}) {
			return dst
		}
		a.Key = prefix + a.Key
		return append(dst, a)
	}
	if a.Key != "" {
		prefix += a.Key + "."
	}
	for _, g := range a.Value.Group() {
		dst = flatten(dst, prefix, g)
	}
	return dst
}

// WithAttrs implements slog.Handler.
func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		c.attrs = flatten(c.attrs, h.prefix, a)
	}
	return &c
}

// WithGroup implements slog.Handler. Groups are flattened into dotted keys.
func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// Entries returns the retained records, oldest first.
func (h *RingHandler) Entries() []Entry {
	h.ring.mu.Lock()
	defer h.ring.mu.Unlock()
	if !h.ring.full {
		return append([]Entry(nil), h.ring.entries[:h.ring.next]...)
	}
	out := make([]Entry, 0, len(h.ring.entries))
	out = append(out, h.ring.entries[h.ring.next:]...)
	return append(out, h.ring.entries[:h.ring.next]...)
}

// Dump writes the retained records to w, one per line.
func (h *RingHandler) Dump(w io.Writer) error {
	for _, e := range h.Entries() {
		if _, err := fmt.Fprintln(w, e); err != nil {
			return err
		}
	}
	return nil
}
