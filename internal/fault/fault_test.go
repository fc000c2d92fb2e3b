package fault

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := &Error{Op: "mount.update", Kind: KindSoft, Err: ErrUnknownTag, Surface: 2, Tag: 7}
	require.Equal(t, "mount.update [soft] surface=2 tag=7: unknown view tag", err.Error())
	require.ErrorIs(t, err, ErrUnknownTag)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindSoft, KindOf(errors.New("plain")))
	assert.Equal(t, KindFatal, KindOf(fmt.Errorf("wrapped: %w", Fatal("x", ErrOffQueue))))
	assert.Equal(t, KindTimeout, KindOf(Timeout("future.get", time.Millisecond)))
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("bare: %w", ErrTimeout)))
	assert.True(t, IsFatal(Fatal("x", ErrAlreadySet)))
	assert.False(t, IsFatal(nil))
	assert.True(t, IsTimeout(Timeout("x", time.Second)))
}

func TestRecovered(t *testing.T) {
	orig := Fatal("queue.assert", ErrOffQueue)
	require.Same(t, orig, Recovered("task", orig))

	err := Recovered("task", "boom")
	require.True(t, IsFatal(err))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "boom", pe.Value)
	require.NotEmpty(t, pe.Stack)

	cause := errors.New("inner")
	require.ErrorIs(t, Recovered("task", cause), cause)
}

func TestRecoveredSoft(t *testing.T) {
	orig := Fatal("queue.assert", ErrOffQueue)
	require.Same(t, orig, RecoveredSoft("module.method", orig))
	require.True(t, IsFatal(RecoveredSoft("module.method", orig)))

	err := RecoveredSoft("module.method", "index out of range")
	require.False(t, IsFatal(err))
	require.Equal(t, KindSoft, KindOf(err))
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "module.method", pe.Op)
}

func TestLogReporter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r := NewLogReporter(logger, nil)

	r.Report(Soft("mount.create", ErrUnknownViewType))
	r.Report(Fatal("queue.assert", ErrOffQueue))
	r.Report(nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "level=WARN")
	assert.Contains(t, lines[0], "op=mount.create")
	assert.Contains(t, lines[1], "level=ERROR")
	assert.Contains(t, lines[1], "kind=fatal")
}

func TestLogReporter_ThrottlesSoftButNeverFatal(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	r := NewLogReporter(logger, map[time.Duration]int{time.Hour: 2})

	for i := 0; i < 5; i++ {
		r.Report(Soft("mount.update", ErrUnknownTag))
	}
	for i := 0; i < 3; i++ {
		r.Report(Fatal("future.set", ErrAlreadySet))
	}

	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "op=mount.update"))
	assert.Equal(t, 3, strings.Count(out, "op=future.set"))
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Report(Soft("a", ErrUnknownTag))
	r.Report(Soft("b", ErrUnknownModule))
	r.Report(nil)
	require.Len(t, r.Reports(), 2)
	require.Len(t, r.Matching(ErrUnknownTag), 1)
	r.Reset()
	require.Empty(t, r.Reports())
}

func TestMulti(t *testing.T) {
	var a, b Recorder
	Multi(&a, nil, &b).Report(Soft("x", ErrInvalidItem))
	require.Len(t, a.Reports(), 1)
	require.Len(t, b.Reports(), 1)
}
