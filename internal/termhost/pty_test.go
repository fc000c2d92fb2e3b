//go:build linux || darwin

package termhost_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/joeycumines/nativebridge/internal/bridge"
	"github.com/joeycumines/nativebridge/internal/mount"
	"github.com/joeycumines/nativebridge/internal/termhost"
	"github.com/joeycumines/nativebridge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHost_RunOverPTY(t *testing.T) {
	ptm, pts, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pts.Close()
		_ = ptm.Close()
	})
	require.NoError(t, pty.Setsize(ptm, &pty.Winsize{Rows: 24, Cols: 80}))
	go func() { _, _ = io.Copy(io.Discard, ptm) }()

	ctx, cancel := context.WithTimeout(context.Background(), testutil.WaitTimeout)
	defer cancel()

	h := termhost.New(termhost.Options{Input: pts, Output: pts})
	e := new(engine)
	b, err := bridge.New(ctx, bridge.Options{ID: "pty", MainLoop: h, Views: h.Views(), Engine: e})
	require.NoError(t, err)
	h.Attach(b)
	started := h.StartSurface(1, 1)

	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	_, err = started.GetTimeout(testutil.WaitTimeout)
	require.NoError(t, err)
	require.NoError(t, b.SubmitMountItems([]mount.Item{
		mount.Create{Surface: 1, Tag: 2, ViewType: termhost.TypeText, Props: mount.Props{"text": "over a pty"}},
		mount.Insert{Surface: 1, Parent: 1, Child: 2, Index: 0},
	}))

	_, err = ptm.Write([]byte("q"))
	require.NoError(t, err)
	require.NoError(t, testutil.Poll(ctx, func() bool {
		for _, ev := range e.received() {
			if ev.Name == termhost.EventKeyPress && ev.Payload.(map[string]any)["key"] == "q" {
				return true
			}
		}
		return false
	}, testutil.WaitTimeout, 5*time.Millisecond))

	require.NoError(t, b.Destroy())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testutil.WaitTimeout):
		t.Fatal("program did not exit after destroy")
	}
	assert.Equal(t, bridge.Destroyed, b.State())
}
