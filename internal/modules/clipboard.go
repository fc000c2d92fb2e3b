package modules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/joeycumines/nativebridge/internal/module"
)

// ClipboardName is the registered name of the clipboard module.
const ClipboardName = "clipboard"

// ClipboardBackend reads and writes the system clipboard.
type ClipboardBackend interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

type systemClipboard struct{}

func (systemClipboard) ReadAll() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Clipboard describes the lazily built clipboard module, with methods
// read() and write(text). A nil backend uses the system clipboard, and
// construction fails when the platform has none.
func Clipboard(backend ClipboardBackend) module.Descriptor {
	return module.Descriptor{
		Name: ClipboardName,
		Factory: func(ctx *module.Context) (any, error) {
			if backend == nil {
				if clipboard.Unsupported {
					return nil, errors.New("clipboard: no clipboard utility available")
				}
				backend = systemClipboard{}
			}
			ctx.Logger.Debug("clipboard ready")
			return &clipboardModule{backend: backend}, nil
		},
	}
}

type clipboardModule struct {
	mu      sync.Mutex
	backend ClipboardBackend
	closed  bool
}

func (c *clipboardModule) Methods() map[string]module.Method {
	return map[string]module.Method{
		"read":  c.read,
		"write": c.write,
	}
}

func (c *clipboardModule) read([]any) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	text, err := c.backend.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("clipboard: read: %w", err)
	}
	return text, nil
}

func (c *clipboardModule) write(args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("clipboard: write takes 1 argument, got %d", len(args))
	}
	text, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("clipboard: write expects a string, got %T", args[0])
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errClosed
	}
	if err := c.backend.WriteAll(text); err != nil {
		return nil, fmt.Errorf("clipboard: write: %w", err)
	}
	return nil, nil
}

// Invalidate implements module.Invalidator.
func (c *clipboardModule) Invalidate() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

var errClosed = errors.New("module invalidated")
