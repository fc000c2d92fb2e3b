// Package fault defines the error taxonomy shared by every bridge component,
// and the Reporter channel that reported (non-returned) errors flow through.
//
// Three kinds exist. Fatal errors are programming errors (off-queue access,
// a future set twice, colliding surface roots) that leave the owning bridge
// unusable. Soft errors are reported, the offending operation becomes a no-op
// or is clamped, and processing continues. Timeout errors are returned to the
// caller of a bounded wait, who decides what to do with them.
package fault

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Kind categorizes an error.
type Kind int

const (
	// KindSoft is a recoverable, reported error.
	KindSoft Kind = iota
	// KindFatal is an unrecoverable programming error.
	KindFatal
	// KindTimeout is a bounded wait that elapsed.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindSoft:
		return "soft"
	case KindFatal:
		return "fatal"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

var (
	ErrQueueClosed         = errors.New("queue is closed")
	ErrOffQueue            = errors.New("called off the owning queue")
	ErrAlreadySet          = errors.New("result already set")
	ErrTimeout             = errors.New("timed out")
	ErrUnknownModule       = errors.New("unknown module")
	ErrUnknownMethod       = errors.New("unknown module method")
	ErrModuleUnavailable   = errors.New("module unavailable")
	ErrModuleCycle         = errors.New("module construction cycle")
	ErrRegistryInvalidated = errors.New("module registry invalidated")
	ErrUnknownSurface      = errors.New("unknown surface")
	ErrSurfaceStarted      = errors.New("surface already started")
	ErrTagCollision        = errors.New("root tag belongs to another live surface")
	ErrDuplicateTag        = errors.New("view tag already registered")
	ErrUnknownTag          = errors.New("unknown view tag")
	ErrUnknownViewType     = errors.New("unknown view type")
	ErrNotContainer        = errors.New("view is not a container")
	ErrNotChild            = errors.New("view is not a child of parent")
	ErrIndexOutOfRange     = errors.New("child index out of range")
	ErrInvalidItem         = errors.New("invalid mount item")
	ErrBridgeDestroyed     = errors.New("bridge destroyed")
)

// Error is a structured bridge error. Zero-valued location fields are
// omitted from the message.
type Error struct {
	// Op is the operation that failed, e.g. "mount.update".
	Op     string
	Kind   Kind
	Err    error
	Queue  string
	Module string
	// Surface and Tag are only meaningful when non-zero.
	Surface int
	Tag     int
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" [")
	b.WriteString(e.Kind.String())
	b.WriteString("]")
	if e.Queue != "" {
		fmt.Fprintf(&b, " queue=%s", e.Queue)
	}
	if e.Module != "" {
		fmt.Fprintf(&b, " module=%s", e.Module)
	}
	if e.Surface != 0 {
		fmt.Fprintf(&b, " surface=%d", e.Surface)
	}
	if e.Tag != 0 {
		fmt.Fprintf(&b, " tag=%d", e.Tag)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Soft builds a KindSoft error.
func Soft(op string, err error) *Error {
	return &Error{Op: op, Kind: KindSoft, Err: err}
}

// Fatal builds a KindFatal error.
func Fatal(op string, err error) *Error {
	return &Error{Op: op, Kind: KindFatal, Err: err}
}

// Timeout builds a KindTimeout error wrapping ErrTimeout.
func Timeout(op string, after time.Duration) *Error {
	return &Error{Op: op, Kind: KindTimeout, Err: fmt.Errorf("%w after %v", ErrTimeout, after)}
}

// PanicError is a recovered panic.
type PanicError struct {
	Op    string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it was an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Recovered converts a recover() value into an error. Values that are already
// *Error pass through untouched, so assertion failures keep their kind.
// Anything else becomes a fatal *Error wrapping a *PanicError.
func Recovered(op string, r any) error {
	if e, ok := r.(*Error); ok {
		return e
	}
	return Fatal(op, newPanicError(op, r))
}

// RecoveredSoft is Recovered for panics raised by leaf code, such as module
// factories and methods or event listeners. Such a panic fails only the
// call that raised it, so anything other than an *Error becomes soft.
func RecoveredSoft(op string, r any) error {
	if e, ok := r.(*Error); ok {
		return e
	}
	return Soft(op, newPanicError(op, r))
}

func newPanicError(op string, r any) *PanicError {
	buf := make([]byte, 8192)
	n := runtime.Stack(buf, false)
	return &PanicError{Op: op, Value: r, Stack: string(buf[:n])}
}

// KindOf returns the kind of the first *Error in err's chain. Errors that
// carry no kind are treated as soft, except those wrapping ErrTimeout.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrTimeout) {
		return KindTimeout
	}
	return KindSoft
}

// IsFatal reports whether err is a fatal error.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == KindTimeout
}
