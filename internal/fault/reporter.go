package fault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"
)

// Reporter receives reported errors, i.e. errors that are handled by logging
// or telemetry rather than returned. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(err error)

func (f ReporterFunc) Report(err error) { f(err) }

// Multi fans a report out to every non-nil reporter, in order.
func Multi(reporters ...Reporter) Reporter {
	var out []Reporter
	for _, r := range reporters {
		if r != nil {
			out = append(out, r)
		}
	}
	return ReporterFunc(func(err error) {
		for _, r := range out {
			r.Report(err)
		}
	})
}

// DefaultRates throttle each report category to 10/s and 100/min.
var DefaultRates = map[time.Duration]int{
	time.Second: 10,
	time.Minute: 100,
}

// LogReporter writes reports to a slog.Logger: soft errors at warn, fatal and
// timeout errors at error. Reports are rate limited per category, where the
// category is (kind, op, sentinel cause). Fatal errors are never dropped.
type LogReporter struct {
	logger  *slog.Logger
	limiter *catrate.Limiter

	mu         sync.Mutex
	suppressed map[category]int
}

type category struct {
	kind  Kind
	op    string
	cause string
}

// NewLogReporter returns a LogReporter. A nil logger uses slog.Default, and
// nil or empty rates disable throttling.
func NewLogReporter(logger *slog.Logger, rates map[time.Duration]int) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	r := &LogReporter{
		logger:     logger,
		suppressed: make(map[category]int),
	}
	if len(rates) != 0 {
		r.limiter = catrate.NewLimiter(rates)
	}
	return r
}

// Report implements Reporter.
func (r *LogReporter) Report(err error) {
	if err == nil {
		return
	}
	kind := KindOf(err)
	cat := categorize(kind, err)

	if kind != KindFatal && r.limiter != nil {
		if _, ok := r.limiter.Allow(cat); !ok {
			r.mu.Lock()
			r.suppressed[cat]++
			r.mu.Unlock()
			return
		}
	}

	r.mu.Lock()
	dropped := r.suppressed[cat]
	delete(r.suppressed, cat)
	r.mu.Unlock()

	attrs := []slog.Attr{
		slog.String("kind", kind.String()),
		slog.String("error", err.Error()),
	}
	if cat.op != "" {
		attrs = append(attrs, slog.String("op", cat.op))
	}
	if dropped > 0 {
		attrs = append(attrs, slog.Int("suppressed", dropped))
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", pe.Stack))
	}

	level := slog.LevelWarn
	if kind != KindSoft {
		level = slog.LevelError
	}
	r.logger.LogAttrs(context.Background(), level, "bridge error reported", attrs...)
}

func categorize(kind Kind, err error) category {
	cat := category{kind: kind}
	var e *Error
	if errors.As(err, &e) {
		cat.op = e.Op
		cause := e.Err
		for cause != nil {
			next := errors.Unwrap(cause)
			if next == nil {
				break
			}
			cause = next
		}
		if cause != nil {
			cat.cause = cause.Error()
		}
	} else {
		cat.cause = fmt.Sprintf("%T", err)
	}
	return cat
}

// Recorder is a Reporter that keeps every report, for tests and tooling.
type Recorder struct {
	mu      sync.Mutex
	reports []error
}

// Report implements Reporter.
func (r *Recorder) Report(err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	r.reports = append(r.reports, err)
	r.mu.Unlock()
}

// Reports returns a copy of everything reported so far.
func (r *Recorder) Reports() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]error, len(r.reports))
	copy(out, r.reports)
	return out
}

// Matching returns the reports for which errors.Is(report, target) holds.
func (r *Recorder) Matching(target error) []error {
	var out []error
	for _, err := range r.Reports() {
		if errors.Is(err, target) {
			out = append(out, err)
		}
	}
	return out
}

// Reset discards all recorded reports.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.reports = nil
	r.mu.Unlock()
}
