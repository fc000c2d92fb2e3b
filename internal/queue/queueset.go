package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/joeycumines/nativebridge/internal/fault"
)

// Default queue names.
const (
	DefaultUIName             = "ui"
	DefaultScriptingName      = "scripting"
	DefaultNativeDispatchName = "native_dispatch"
)

// SetConfig configures the dedicated queues of a QueueSet. Empty names fall
// back to the defaults.
type SetConfig struct {
	UIName    string
	Scripting Config
	// ScriptingLoop, if set, hosts the Scripting queue instead of a
	// dedicated worker, and Scripting.Priority is ignored. The QueueSet
	// stops it once the Scripting queue has quiesced.
	ScriptingLoop  StoppableLoop
	NativeDispatch Config
	Logger         *slog.Logger
}

// QueueSet is the trio of queues one bridge instance runs on.
type QueueSet struct {
	UI             *TaskQueue
	Scripting      *TaskQueue
	NativeDispatch *TaskQueue

	scriptingLoop StoppableLoop
	once          sync.Once
	err  error
}

// NewQueueSet binds the UI queue to ui and starts the Scripting and
// NativeDispatch workers. All three share handler. On error the
// ScriptingLoop, if any, is stopped.
func NewQueueSet(cfg SetConfig, ui MainLoop, handler fault.Reporter) (*QueueSet, error) {
	if ui == nil {
		if cfg.ScriptingLoop != nil {
			cfg.ScriptingLoop.Stop()
		}
		return nil, fault.Soft("queueset.create", errors.New("nil main loop"))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = fault.NewLogReporter(logger, fault.DefaultRates)
	}

	scripting := withDefaults(cfg.Scripting, DefaultScriptingName, logger)
	native := withDefaults(cfg.NativeDispatch, DefaultNativeDispatchName, logger)
	uiName := cfg.UIName
	if uiName == "" {
		uiName = DefaultUIName
	}

	s := &QueueSet{UI: NewBound(uiName, ui, logger, handler), scriptingLoop: cfg.ScriptingLoop}
	var err error
	if s.scriptingLoop != nil {
		s.Scripting = NewBound(scripting.Name, s.scriptingLoop, scripting.Logger, handler)
	} else if s.Scripting, err = New(scripting, handler); err != nil {
		return nil, err
	}
	if s.NativeDispatch, err = New(native, handler); err != nil {
		s.Scripting.QuiesceAndJoin()
		s.stopScriptingLoop()
		return nil, err
	}
	return s, nil
}

func withDefaults(cfg Config, name string, logger *slog.Logger) Config {
	if cfg.Name == "" {
		cfg.Name = name
	}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	return cfg
}

// Destroy quiesces and joins NativeDispatch, then Scripting, then stops the
// ScriptingLoop if there is one. The UI queue belongs to the host and is
// left running. Idempotent.
func (s *QueueSet) Destroy() {
	_ = s.DestroyContext(context.Background())
}

// DestroyContext is Destroy bounded by ctx. Only the first call does any
// work; later calls return its result.
func (s *QueueSet) DestroyContext(ctx context.Context) error {
	s.once.Do(func() {
		s.err = errors.Join(
			s.NativeDispatch.Quiesce(ctx),
			s.Scripting.Quiesce(ctx),
		)
		s.stopScriptingLoop()
	})
	return s.err
}

func (s *QueueSet) stopScriptingLoop() {
	if s.scriptingLoop != nil {
		s.scriptingLoop.Stop()
	}
}
