// Command nativebridge runs a script against a bridge hosted in the
// terminal.
//
//	nativebridge [-config path] [-log-file path] [-log-level level] script.js
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joeycumines/nativebridge/internal/bridge"
	"github.com/joeycumines/nativebridge/internal/config"
	"github.com/joeycumines/nativebridge/internal/logging"
	"github.com/joeycumines/nativebridge/internal/module"
	"github.com/joeycumines/nativebridge/internal/modules"
	"github.com/joeycumines/nativebridge/internal/queue"
	"github.com/joeycumines/nativebridge/internal/scripting"
	"github.com/joeycumines/nativebridge/internal/termhost"
	"golang.org/x/term"
)

const version = "0.1.0"

// The CLI hosts a single surface.
const (
	surfaceID = 1
	rootTag   = 1
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin *os.File, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("nativebridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default $"+config.EnvConfigPath+" or ~/.nativebridge/config)")
	logFile := fs.String("log-file", "", "write JSON logs to this file, overriding the config")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	configHelp := fs.Bool("config-help", false, "print the config options and exit")
	showVersion := fs.Bool("version", false, "print the version and exit")
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "Usage: nativebridge [options] script.js")
		_, _ = fmt.Fprintln(stderr, "\nOptions:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *showVersion:
		_, _ = fmt.Fprintf(stdout, "nativebridge version %s\n", version)
		return nil
	case *configHelp:
		_, _ = fmt.Fprint(stdout, config.DefaultSchema().FormatHelp())
		return nil
	case fs.NArg() != 1:
		fs.Usage()
		return fmt.Errorf("expected one script argument, got %d", fs.NArg())
	}
	scriptPath := fs.Arg(0)
	src, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	r := config.NewResolver(cfg)
	logs, err := logging.New(r, *logFile, *logLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logs.Close()
		// The terminal belonged to the program until now.
		if logs.Ring != nil {
			_ = logs.Ring.Dump(stderr)
		}
	}()
	logger := logs.Logger
	for _, w := range cfg.Warnings {
		logger.Warn("config warning", "warning", w)
	}

	if !term.IsTerminal(int(stdin.Fd())) {
		return errors.New("stdin is not a terminal")
	}
	return serve(ctx, r, cfg, logger, scriptPath, string(src), stdin, stdout)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromPath(path)
}

func serve(ctx context.Context, r config.Resolver, cfg *config.Config, logger *slog.Logger, name, src string, stdin *os.File, stdout io.Writer) error {
	host := termhost.New(termhost.Options{
		Input:     stdin,
		Output:    stdout,
		AltScreen: r.Bool(config.KeyHostAltScreen),
		Mouse:     r.Bool(config.KeyHostMouse),
		Logger:    logger,
	})
	engine := scripting.New(scripting.Options{
		Logger:      logger,
		CallTimeout: r.Duration(config.KeyFutureTimeout),
	})

	b, err := bridge.New(ctx, bridge.Options{
		MainLoop: host,
		Queues: queue.SetConfig{
			Scripting: queue.Config{
				Name:     r.String(config.KeyScriptingQueueName),
				Priority: r.Int(config.KeyScriptingQueuePrio),
			},
			NativeDispatch: queue.Config{
				Name:     r.String(config.KeyNativeQueueName),
				Priority: r.Int(config.KeyNativeQueuePrio),
			},
		},
		Modules: enabledModules(cfg, logger),
		Views:   host.Views(),
		Engine:  engine,
		Logger:  logger,
		ErrorRates: map[time.Duration]int{
			time.Second: r.Int(config.KeyErrorsPerSecond),
			time.Minute: r.Int(config.KeyErrorsPerMinute),
		},
		DisableCoalescing: !r.Bool(config.KeyEventsCoalesce),
		MeasureTimeout:    r.Duration(config.KeyMeasureTimeout),
		ShutdownTimeout:   r.Duration(config.KeyShutdownTimeout),
	})
	if err != nil {
		host.Close()
		return err
	}
	host.Attach(b)

	// Both complete once the program's loop starts draining.
	surface := host.StartSurface(surfaceID, rootTag)
	script := engine.RunScript(name, src)

	var (
		mu        sync.Mutex
		scriptErr error
	)
	go func() {
		if _, err := surface.Get(); err != nil {
			logger.Error("surface failed to start", "error", err)
		}
		if _, err := script.Get(); err != nil {
			mu.Lock()
			scriptErr = err
			mu.Unlock()
			logger.Error("script failed", "script", name, "error", err)
			host.Quit()
		}
	}()

	runErr := host.Run(ctx)
	destroyErr := b.Destroy()
	mu.Lock()
	defer mu.Unlock()
	return errors.Join(runErr, scriptErr, destroyErr, b.Err())
}

func enabledModules(cfg *config.Config, logger *slog.Logger) []module.Descriptor {
	var out []module.Descriptor
	for _, d := range modules.All() {
		if !cfg.ModuleEnabled(d.Name) {
			logger.Info("module disabled by config", "module", d.Name)
			continue
		}
		out = append(out, d)
	}
	return out
}
