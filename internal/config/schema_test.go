package config

import (
	"strings"
	"testing"
	"time"
)

func TestSchemaRegisterReplaces(t *testing.T) {
	s := NewSchema()
	s.Register(
		ConfigOption{Key: "a", Default: "1"},
		ConfigOption{Key: "a", Section: "x", Default: "2"},
		ConfigOption{Key: "a", Default: "3"},
	)
	if n := len(s.Options()); n != 2 {
		t.Fatalf("options = %d", n)
	}
	if o, ok := s.Lookup("", "a"); !ok || o.Default != "3" {
		t.Errorf("global a = %+v", o)
	}
	if o, ok := s.Lookup("x", "a"); !ok || o.Default != "2" {
		t.Errorf("x.a = %+v", o)
	}
	if _, ok := s.Lookup("y", "a"); ok {
		t.Error("unexpected y.a")
	}
}

func TestResolverPrecedence(t *testing.T) {
	c := NewConfig()
	r := NewResolver(c)

	if got := r.Duration(KeyMeasureTimeout); got != 50*time.Millisecond {
		t.Errorf("default measure.timeout = %v", got)
	}
	if got := r.Int(KeyErrorsPerSecond); got != 10 {
		t.Errorf("default errors.per-second = %v", got)
	}
	if !r.Bool(KeyEventsCoalesce) {
		t.Error("events.coalesce should default true")
	}

	c.SetGlobalOption(KeyLogLevel, "warn")
	c.SetGlobalOption(KeyMeasureTimeout, "not-a-duration")
	c.SetGlobalOption(KeyEventsCoalesce, "off")
	if got := r.String(KeyLogLevel); got != "warn" {
		t.Errorf("log.level = %q", got)
	}
	if got := r.Duration(KeyMeasureTimeout); got != 50*time.Millisecond {
		t.Errorf("bad duration should fall back to default, got %v", got)
	}
	if r.Bool(KeyEventsCoalesce) {
		t.Error("events.coalesce should be off")
	}

	t.Setenv("NATIVEBRIDGE_LOG_LEVEL", "error")
	if got := r.String(KeyLogLevel); got != "error" {
		t.Errorf("env override log.level = %q", got)
	}
	if got := NewResolver(nil).String("unknown.key"); got != "" {
		t.Errorf("unknown key = %q", got)
	}
}

func TestDefaultSchemaValid(t *testing.T) {
	for _, o := range DefaultSchema().Options() {
		if o.Default == "" {
			continue
		}
		if err := validateType(o.Type, o.Default); err != nil {
			t.Errorf("%s: %v", o.Key, err)
		}
	}
}

func TestFormatHelp(t *testing.T) {
	help := DefaultSchema().FormatHelp()
	for _, want := range []string{"Global Options:", KeyShutdownTimeout, "type: duration", "env: NATIVEBRIDGE_LOG_FILE"} {
		if !strings.Contains(help, want) {
			t.Errorf("help missing %q", want)
		}
	}
}
