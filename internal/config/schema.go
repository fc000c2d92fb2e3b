package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// OptionType is the expected type of an option's value.
type OptionType string

const (
	TypeString   OptionType = "string"
	TypeBool     OptionType = "bool"
	TypeInt      OptionType = "int"
	TypeDuration OptionType = "duration"
)

// SectionModules is the section enabling or disabling modules by name.
const SectionModules = "modules"

// ConfigOption declares one option.
type ConfigOption struct {
	Key         string // as written in the file
	Type        OptionType
	Default     string
	Section     string // "" for global options
	Description string
	EnvVar      string // overrides the file when set
}

// ConfigSchema is the set of known options.
type ConfigSchema struct {
	options []ConfigOption
	index   map[[2]string]int
}

// NewSchema returns an empty schema.
func NewSchema() *ConfigSchema {
	return &ConfigSchema{index: make(map[[2]string]int)}
}

// Register adds opt. A later registration of the same section and key
// replaces the earlier one.
func (s *ConfigSchema) Register(opts ...ConfigOption) {
	for _, opt := range opts {
		k := [2]string{opt.Section, opt.Key}
		if i, ok := s.index[k]; ok {
			s.options[i] = opt
			continue
		}
		s.index[k] = len(s.options)
		s.options = append(s.options, opt)
	}
}

// Lookup returns the option for key in section ("" for global).
func (s *ConfigSchema) Lookup(section, key string) (ConfigOption, bool) {
	i, ok := s.index[[2]string{section, key}]
	if !ok {
		return ConfigOption{}, false
	}
	return s.options[i], true
}

// Options returns every registered option in registration order.
func (s *ConfigSchema) Options() []ConfigOption {
	return slices.Clone(s.options)
}

// ValidateConfig returns a sorted list of unknown options and type
// mismatches in c.
func ValidateConfig(c *Config, s *ConfigSchema) []string {
	var issues []string
	check := func(section, key, value string) {
		opt, ok := s.Lookup(section, key)
		if !ok {
			if section == "" {
				issues = append(issues, fmt.Sprintf("unknown global option: %q (value: %q)", key, value))
			} else {
				issues = append(issues, fmt.Sprintf("unknown option in [%s]: %q (value: %q)", section, key, value))
			}
			return
		}
		if err := validateType(opt.Type, value); err != nil {
			issues = append(issues, fmt.Sprintf("option %q: %v", key, err))
		}
	}
	for key, value := range c.Global {
		check("", key, value)
	}
	for section, opts := range c.Sections {
		if section == SectionModules {
			for key, value := range opts {
				if err := validateType(TypeBool, value); err != nil {
					issues = append(issues, fmt.Sprintf("module %q: %v", key, err))
				}
			}
			continue
		}
		for key, value := range opts {
			check(section, key, value)
		}
	}
	slices.Sort(issues)
	return issues
}

func validateType(t OptionType, value string) error {
	var err error
	switch t {
	case TypeString, "":
	case TypeBool:
		_, err = parseBool(value)
	case TypeInt:
		_, err = strconv.Atoi(value)
	case TypeDuration:
		_, err = time.ParseDuration(value)
	default:
		return fmt.Errorf("unknown option type %q", t)
	}
	if err != nil {
		return fmt.Errorf("expected %s, got %q", t, value)
	}
	return nil
}

// Resolver reads typed global option values. Each lookup checks the
// option's environment variable, then the config, then the schema default.
// A value that fails to parse falls back to the default.
type Resolver struct {
	Schema *ConfigSchema
	Config *Config
}

// NewResolver returns a Resolver over c and DefaultSchema. A nil c behaves
// like an empty config.
func NewResolver(c *Config) Resolver {
	if c == nil {
		c = NewConfig()
	}
	return Resolver{Schema: DefaultSchema(), Config: c}
}

// String returns the raw effective value for key.
func (r Resolver) String(key string) string {
	opt, known := r.Schema.Lookup("", key)
	if known && opt.EnvVar != "" {
		if v, ok := os.LookupEnv(opt.EnvVar); ok {
			return v
		}
	}
	if v, ok := r.Config.GetGlobalOption(key); ok {
		return v
	}
	return opt.Default
}

func (r Resolver) defaultOf(key string) string {
	opt, _ := r.Schema.Lookup("", key)
	return opt.Default
}

// Bool returns key as a bool.
func (r Resolver) Bool(key string) bool {
	if b, err := parseBool(r.String(key)); err == nil {
		return b
	}
	b, _ := parseBool(r.defaultOf(key))
	return b
}

// Int returns key as an int.
func (r Resolver) Int(key string) int {
	if i, err := strconv.Atoi(r.String(key)); err == nil {
		return i
	}
	i, _ := strconv.Atoi(r.defaultOf(key))
	return i
}

// Duration returns key as a time.Duration.
func (r Resolver) Duration(key string) time.Duration {
	if d, err := time.ParseDuration(r.String(key)); err == nil {
		return d
	}
	d, _ := time.ParseDuration(r.defaultOf(key))
	return d
}

// FormatHelp renders every option with its type, default and environment
// variable.
func (s *ConfigSchema) FormatHelp() string {
	var b strings.Builder
	section := "\x00"
	for _, o := range s.options {
		if o.Section != section {
			section = o.Section
			if section == "" {
				b.WriteString("Global Options:\n")
			} else {
				fmt.Fprintf(&b, "\n[%s] Options:\n", section)
			}
		}
		fmt.Fprintf(&b, "  %-28s %s", o.Key, o.Description)
		var meta []string
		if o.Type != "" && o.Type != TypeString {
			meta = append(meta, "type: "+string(o.Type))
		}
		if o.Default != "" {
			meta = append(meta, "default: "+o.Default)
		}
		if o.EnvVar != "" {
			meta = append(meta, "env: "+o.EnvVar)
		}
		if len(meta) != 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(meta, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Option keys.
const (
	KeyLogFile            = "log.file"
	KeyLogLevel           = "log.level"
	KeyLogMaxSizeMB       = "log.max-size-mb"
	KeyLogMaxFiles        = "log.max-files"
	KeyLogBufferSize      = "log.buffer-size"
	KeyScriptingQueueName = "queue.scripting.name"
	KeyScriptingQueuePrio = "queue.scripting.priority"
	KeyNativeQueueName    = "queue.native.name"
	KeyNativeQueuePrio    = "queue.native.priority"
	KeyFutureTimeout      = "future.timeout"
	KeyMeasureTimeout     = "measure.timeout"
	KeyShutdownTimeout    = "shutdown.timeout"
	KeyErrorsPerSecond    = "errors.per-second"
	KeyErrorsPerMinute    = "errors.per-minute"
	KeyEventsCoalesce     = "events.coalesce"
	KeyHostAltScreen      = "host.alt-screen"
	KeyHostMouse          = "host.mouse"
)

// DefaultSchema returns every option nativebridge understands.
func DefaultSchema() *ConfigSchema {
	s := NewSchema()
	s.Register(
		ConfigOption{Key: KeyLogFile, Description: "Log file path (JSON output, rotated)", EnvVar: "NATIVEBRIDGE_LOG_FILE"},
		ConfigOption{Key: KeyLogLevel, Default: "info", Description: "Log level: debug, info, warn, error", EnvVar: "NATIVEBRIDGE_LOG_LEVEL"},
		ConfigOption{Key: KeyLogMaxSizeMB, Type: TypeInt, Default: "10", Description: "Max log file size in MB before rotation"},
		ConfigOption{Key: KeyLogMaxFiles, Type: TypeInt, Default: "5", Description: "Max number of rotated log backups"},
		ConfigOption{Key: KeyLogBufferSize, Type: TypeInt, Default: "1000", Description: "In-memory log buffer size when no log file is set"},

		ConfigOption{Key: KeyScriptingQueueName, Default: "scripting", Description: "Scripting queue name"},
		ConfigOption{Key: KeyScriptingQueuePrio, Type: TypeInt, Default: "0", Description: "Scripting thread niceness (linux)"},
		ConfigOption{Key: KeyNativeQueueName, Default: "native_dispatch", Description: "NativeDispatch queue name"},
		ConfigOption{Key: KeyNativeQueuePrio, Type: TypeInt, Default: "0", Description: "NativeDispatch thread niceness (linux)"},

		ConfigOption{Key: KeyFutureTimeout, Type: TypeDuration, Default: "1s", Description: "Timeout for synchronous module calls from script"},
		ConfigOption{Key: KeyMeasureTimeout, Type: TypeDuration, Default: "50ms", Description: "Timeout for view measurement round-trips"},
		ConfigOption{Key: KeyShutdownTimeout, Type: TypeDuration, Default: "5s", Description: "Bound on each bridge teardown step"},

		ConfigOption{Key: KeyErrorsPerSecond, Type: TypeInt, Default: "10", Description: "Logged reports per error category per second"},
		ConfigOption{Key: KeyErrorsPerMinute, Type: TypeInt, Default: "100", Description: "Logged reports per error category per minute"},

		ConfigOption{Key: KeyEventsCoalesce, Type: TypeBool, Default: "true", Description: "Merge superseded events before delivery"},

		ConfigOption{Key: KeyHostAltScreen, Type: TypeBool, Default: "true", Description: "Run the terminal host in the alternate screen"},
		ConfigOption{Key: KeyHostMouse, Type: TypeBool, Default: "true", Description: "Enable mouse input in the terminal host"},
	)
	return s
}
