// Package config loads node-shim's TOML configuration.
//
//	[process]
//	cwd = "/srv/app"
//	inherit-env = true
//	env = { NODE_ENV = "production" }
//
//	[engine]
//	kind = "auto"            # auto | js | wasm
//	memory-limit-pages = 256
//	mount-cwd = false
//	keep-alive-on-guest-error = false
//
//	[kernel]
//	stdin = "inherit"        # inherit | null
//
//	[log]
//	level = "info"           # debug | info | warn | error
//	format = "console"       # console | json
package config

import (
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/node-shim/engine"
	"github.com/wippyai/node-shim/errors"
)

// Config is the complete configuration.
type Config struct {
	Process Process `toml:"process"`
	Engine  Engine  `toml:"engine"`
	Kernel  Kernel  `toml:"kernel"`
	Log     Log     `toml:"log"`

	// Path is the file the configuration was loaded from (set at load time).
	Path string `toml:"-"`
}

// Process configures the guest's identity.
type Process struct {
	Env        map[string]string `toml:"env"`
	Cwd        string            `toml:"cwd"`
	InheritEnv bool              `toml:"inherit-env"`
}

// Engine selects and tunes the execution engine.
type Engine struct {
	Kind                  string `toml:"kind"`
	MemoryLimitPages      uint32 `toml:"memory-limit-pages"`
	MountCwd              bool   `toml:"mount-cwd"`
	KeepAliveOnGuestError bool   `toml:"keep-alive-on-guest-error"`
}

// Kernel configures the host side of the bridge.
type Kernel struct {
	Stdin string `toml:"stdin"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

const (
	StdinInherit = "inherit"
	StdinNull    = "null"

	FormatConsole = "console"
	FormatJSON    = "json"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Process: Process{InheritEnv: true},
		Engine:  Engine{Kind: string(engine.KindAuto)},
		Kernel:  Kernel{Stdin: StdinInherit},
		Log:     Log{Level: "warn", Format: FormatConsole},
	}
}

// Load reads path over the defaults and validates the result. Unknown keys
// are rejected.
func Load(path string) (*Config, error) {
	c := Default()
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse "+path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Name(path).
			Detail("unknown keys: %s", strings.Join(keys, ", ")).
			Build()
	}
	c.Path = path
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	if _, err := engine.ParseKind(c.Engine.Kind); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "engine.kind")
	}
	switch c.Kernel.Stdin {
	case StdinInherit, StdinNull:
	default:
		return invalid("kernel.stdin", c.Kernel.Stdin)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", c.Log.Level)
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		return invalid("log.format", c.Log.Format)
	}
	return nil
}

func invalid(key, value string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Name(key).
		Value(value).
		Detail("unsupported value %q", value).
		Build()
}

// Environ returns the guest environment: host (KEY=VALUE pairs) when
// inherit-env is set, overlaid with [process] env.
func (c *Config) Environ(host []string) map[string]string {
	env := make(map[string]string)
	if c.Process.InheritEnv {
		for _, kv := range host {
			if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
				env[k] = v
			}
		}
	}
	for k, v := range c.Process.Env {
		env[k] = v
	}
	return env
}

// Logger builds a zap logger writing to stderr.
func (l Log) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	var cfg zap.Config
	if l.Format == FormatJSON {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Exists reports whether a config file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
