// Command node-shim runs a guest program behind the syscall bridge.
//
//	node-shim [flags] program.js [args...]
//	node-shim -engine wasm program.wasm [args...]
//	node-shim -i
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/node-shim/boot"
	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/config"
	"github.com/wippyai/node-shim/engine/js"
	"github.com/wippyai/node-shim/engine/wasm"
	"github.com/wippyai/node-shim/eventloop"
	"github.com/wippyai/node-shim/kernel"
	"github.com/wippyai/node-shim/process"
	"github.com/wippyai/node-shim/tick"
	"github.com/wippyai/node-shim/vfs"
)

const defaultConfigFile = "node-shim.toml"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile  = flag.String("config", "", "Path to a TOML config file (default ./"+defaultConfigFile+" if present)")
		engineKind  = flag.String("engine", "", "Engine: auto, js or wasm")
		cwd         = flag.String("cwd", "", "Initial working directory")
		envVars     = flag.String("env", "", "Environment variables (KEY=VAL,KEY2=VAL2)")
		cleanEnv    = flag.Bool("clean-env", false, "Do not inherit the host environment")
		stdin       = flag.String("stdin", "", "Guest stdin: inherit or null")
		logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
		keepAlive   = flag.Bool("keep-alive", false, "Keep running after an uncaught guest error")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	overrides := []struct {
		dst *string
		val string
	}{
		{&cfg.Engine.Kind, *engineKind},
		{&cfg.Process.Cwd, *cwd},
		{&cfg.Kernel.Stdin, *stdin},
		{&cfg.Log.Level, *logLevel},
	}
	for _, o := range overrides {
		if o.val != "" {
			*o.dst = o.val
		}
	}
	if *cleanEnv {
		cfg.Process.InheritEnv = false
	}
	if *keepAlive {
		cfg.Engine.KeepAliveOnGuestError = true
	}
	if *envVars != "" {
		if cfg.Process.Env == nil {
			cfg.Process.Env = make(map[string]string)
		}
		for _, kv := range strings.Split(*envVars, ",") {
			if k, v, ok := strings.Cut(kv, "="); ok {
				cfg.Process.Env[k] = v
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, err := cfg.Log.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	setLoggers(logger)

	if *interactive {
		if err := runInteractive(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Usage: node-shim [flags] <program> [args...]")
		fmt.Fprintln(os.Stderr, "       node-shim -i  (interactive mode)")
		flag.PrintDefaults()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	argv := append([]string{"node"}, flag.Args()...)
	code, err := runSession(ctx, cfg, argv, stdio{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if !config.Exists(defaultConfigFile) {
			return config.Default(), nil
		}
		path = defaultConfigFile
	}
	return config.Load(path)
}

func setLoggers(l *zap.Logger) {
	zap.ReplaceGlobals(l)
	for _, set := range []func(*zap.Logger){
		boot.SetLogger,
		bridge.SetLogger,
		eventloop.SetLogger,
		js.SetLogger,
		kernel.SetLogger,
		process.SetLogger,
		tick.SetLogger,
		vfs.SetLogger,
		wasm.SetLogger,
	} {
		set(l)
	}
}
