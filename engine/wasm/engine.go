// Package wasm runs WebAssembly guests on wazero.
//
// A guest is a WASI preview1 command module. Its argv is the process argv
// without the leading interpreter entry, its environment is the process
// environment, and its stdout and stderr are the process output streams.
// The module runs to completion inside Execute; proc_exit becomes a process
// exit with the same status.
package wasm

import (
	"context"
	crand "crypto/rand"
	stderrors "errors"
	"io"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/node-shim/engine"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/process"
)

const (
	ebadf     = 8          // POSIX EBADF error code
	invalidFD = 0xFFFFFFFF // -1 as uint32
)

// Config holds configuration for the wasm engine.
type Config struct {
	// Stdin feeds fd 0. Guests read synchronously, so process stdin is not
	// used; nil means an empty stream.
	Stdin io.Reader

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// MountCwd exposes the process working directory to the guest as "/".
	MountCwd bool
}

// Engine is the WebAssembly engine.
type Engine struct {
	cfg Config
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine. cfg may be nil.
func New(cfg *Config) *Engine {
	e := &Engine{}
	if cfg != nil {
		e.cfg = *cfg
	}
	return e
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return string(engine.KindWasm) }

// Execute implements engine.Engine. It compiles src, runs the module's
// _start export, and requests process exit with the module's status.
func (e *Engine) Execute(src string, scope engine.Scope) error {
	p := scope.Process
	if p == nil {
		return errors.GuestExecution(errors.InvalidInput(errors.PhaseExecute, "scope has no process"))
	}
	ctx := context.Background()

	runtimeCfg := wazero.NewRuntimeConfig()
	if e.cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	defer func() { _ = rt.Close(ctx) }()

	if _, err := instantiateWASI(ctx, rt); err != nil {
		return errors.GuestExecution(err)
	}

	compiled, err := rt.CompileModule(ctx, []byte(src))
	if err != nil {
		return errors.ProgramLoad(scope.Filename, err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, e.moduleConfig(p))
	if mod != nil {
		defer func() { _ = mod.Close(ctx) }()
	}

	var exitErr *sys.ExitError
	switch {
	case stderrors.As(err, &exitErr):
		code := int(exitErr.ExitCode())
		Logger().Debug("wasm: guest exited", zap.Int("code", code))
		p.Exit(code)
		return nil
	case err != nil:
		return errors.GuestExecution(err)
	}
	p.Exit(0)
	return nil
}

func (e *Engine) moduleConfig(p *process.Shim) wazero.ModuleConfig {
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(streamWriter{out: p.Stdout(), name: "stdout"}).
		WithStderr(streamWriter{out: p.Stderr(), name: "stderr"}).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(crand.Reader)

	if argv := p.Argv(); len(argv) > 1 {
		cfg = cfg.WithArgs(argv[1:]...)
	}

	env := p.Env()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cfg = cfg.WithEnv(k, env[k])
	}

	if e.cfg.Stdin != nil {
		cfg = cfg.WithStdin(e.cfg.Stdin)
	}
	if e.cfg.MountCwd && p.Cwd() != "" {
		cfg = cfg.WithFSConfig(wazero.NewFSConfig().WithDirMount(p.Cwd(), "/"))
	}
	return cfg
}

// instantiateWASI instantiates WASI preview1 plus the adapter functions
// expected by modules built with the component model adapter.
func instantiateWASI(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(wasi_snapshot_preview1.ModuleName)
	wasi_snapshot_preview1.NewFunctionExporter().ExportFunctions(builder)

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, _ []uint64) {
		}), nil, nil).
		Export("reset_adapter_state")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = ebadf
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("adapter_close_badfd")

	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			stack[0] = invalidFD
		}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32}).
		Export("adapter_open_badfd")

	return builder.Instantiate(ctx)
}

// streamWriter forwards guest fd writes to a process output stream. The
// guest reuses its buffers, so each write is copied.
type streamWriter struct {
	out  process.OutputStream
	name string
}

func (w streamWriter) Write(p []byte) (int, error) {
	if w.out == nil || len(p) == 0 {
		return len(p), nil
	}
	data := append([]byte(nil), p...)
	w.out.Write(data, func(err error) {
		if err != nil {
			Logger().Warn("wasm: guest output dropped", zap.String("stream", w.name), zap.Error(err))
		}
	})
	return len(p), nil
}
