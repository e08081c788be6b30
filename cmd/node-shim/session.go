package main

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/node-shim/binding"
	"github.com/wippyai/node-shim/boot"
	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/config"
	"github.com/wippyai/node-shim/engine"
	"github.com/wippyai/node-shim/engine/js"
	"github.com/wippyai/node-shim/engine/wasm"
	"github.com/wippyai/node-shim/eventloop"
	"github.com/wippyai/node-shim/kernel"
	"github.com/wippyai/node-shim/modules"
	"github.com/wippyai/node-shim/process"
	"github.com/wippyai/node-shim/vfs"
)

// stdio is the host side of the guest's standard streams.
type stdio struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// runSession runs one guest to completion and returns its exit status.
// argv follows Node's layout: argv[0] is the interpreter, argv[1] the program.
func runSession(ctx context.Context, cfg *config.Config, argv []string, std stdio) (int, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	kind, err := engine.ParseKind(cfg.Engine.Kind)
	if err != nil {
		return 1, err
	}

	in := std.in
	if cfg.Kernel.Stdin == config.StdinNull {
		in = nil
	}

	guestConn, hostConn := bridge.Pipe()
	k, err := kernel.New(hostConn, kernel.Config{
		Stdin:  in,
		Stdout: std.out,
		Stderr: std.err,
		Env:    cfg.Environ(os.Environ()),
		Cwd:    cfg.Process.Cwd,
		Argv:   argv,
	})
	if err != nil {
		return 1, err
	}

	loop := eventloop.New()
	client := bridge.NewClient(guestConn, loop)
	defer func() { _ = client.Close() }()

	fsys := vfs.New(client, loop)
	bindings, err := binding.New(binding.Defaults(fsys))
	if err != nil {
		return 1, err
	}
	shim := process.New(client, loop, bindings)
	resolver, err := modules.New(modules.Defaults(modules.Deps{
		Bridge: client,
		FS:     fsys,
		Paths:  shim,
		Post:   loop,
	}))
	if err != nil {
		return 1, err
	}

	jsEngine := js.New(loop)
	wasmEngine := wasm.New(&wasm.Config{
		Stdin:            in,
		MemoryLimitPages: cfg.Engine.MemoryLimitPages,
		MountCwd:         cfg.Engine.MountCwd,
	})

	b, err := boot.New(boot.Options{
		Bridge:                client,
		Shim:                  shim,
		Streams:               boot.VFSStreams{FS: fsys},
		Source:                fsys,
		Engine:                selectEngine(kind, jsEngine, wasmEngine),
		Require:               resolver.Resolve,
		KeepAliveOnGuestError: cfg.Engine.KeepAliveOnGuestError,
	})
	if err != nil {
		return 1, err
	}
	jsEngine.OnUncaught(b.GuestError)
	shim.Ticks().OnError(b.GuestError)

	go func() {
		if err := k.Serve(ctx); err != nil {
			zap.L().Error("kernel stopped", zap.Error(err))
		}
	}()
	go func() {
		select {
		case <-k.Exited():
			loop.Stop()
		case <-ctx.Done():
		}
	}()
	client.Start()
	b.Start()

	if err := loop.Run(ctx); err != nil {
		return 1, err
	}
	// The loop went idle with the guest still alive: nothing is left that
	// could wake it, so the program has finished.
	if !loop.Stopped() && !shim.Exited() {
		code := 0
		if b.Err() != nil {
			code = 1
		}
		shim.Exit(code)
		if err := loop.Run(ctx); err != nil {
			return 1, err
		}
	}

	select {
	case <-k.Exited():
		return k.ExitCode(), nil
	case <-ctx.Done():
		return 1, ctx.Err()
	}
}

func selectEngine(kind engine.Kind, jsEngine *js.Engine, wasmEngine *wasm.Engine) engine.Engine {
	switch kind {
	case engine.KindJS:
		return jsEngine
	case engine.KindWasm:
		return wasmEngine
	default:
		return engine.NewAuto(map[engine.Kind]engine.Engine{
			engine.KindJS:   jsEngine,
			engine.KindWasm: wasmEngine,
		})
	}
}
