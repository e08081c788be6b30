// Package nodeshim presents a Node-style process to an unmodified guest
// program while every operating-system call travels over an asynchronous
// syscall bridge to a host kernel.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	nodeshim/
//	├── errors/          Structured error types (phase + kind)
//	├── eventloop/       Job loop on goja_nodejs/eventloop with reference counting
//	├── bridge/          CBOR syscall transport: client, messages, test fake
//	├── kernel/          Host side of the bridge: cwd, files, pipes, spawn, exit
//	├── resource/        Kernel descriptor table
//	├── tick/            Cooperative nextTick queue
//	├── vfs/             Bridge-backed filesystem client and stream handles
//	├── binding/         process.binding() capability table
//	├── modules/         require() virtual module table
//	├── process/         The guest's process object
//	├── engine/          Engine contract and content detection
//	│   ├── js/          JavaScript guests on the loop's goja runtime
//	│   └── wasm/        WASI command modules on wazero
//	├── boot/            Launch state machine
//	├── config/          TOML configuration
//	└── cmd/node-shim/   CLI and interactive REPL
//
// # Quick Start
//
// Wire a guest to an in-memory kernel:
//
//	guestConn, hostConn := bridge.Pipe()
//	k, _ := kernel.New(hostConn, kernel.Config{Argv: []string{"node", "app.js"}, Stdout: os.Stdout})
//	go k.Serve(ctx)
//
//	loop := eventloop.New()
//	client := bridge.NewClient(guestConn, loop)
//	client.Start()
//
//	fsys := vfs.New(client, loop)
//	shim := process.New(client, loop, binding.MustNew(binding.Defaults(fsys)))
//	resolver, _ := modules.New(modules.Defaults(modules.Deps{Bridge: client, FS: fsys, Paths: shim, Post: loop}))
//
//	b, _ := boot.New(boot.Options{
//	    Bridge:  client,
//	    Shim:    shim,
//	    Streams: boot.VFSStreams{FS: fsys},
//	    Source:  fsys,
//	    Engine:  js.New(loop),
//	    Require: resolver.Resolve,
//	})
//	b.Start()
//	_ = loop.Run(ctx)
//
// # Concurrency
//
// Everything on the guest side (process, tick queue, vfs streams, engines,
// bootstrapper) runs on the event loop goroutine. The bridge client's reader
// and the kernel run on their own goroutines and reach the guest side only
// through eventloop.Loop.Post.
//
// # Failure policy
//
// Looking up an unknown binding logs a warning and yields nil. Requiring an
// unknown module fails. A program that cannot be loaded, or that throws,
// has its error written to stderr and exits with status 1 after the write
// completes.
package nodeshim
