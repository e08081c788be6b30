// Package js runs JavaScript guests on goja.
//
// Guests run on the goja runtime owned by the host event loop
// (goja_nodejs/eventloop). Execute installs the Node-style surface the
// guest expects on it: process, require, console and the timer functions,
// the latter backed by the node loop's SetTimeout and SetInterval. The
// runtime is confined to the loop goroutine; every callback the guest
// registers is invoked from a loop job.
package js

import (
	stderrors "errors"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"

	"github.com/wippyai/node-shim/engine"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/eventloop"
)

// Loop is the part of the host loop the engine runs on.
type Loop interface {
	Runtime() *goja.Runtime
	AfterFunc(d time.Duration, fn func()) *eventloop.Timer
	Every(d time.Duration, fn func()) *eventloop.Timer
}

// Engine is the JavaScript engine.
type Engine struct {
	loop       Loop
	onUncaught func(error)
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine scheduling timers and callbacks on loop.
func New(loop Loop) *Engine {
	return &Engine{loop: loop}
}

// Name implements engine.Engine.
func (e *Engine) Name() string { return string(engine.KindJS) }

// OnUncaught sets the handler for exceptions thrown by callbacks that run
// after Execute has returned (timers, I/O completions). By default they are
// logged.
func (e *Engine) OnUncaught(fn func(error)) {
	e.onUncaught = fn
}

// Execute implements engine.Engine. It must be called from a loop job.
func (e *Engine) Execute(src string, scope engine.Scope) error {
	if scope.Process == nil {
		return errors.GuestExecution(errors.InvalidInput(errors.PhaseExecute, "scope has no process"))
	}
	vm := e.loop.Runtime()
	if vm == nil {
		return errors.GuestExecution(errors.NotInitialized(errors.PhaseExecute, "loop runtime"))
	}
	g := newGuest(e, vm, scope)
	if err := g.install(); err != nil {
		return errors.GuestExecution(err)
	}

	name := scope.Filename
	if name == "" {
		name = "<guest>"
	}
	// Syntax errors come back as *goja.CompilerSyntaxError, whose text is
	// "SyntaxError: file: Line l:c ...".
	prog, err := goja.Compile(name, src, false)
	if err != nil {
		return errors.GuestExecution(err)
	}
	_, err = g.vm.RunProgram(prog)
	if err = g.settle(err); err != nil {
		return errors.GuestExecution(err)
	}
	return nil
}

func (e *Engine) report(err error) {
	if e.onUncaught != nil {
		e.onUncaught(err)
		return
	}
	Logger().Error("js: uncaught exception", zap.Error(err))
}

// exitSignal interrupts the runtime after process.exit.
type exitSignal struct {
	code int
}

// guest is the per-Execute state: the loop's runtime and its bindings.
type guest struct {
	vm        *goja.Runtime
	engine    *Engine
	scope     engine.Scope
	timers    map[int64]*eventloop.Timer
	sources   map[*goja.Object]readable
	sinks     map[*goja.Object]writable
	modules   map[string]goja.Value
	nextTimer int64
}

func newGuest(e *Engine, vm *goja.Runtime, scope engine.Scope) *guest {
	vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
	return &guest{
		vm:      vm,
		engine:  e,
		scope:   scope,
		timers:  make(map[int64]*eventloop.Timer),
		sources: make(map[*goja.Object]readable),
		sinks:   make(map[*goja.Object]writable),
		modules: make(map[string]goja.Value),
	}
}

func (g *guest) install() error {
	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(printer{g: g}))
	registry.Enable(g.vm)
	console.Enable(g.vm)

	proc, err := g.processObject()
	if err != nil {
		return err
	}
	globals := map[string]any{
		"process":        proc,
		"require":        g.require,
		"setTimeout":     g.setTimeout,
		"setInterval":    g.setInterval,
		"setImmediate":   g.setImmediate,
		"clearTimeout":   g.clearTimer,
		"clearInterval":  g.clearTimer,
		"clearImmediate": g.clearTimer,
	}
	for name, v := range globals {
		if err := g.vm.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

// stopped reports whether the guest has exited; no further guest code runs.
func (g *guest) stopped() bool {
	return g.scope.Process.Exited()
}

// exit requests process exit and unwinds the running script.
func (g *guest) exit(code int) {
	g.scope.Process.Exit(code)
	for id, t := range g.timers {
		t.Stop()
		delete(g.timers, id)
	}
	g.vm.Interrupt(exitSignal{code: code})
}

// settle filters the interrupt raised by process.exit out of err.
func (g *guest) settle(err error) error {
	if err == nil {
		return nil
	}
	var ie *goja.InterruptedError
	if stderrors.As(err, &ie) {
		if _, ok := ie.Value().(exitSignal); ok {
			g.vm.ClearInterrupt()
			return nil
		}
	}
	return err
}

// call invokes fn unless the guest has exited and returns its exception.
func (g *guest) call(fn goja.Callable, args ...goja.Value) error {
	if fn == nil || g.stopped() {
		return nil
	}
	_, err := fn(goja.Undefined(), args...)
	return g.settle(err)
}

// callback invokes fn from a loop job and reports what it throws.
func (g *guest) callback(fn goja.Callable, args ...goja.Value) {
	if err := g.call(fn, args...); err != nil {
		g.engine.report(errors.GuestExecution(err))
	}
}
