// Package engine defines how a guest program is executed.
//
// An Engine receives the program text and a Scope holding the process
// object and the require function, runs the program's top level in a fresh
// global scope, and reports an uncaught failure as a returned error instead
// of crashing the host. Work the program schedules (timers, callbacks)
// keeps running on the host loop after Execute returns.
package engine

import (
	"strings"

	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/process"
)

// Scope is the set of globals injected into a guest run.
type Scope struct {
	Process *process.Shim
	Require func(name string) (any, error)
	// Filename is the program path, used in stack traces and as argv[0]
	// for engines that need one.
	Filename string
}

// Engine executes guest programs.
type Engine interface {
	Name() string
	// Execute runs src. Errors are KindGuestExecution.
	Execute(src string, scope Scope) error
}

// Kind selects an engine implementation.
type Kind string

const (
	KindAuto Kind = "auto"
	KindJS   Kind = "js"
	KindWasm Kind = "wasm"
)

// wasmMagic opens every WebAssembly binary.
const wasmMagic = "\x00asm"

// Detect guesses the engine for src from its content.
func Detect(src string) Kind {
	if strings.HasPrefix(src, wasmMagic) {
		return KindWasm
	}
	return KindJS
}

// ParseKind validates an engine name from configuration.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case "", KindAuto:
		return KindAuto, nil
	case KindJS, KindWasm:
		return k, nil
	default:
		return "", errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Name(s).
			Detail("unknown engine kind").
			Build()
	}
}

// Auto dispatches each program to the engine matching its content.
type Auto struct {
	engines map[Kind]Engine
}

var _ Engine = (*Auto)(nil)

// NewAuto creates a dispatcher over the given engines, keyed by kind.
func NewAuto(engines map[Kind]Engine) *Auto {
	m := make(map[Kind]Engine, len(engines))
	for k, e := range engines {
		if e != nil {
			m[k] = e
		}
	}
	return &Auto{engines: m}
}

// Name implements Engine.
func (a *Auto) Name() string { return string(KindAuto) }

// Execute implements Engine.
func (a *Auto) Execute(src string, scope Scope) error {
	kind := Detect(src)
	e, ok := a.engines[kind]
	if !ok {
		return errors.GuestExecution(errors.Unsupported(errors.PhaseExecute, "no "+string(kind)+" engine configured"))
	}
	return e.Execute(src, scope)
}
