package boot

import (
	"go.uber.org/zap"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/engine"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/process"
	"github.com/wippyai/node-shim/vfs"
)

// State is a bootstrap phase.
type State int

const (
	WaitingForInit State = iota
	ResolvingCwd
	WiringStreams
	LoadingProgram
	Executing
	Terminated
	FailedLoad
	FailedInit
)

var stateNames = [...]string{
	WaitingForInit: "waiting_for_init",
	ResolvingCwd:   "resolving_cwd",
	WiringStreams:  "wiring_streams",
	LoadingProgram: "loading_program",
	Executing:      "executing",
	Terminated:     "terminated",
	FailedLoad:     "failed_load",
	FailedInit:     "failed_init",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// SourceEncoding is the encoding script sources are decoded with.
const SourceEncoding = "utf-8"

// SourceReader reads program files. *vfs.FS satisfies it.
type SourceReader interface {
	ReadFile(path string, cb func([]byte, error))
}

// Options configures a Bootstrapper.
type Options struct {
	Bridge  bridge.Bridge
	Shim    *process.Shim
	Streams StreamFactory
	Source  SourceReader
	Engine  engine.Engine
	// Require resolves the guest's module imports.
	Require func(name string) (any, error)
	// KeepAliveOnGuestError only logs a failure raised while executing the
	// guest; the process keeps running until something else exits it.
	KeepAliveOnGuestError bool
}

// Bootstrapper drives one guest launch. All methods except State, Done and
// Err must be called on the loop goroutine.
type Bootstrapper struct {
	opts         Options
	onTransition func(from, to State)
	done         chan struct{}
	err          error
	state        State
}

// New validates opts and creates a Bootstrapper in WaitingForInit.
func New(opts Options) (*Bootstrapper, error) {
	missing := ""
	switch {
	case opts.Bridge == nil:
		missing = "bridge"
	case opts.Shim == nil:
		missing = "process shim"
	case opts.Streams == nil:
		missing = "stream factory"
	case opts.Source == nil:
		missing = "source reader"
	case opts.Engine == nil:
		missing = "engine"
	}
	if missing != "" {
		return nil, errors.InvalidInput(errors.PhaseBoot, "bootstrap requires a "+missing)
	}
	b := &Bootstrapper{opts: opts, done: make(chan struct{})}
	opts.Shim.OnExit(func(code int) {
		Logger().Debug("boot: guest exited", zap.Int("code", code))
		b.transition(Terminated)
	})
	return b, nil
}

// OnTransition sets an observer called on every state change.
func (b *Bootstrapper) OnTransition(fn func(from, to State)) {
	b.onTransition = fn
}

// State returns the current state.
func (b *Bootstrapper) State() State {
	return b.state
}

// Done is closed on entering Terminated.
func (b *Bootstrapper) Done() <-chan struct{} {
	return b.done
}

// Err returns the failure that terminated the launch, if any.
func (b *Bootstrapper) Err() error {
	return b.err
}

// Start subscribes to the init event.
func (b *Bootstrapper) Start() {
	b.opts.Bridge.OnInit(b.onInit)
}

func (b *Bootstrapper) transition(to State) {
	from := b.state
	if from == to || from == Terminated {
		return
	}
	b.state = to
	Logger().Debug("boot: transition", zap.Stringer("from", from), zap.Stringer("to", to))
	if b.onTransition != nil {
		b.onTransition(from, to)
	}
	if to == Terminated {
		close(b.done)
	}
}

func (b *Bootstrapper) onInit(ev bridge.InitEvent) {
	if b.state != WaitingForInit {
		Logger().Warn("boot: init event in unexpected state", zap.Stringer("state", b.state))
		return
	}
	shim := b.opts.Shim
	b.transition(ResolvingCwd)
	if err := shim.Start(ev.Argv, ev.Env); err != nil {
		b.failInit(err)
		return
	}
	shim.Init(func(err error) {
		if err != nil {
			b.failInit(err)
			return
		}
		b.wire()
	})
}

func (b *Bootstrapper) wire() {
	b.transition(WiringStreams)
	s := b.opts.Streams
	b.opts.Shim.AttachStreams(s.Input(0), s.Output(1), s.Output(2))
	b.load()
}

func (b *Bootstrapper) load() {
	b.transition(LoadingProgram)
	argv := b.opts.Shim.Argv()
	if len(argv) < 2 || argv[1] == "" {
		b.fail(FailedLoad, errors.ProgramLoad("", errors.InvalidInput(errors.PhaseLoad, "no program path in argv")))
		return
	}
	path := argv[1]
	b.opts.Source.ReadFile(path, func(data []byte, err error) {
		if err != nil {
			b.fail(FailedLoad, errors.ProgramLoad(path, err))
			return
		}
		src, err := DecodeSource(data)
		if err != nil {
			b.fail(FailedLoad, errors.ProgramLoad(path, err))
			return
		}
		b.execute(path, StripDirective(src))
	})
}

// DecodeSource turns a program file into the text handed to the engine.
// Scripts are decoded as SourceEncoding, so invalid sequences become U+FFFD.
// WebAssembly binaries pass through byte for byte.
func DecodeSource(data []byte) (string, error) {
	if engine.Detect(string(data)) == engine.KindWasm {
		return string(data), nil
	}
	return vfs.Decode(data, SourceEncoding)
}

func (b *Bootstrapper) execute(path, src string) {
	b.transition(Executing)
	err := b.opts.Engine.Execute(src, engine.Scope{
		Process:  b.opts.Shim,
		Require:  b.opts.Require,
		Filename: path,
	})
	if err != nil {
		b.GuestError(err)
	}
}

// GuestError applies the guest failure policy to err: it is reported on
// stderr and the process exits with status 1, unless KeepAliveOnGuestError
// is set. Engines route exceptions thrown by callbacks here, as do failed
// tick tasks. Errors after exit are only logged.
func (b *Bootstrapper) GuestError(err error) {
	if b.opts.KeepAliveOnGuestError || b.opts.Shim.Exited() {
		if b.err == nil {
			b.err = err
		}
		Logger().Error("boot: guest failed", zap.Error(err))
		return
	}
	b.fail(Executing, err)
}

// failInit reports a startup failure. The streams are not wired yet, so
// stderr is attached on its own.
func (b *Bootstrapper) failInit(err error) {
	b.opts.Shim.AttachStreams(nil, nil, b.opts.Streams.Output(2))
	b.fail(FailedInit, err)
}

// fail writes the error to stderr and exits with status 1 once the write
// has completed.
func (b *Bootstrapper) fail(state State, err error) {
	b.err = err
	b.transition(state)
	Logger().Error("boot: launch failed", zap.Stringer("state", state), zap.Error(err))

	shim := b.opts.Shim
	out := shim.Stderr()
	if out == nil {
		shim.Exit(1)
		return
	}
	msg := "error: " + errors.Description(err) + "\n"
	out.Write([]byte(msg), func(werr error) {
		if werr != nil {
			Logger().Warn("boot: writing failure to stderr", zap.Error(werr))
		}
		shim.Exit(1)
	})
}

// StripDirective removes a leading "#!" line, including its terminator.
// A "#!" anywhere but offset 0 is left alone.
func StripDirective(src string) string {
	if len(src) < 2 || src[0] != '#' || src[1] != '!' {
		return src
	}
	for i := 2; i < len(src); i++ {
		if src[i] == '\n' {
			return src[i+1:]
		}
	}
	return ""
}
