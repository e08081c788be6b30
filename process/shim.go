package process

import (
	"path"

	"go.uber.org/zap"

	"github.com/wippyai/node-shim/binding"
	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/tick"
)

// InputStream is the guest's stdin handle.
type InputStream interface {
	OnData(fn func([]byte))
	OnEnd(fn func())
	Resume()
	Pause()
}

// OutputStream is the guest's stdout or stderr handle.
type OutputStream interface {
	Write(data []byte, cb func(error))
	End(cb func(error))
}

// Shim is one guest process. It is not safe for concurrent use: every
// method must be called on the host loop goroutine.
type Shim struct {
	bridge      bridge.Bridge
	post        tick.Poster
	bindings    *binding.Registry
	ticks       *tick.Scheduler
	env         map[string]string
	stdin       InputStream
	stdout      OutputStream
	stderr      OutputStream
	onExit      []func(code int)
	argv        []string
	cwd         string
	exitCode    int
	started     bool
	initialized bool
	exiting     bool
}

// New creates a shim with placeholder identity. bindings may be nil, in
// which case every binding lookup misses.
func New(b bridge.Bridge, post tick.Poster, bindings *binding.Registry) *Shim {
	s := &Shim{
		bridge:   b,
		post:     post,
		bindings: bindings,
		ticks:    tick.New(post),
		env:      map[string]string{"NODE_DEBUG": "fs"},
	}
	s.ticks.OnError(func(err error) {
		Logger().Error("process: tick task failed", zap.Error(err))
	})
	return s
}

// Start installs the final argv and environment from the init event. It
// may be called once.
func (s *Shim) Start(argv []string, env map[string]string) error {
	if s.started {
		return errors.New(errors.PhaseBoot, errors.KindInvalidInput).
			Op("start").
			Detail("process identity already set").
			Build()
	}
	s.started = true
	s.argv = append([]string(nil), argv...)
	s.env = make(map[string]string, len(env))
	for k, v := range env {
		s.env[k] = v
	}
	return nil
}

// Init resolves the working directory with one getcwd round trip. cb runs
// exactly once, on a later loop turn, with nil or the transport failure.
func (s *Shim) Init(cb func(error)) {
	s.bridge.Call(bridge.OpGetcwd, nil, func(res bridge.Result) {
		err := s.applyCwd(res)
		s.post.Post(func() {
			if cb != nil {
				cb(err)
			}
		})
	})
}

func (s *Shim) applyCwd(res bridge.Result) error {
	if res.Err != nil {
		return res.Err
	}
	cwd, err := res.Args.String(0)
	if err != nil {
		return errors.TransportFailure(bridge.OpGetcwd, err)
	}
	s.cwd = cwd
	s.initialized = true
	Logger().Debug("process: cwd resolved", zap.String("cwd", cwd))
	return nil
}

// Initialized reports whether the working directory has been resolved.
func (s *Shim) Initialized() bool {
	return s.initialized
}

// Cwd returns the last resolved working directory, or "" before Init
// completes.
func (s *Shim) Cwd() string {
	return s.cwd
}

// Chdir changes the kernel's working directory and refreshes the snapshot.
func (s *Shim) Chdir(dir string, cb func(error)) {
	if cb == nil {
		cb = func(error) {}
	}
	if !s.initialized {
		err := errors.NotInitialized(errors.PhaseBoot, "process cwd")
		s.post.Post(func() { cb(err) })
		return
	}
	s.bridge.Call(bridge.OpChdir, []any{dir}, func(res bridge.Result) {
		if res.Err != nil {
			cb(res.Err)
			return
		}
		s.bridge.Call(bridge.OpGetcwd, nil, func(res bridge.Result) {
			cb(s.applyCwd(res))
		})
	})
}

// Resolve makes p absolute against the resolved working directory. It
// fails before Init completes.
func (s *Shim) Resolve(p string) (string, error) {
	if path.IsAbs(p) {
		return path.Clean(p), nil
	}
	if !s.initialized {
		return "", errors.NotInitialized(errors.PhaseBoot, "process cwd")
	}
	return path.Join(s.cwd, p), nil
}

// Exit requests termination with code. The request is queued on the tick
// scheduler; the queued task ends stdout and stderr and then notifies the
// kernel. Only the first call has an effect.
func (s *Shim) Exit(code int) {
	if s.exiting {
		Logger().Debug("process: exit already requested", zap.Int("code", code), zap.Int("first", s.exitCode))
		return
	}
	s.exiting = true
	s.exitCode = code
	s.ticks.Enqueue(func(...any) error {
		s.flushThenNotify(code)
		return nil
	})
}

func (s *Shim) flushThenNotify(code int) {
	var outs []OutputStream
	for _, o := range []OutputStream{s.stdout, s.stderr} {
		if o != nil {
			outs = append(outs, o)
		}
	}
	notify := func() {
		Logger().Debug("process: exit", zap.Int("code", code))
		s.bridge.Notify(bridge.OpExit, code)
		for _, fn := range s.onExit {
			fn(code)
		}
	}
	if len(outs) == 0 {
		notify()
		return
	}
	remaining := len(outs)
	for _, o := range outs {
		o.End(func(err error) {
			if err != nil {
				Logger().Warn("process: flushing output on exit", zap.Error(err))
			}
			remaining--
			if remaining == 0 {
				notify()
			}
		})
	}
}

// OnExit registers fn to run after the exit notification has been sent.
func (s *Shim) OnExit(fn func(code int)) {
	s.onExit = append(s.onExit, fn)
}

// Exited reports whether Exit has been called.
func (s *Shim) Exited() bool {
	return s.exiting
}

// ExitCode returns the code passed to the first Exit call.
func (s *Shim) ExitCode() (int, bool) {
	return s.exitCode, s.exiting
}

// Binding returns the named capability module. Unknown names are logged
// and yield nil; guests check for optional bindings and must not fail.
func (s *Shim) Binding(name string) binding.Module {
	if s.bindings != nil {
		if m, ok := s.bindings.Lookup(name); ok {
			return m
		}
	}
	Logger().Warn("process: unimplemented binding",
		zap.String("name", name),
		zap.Error(errors.UnimplementedBinding(name)))
	return nil
}

// NextTick queues fn on the shim's tick scheduler.
func (s *Shim) NextTick(fn tick.Task, args ...any) {
	s.ticks.Enqueue(fn, args...)
}

// Ticks returns the shim's scheduler.
func (s *Shim) Ticks() *tick.Scheduler {
	return s.ticks
}

// Argv returns a copy of the argument vector.
func (s *Shim) Argv() []string {
	return append([]string(nil), s.argv...)
}

// Env returns a copy of the environment.
func (s *Shim) Env() map[string]string {
	env := make(map[string]string, len(s.env))
	for k, v := range s.env {
		env[k] = v
	}
	return env
}

// Getenv looks up one environment variable.
func (s *Shim) Getenv(key string) (string, bool) {
	v, ok := s.env[key]
	return v, ok
}

// AttachStreams installs the standard stream handles.
func (s *Shim) AttachStreams(stdin InputStream, stdout, stderr OutputStream) {
	s.stdin = stdin
	s.stdout = stdout
	s.stderr = stderr
}

// Stdin returns the standard input handle, nil until streams are attached.
func (s *Shim) Stdin() InputStream { return s.stdin }

// Stdout returns the standard output handle.
func (s *Shim) Stdout() OutputStream { return s.stdout }

// Stderr returns the standard error handle.
func (s *Shim) Stderr() OutputStream { return s.stderr }
