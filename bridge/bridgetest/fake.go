// Package bridgetest provides an in-process Bridge for tests.
package bridgetest

import (
	stderrors "errors"
	"sync"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/errors"
)

// Handler answers one call with result values or an error string source.
type Handler func(args []any) ([]any, error)

// Call is a recorded request or notification.
type Call struct {
	Op   string
	Args []any
}

// Fake is a Bridge whose kernel is a table of handlers. Completions are
// posted to the loop like the real client does, holding a loop reference
// while in flight. Unhandled ops fail with ENOSYS.
type Fake struct {
	loop     bridge.Loop
	handlers map[string]Handler
	onInit   func(bridge.InitEvent)
	early    *bridge.InitEvent
	calls    []Call
	notifies []Call
	events   []string
	mu       sync.Mutex
}

var _ bridge.Bridge = (*Fake)(nil)

// New creates a fake bound to loop.
func New(loop bridge.Loop) *Fake {
	return &Fake{loop: loop, handlers: make(map[string]Handler)}
}

// Handle sets the handler for op.
func (f *Fake) Handle(op string, h Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[op] = h
}

// Call implements bridge.Bridge.
func (f *Fake) Call(op string, args []any, cb bridge.Callback) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Op: op, Args: args})
	f.events = append(f.events, "call "+op)
	h := f.handlers[op]
	f.mu.Unlock()

	f.loop.Ref()
	res := bridge.Result{Op: op}
	var results []any
	var err error
	if h == nil {
		err = stderrors.New("ENOSYS: function not implemented, " + op)
	} else {
		results, err = h(args)
	}
	if err != nil {
		res.Err = errors.TransportFailure(op, err)
	} else if res.Args, err = bridge.EncodeArgs(results...); err != nil {
		res.Err = errors.TransportFailure(op, err)
	}

	f.loop.Post(func() {
		f.loop.Unref()
		f.record("done " + op)
		if cb != nil {
			cb(res)
		}
	})
}

// Notify implements bridge.Bridge.
func (f *Fake) Notify(op string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifies = append(f.notifies, Call{Op: op, Args: args})
	f.events = append(f.events, "notify "+op)
}

// OnInit implements bridge.Bridge.
func (f *Fake) OnInit(fn func(bridge.InitEvent)) {
	f.mu.Lock()
	f.onInit = fn
	ev := f.early
	f.early = nil
	f.mu.Unlock()
	if ev != nil {
		f.loop.Post(func() { fn(*ev) })
	}
}

// SendInit delivers the startup event on the loop.
func (f *Fake) SendInit(argv []string, env map[string]string) {
	if env == nil {
		env = make(map[string]string)
	}
	ev := bridge.InitEvent{Argv: argv, Env: env}
	f.mu.Lock()
	fn := f.onInit
	if fn == nil {
		f.early = &ev
	}
	f.mu.Unlock()
	if fn != nil {
		f.loop.Post(func() { fn(ev) })
	}
}

// Calls returns the recorded requests.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Ops returns the op names of the recorded requests in issue order.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.Op
	}
	return ops
}

// Notifications returns the recorded notifications.
func (f *Fake) Notifications() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.notifies...)
}

// Events returns the interleaved log of "call op", "done op" and
// "notify op" entries.
func (f *Fake) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *Fake) record(ev string) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}
