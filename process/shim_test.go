package process

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/node-shim/binding"
	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/bridge/bridgetest"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/eventloop"
)

func newShim(t *testing.T, bindings *binding.Registry) (*Shim, *bridgetest.Fake, *eventloop.Loop) {
	t.Helper()
	loop := eventloop.New()
	fake := bridgetest.New(loop)
	fake.Handle(bridge.OpGetcwd, func([]any) ([]any, error) { return []any{"/home/guest"}, nil })
	return New(fake, loop, bindings), fake, loop
}

func run(t *testing.T, loop *eventloop.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := loop.Run(ctx); err != nil {
		t.Fatalf("loop: %v", err)
	}
}

// recordingStream is an OutputStream that logs writes and ends.
type recordingStream struct {
	name   string
	events *[]string
	post   func(func())
}

func (r *recordingStream) Write(data []byte, cb func(error)) {
	*r.events = append(*r.events, r.name+" write "+string(data))
	r.post(func() {
		if cb != nil {
			cb(nil)
		}
	})
}

func (r *recordingStream) End(cb func(error)) {
	*r.events = append(*r.events, r.name+" end")
	r.post(func() {
		if cb != nil {
			cb(nil)
		}
	})
}

func TestShim_PlaceholderIdentity(t *testing.T) {
	s, _, _ := newShim(t, nil)
	if v, ok := s.Getenv("NODE_DEBUG"); !ok || v != "fs" {
		t.Errorf("placeholder env = %v", s.Env())
	}
	if len(s.Argv()) != 0 {
		t.Errorf("placeholder argv = %v", s.Argv())
	}
}

func TestShim_Start(t *testing.T) {
	s, _, _ := newShim(t, nil)
	argv := []string{"node", "/app.js"}
	if err := s.Start(argv, map[string]string{"FOO": "bar"}); err != nil {
		t.Fatal(err)
	}
	argv[1] = "mutated"
	if s.Argv()[1] != "/app.js" {
		t.Error("Start must copy argv")
	}
	if _, ok := s.Getenv("NODE_DEBUG"); ok {
		t.Error("placeholder env should be replaced")
	}
	if err := s.Start(nil, nil); err == nil {
		t.Error("second Start should fail")
	}
}

func TestShim_InitResolvesCwdAsynchronously(t *testing.T) {
	s, fake, loop := newShim(t, nil)
	calls := 0
	var sawCwd string

	loop.Post(func() {
		s.Init(func(err error) {
			calls++
			if err != nil {
				t.Errorf("Init: %v", err)
			}
			sawCwd = s.Cwd()
		})
		if s.Cwd() != "" || s.Initialized() {
			t.Error("cwd must not be resolved synchronously")
		}
	})
	run(t, loop)

	if calls != 1 {
		t.Fatalf("callback ran %d times", calls)
	}
	if sawCwd != "/home/guest" {
		t.Errorf("cwd = %q", sawCwd)
	}
	if ops := fake.Ops(); len(ops) != 1 || ops[0] != bridge.OpGetcwd {
		t.Errorf("ops = %v", ops)
	}
}

func TestShim_InitPropagatesTransportFailure(t *testing.T) {
	s, fake, loop := newShim(t, nil)
	fake.Handle(bridge.OpGetcwd, func([]any) ([]any, error) {
		return nil, stderrors.New("EIO: i/o error, getcwd")
	})

	var got error
	called := false
	loop.Post(func() {
		s.Init(func(err error) {
			called = true
			got = err
		})
	})
	run(t, loop)

	if !called {
		t.Fatal("callback never ran")
	}
	if !stderrors.Is(got, errors.ErrTransportFailure) {
		t.Errorf("expected transport failure, got %v", got)
	}
	if s.Initialized() {
		t.Error("shim must stay uninitialized")
	}
}

func TestShim_Resolve(t *testing.T) {
	s, _, loop := newShim(t, nil)
	if _, err := s.Resolve("a.txt"); !stderrors.Is(err, &errors.Error{Phase: errors.PhaseBoot, Kind: errors.KindNotInitialized}) {
		t.Errorf("relative resolve before init: %v", err)
	}
	if p, err := s.Resolve("/etc/../tmp"); err != nil || p != "/tmp" {
		t.Errorf("absolute resolve = %q, %v", p, err)
	}

	loop.Post(func() { s.Init(nil) })
	run(t, loop)

	if p, _ := s.Resolve("src/../a.txt"); p != "/home/guest/a.txt" {
		t.Errorf("resolve = %q", p)
	}
}

func TestShim_Chdir(t *testing.T) {
	s, fake, loop := newShim(t, nil)
	cwd := "/home/guest"
	fake.Handle(bridge.OpGetcwd, func([]any) ([]any, error) { return []any{cwd}, nil })
	fake.Handle(bridge.OpChdir, func(args []any) ([]any, error) {
		cwd = "/home/guest/" + args[0].(string)
		return nil, nil
	})

	var early error
	loop.Post(func() {
		s.Chdir("src", func(err error) { early = err })
		s.Init(func(error) {
			s.Chdir("src", func(err error) {
				if err != nil {
					t.Errorf("Chdir: %v", err)
				}
			})
		})
	})
	run(t, loop)

	if early == nil {
		t.Error("Chdir before Init should fail")
	}
	if s.Cwd() != "/home/guest/src" {
		t.Errorf("cwd = %q", s.Cwd())
	}
}

func TestShim_Binding(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(zap.NewNop())

	fsMod := binding.Module{"readFile": "fs-capability"}
	s, _, _ := newShim(t, binding.MustNew(map[binding.Name]binding.Module{binding.FS: fsMod}))

	if got := s.Binding("fs"); got["readFile"] != "fs-capability" {
		t.Errorf("Binding(fs) = %v", got)
	}
	if got := s.Binding("nonexistent"); got != nil {
		t.Errorf("Binding(nonexistent) = %v, want nil", got)
	}

	entries := logs.FilterMessage("process: unimplemented binding").All()
	if len(entries) != 1 || entries[0].ContextMap()["name"] != "nonexistent" {
		t.Errorf("expected one warning for the miss, got %v", entries)
	}
}

func TestShim_ExitIsDeferred(t *testing.T) {
	s, fake, loop := newShim(t, nil)

	loop.Post(func() {
		s.Exit(3)
		if len(fake.Notifications()) != 0 {
			t.Error("exit must not be sent inline")
		}
		s.Exit(9)
	})
	run(t, loop)

	n := fake.Notifications()
	if len(n) != 1 || n[0].Op != bridge.OpExit || n[0].Args[0] != 3 {
		t.Fatalf("notifications = %+v", n)
	}
	if code, ok := s.ExitCode(); !ok || code != 3 {
		t.Errorf("ExitCode = %d, %v", code, ok)
	}
}

func TestShim_ExitEndsStreamsFirst(t *testing.T) {
	s, fake, loop := newShim(t, nil)
	var events []string
	out := &recordingStream{name: "stdout", events: &events, post: loop.Post}
	errOut := &recordingStream{name: "stderr", events: &events, post: loop.Post}
	s.AttachStreams(nil, out, errOut)
	s.OnExit(func(code int) {
		events = append(events, fmt.Sprintf("exited %d", code))
	})

	loop.Post(func() {
		out.Write([]byte("bye"), nil)
		s.Exit(0)
	})
	run(t, loop)

	if got := strings.Join(events, ","); got != "stdout write bye,stdout end,stderr end,exited 0" {
		t.Errorf("stream events = %s", got)
	}
	if len(fake.Notifications()) != 1 {
		t.Errorf("expected one exit notification, got %d", len(fake.Notifications()))
	}
}

func TestShim_NextTick(t *testing.T) {
	s, _, loop := newShim(t, nil)
	var got []any
	loop.Post(func() {
		s.NextTick(func(args ...any) error {
			got = args
			return nil
		}, "a", 1)
	})
	run(t, loop)
	if len(got) != 2 || got[0] != "a" || got[1] != 1 {
		t.Errorf("args = %v", got)
	}
	if s.Ticks().Passes() != 1 {
		t.Errorf("passes = %d", s.Ticks().Passes())
	}
}
