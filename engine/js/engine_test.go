package js

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/node-shim/binding"
	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/bridge/bridgetest"
	"github.com/wippyai/node-shim/engine"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/eventloop"
	"github.com/wippyai/node-shim/modules"
	"github.com/wippyai/node-shim/process"
	"github.com/wippyai/node-shim/vfs"
)

// captureStream collects guest output.
type captureStream struct {
	b    *strings.Builder
	post func(func())
}

func (c captureStream) Write(data []byte, cb func(error)) {
	c.b.WriteString(string(data))
	c.post(func() {
		if cb != nil {
			cb(nil)
		}
	})
}

func (c captureStream) End(cb func(error)) {
	c.post(func() {
		if cb != nil {
			cb(nil)
		}
	})
}

type fixture struct {
	loop     *eventloop.Loop
	fake     *bridgetest.Fake
	shim     *process.Shim
	engine   *Engine
	resolver *modules.Resolver
	stdout   strings.Builder
	stderr   strings.Builder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{loop: eventloop.New()}
	f.fake = bridgetest.New(f.loop)
	f.fake.Handle(bridge.OpGetcwd, func([]any) ([]any, error) { return []any{"/work"}, nil })

	fsys := vfs.New(f.fake, f.loop)
	f.shim = process.New(f.fake, f.loop, binding.MustNew(binding.Defaults(fsys)))
	if err := f.shim.Start([]string{"node", "/work/app.js", "--flag"}, map[string]string{"HOME": "/home/guest"}); err != nil {
		t.Fatal(err)
	}
	f.shim.AttachStreams(nil,
		captureStream{b: &f.stdout, post: f.loop.Post},
		captureStream{b: &f.stderr, post: f.loop.Post})

	r, err := modules.New(modules.Defaults(modules.Deps{
		Bridge: f.fake,
		FS:     fsys,
		Paths:  f.shim,
		Post:   f.loop,
	}))
	if err != nil {
		t.Fatal(err)
	}
	f.resolver = r
	f.engine = New(f.loop)
	return f
}

// exec runs src once the shim is initialized and drives the loop to idle.
func (f *fixture) exec(t *testing.T, src string) error {
	t.Helper()
	var execErr error
	f.shim.Init(func(err error) {
		if err != nil {
			t.Errorf("init: %v", err)
			return
		}
		execErr = f.engine.Execute(src, engine.Scope{
			Process:  f.shim,
			Require:  f.resolver.Resolve,
			Filename: "/work/app.js",
		})
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.loop.Run(ctx); err != nil {
		t.Fatalf("loop: %v", err)
	}
	return execErr
}

func (f *fixture) exitCode(t *testing.T) (int, bool) {
	t.Helper()
	for _, n := range f.fake.Notifications() {
		if n.Op == bridge.OpExit {
			code, ok := n.Args[0].(int)
			if !ok {
				t.Fatalf("exit code has type %T", n.Args[0])
			}
			return code, true
		}
	}
	return 0, false
}

func TestEngine_ConsoleAndProcess(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		console.log("argv", process.argv.slice(1).join(" "));
		console.log("home", process.env.HOME);
		console.log("cwd", process.cwd());
		console.error("oops");
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "argv /work/app.js --flag\nhome /home/guest\ncwd /work\n"
	if f.stdout.String() != want {
		t.Errorf("stdout = %q, want %q", f.stdout.String(), want)
	}
	if f.stderr.String() != "oops\n" {
		t.Errorf("stderr = %q", f.stderr.String())
	}
}

func TestEngine_ExitStopsGuest(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		setTimeout(function () { console.log("timer"); }, 0);
		process.stdout.write("before\n");
		process.exit(7);
		console.log("after");
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if f.stdout.String() != "before\n" {
		t.Errorf("stdout = %q", f.stdout.String())
	}
	code, ok := f.exitCode(t)
	if !ok || code != 7 {
		t.Errorf("exit notification = %d, %v", code, ok)
	}
}

func TestEngine_RequireUnknownModule(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		try {
			require("left-pad");
		} catch (e) {
			console.log(e.name + ": " + e.message);
		}
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.stdout.String(); got != "ReferenceError: unknown module left-pad\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestEngine_RequireIsCached(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		const a = require("path"), b = require("path");
		console.log(a === b, a.join("/a", "b", "../c"), a.sep);
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.stdout.String(); got != "true /a/c /\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestEngine_ThrowIsGuestExecution(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `throw new Error("boom")`)
	if !stderrors.Is(err, errors.ErrGuestExecution) {
		t.Fatalf("expected guest execution error, got %v", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("error %q does not mention the exception", err)
	}
}

func TestEngine_SyntaxErrorPrefixedOnce(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, "var = ;")
	if !stderrors.Is(err, errors.ErrGuestExecution) {
		t.Fatalf("expected guest execution error, got %v", err)
	}
	desc := errors.Description(err)
	if !strings.HasPrefix(desc, "SyntaxError: ") || strings.Count(desc, "SyntaxError") != 1 {
		t.Errorf("description = %q", desc)
	}
}

func TestEngine_TickBeforeTimer(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		process.nextTick(function (x) { console.log("tick", x); }, 1);
		setTimeout(function () { console.log("timeout"); }, 0);
		setImmediate(function () { console.log("immediate"); });
		console.log("sync");
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := f.stdout.String()
	if !strings.HasPrefix(out, "sync\ntick 1\n") {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(out, "timeout\n") || !strings.Contains(out, "immediate\n") {
		t.Errorf("timers did not fire: %q", out)
	}
}

func TestEngine_ClearInterval(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		let n = 0;
		const id = setInterval(function () {
			n++;
			if (n === 3) {
				clearInterval(id);
				console.log("done", n);
			}
		}, 1);
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.stdout.String(); got != "done 3\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestEngine_ReadFileErrorCode(t *testing.T) {
	f := newFixture(t)
	f.fake.Handle(bridge.OpReadFile, func(args []any) ([]any, error) {
		if args[0] == "/work/data.txt" {
			return []any{[]byte("payload")}, nil
		}
		return nil, stderrors.New("ENOENT: no such file or directory, open 'missing.txt'")
	})
	err := f.exec(t, `
		const fs = require("fs");
		fs.readFile("data.txt", "utf8", function (err, data) {
			console.log("ok", err, data);
			fs.readFile("missing.txt", function (err) {
				console.log(err.code, err.message);
			});
		});
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "ok null payload\nENOENT ENOENT: no such file or directory, open 'missing.txt'\n"
	if got := f.stdout.String(); got != want {
		t.Errorf("stdout = %q, want %q", got, want)
	}
}

func TestEngine_Binding(t *testing.T) {
	f := newFixture(t)
	err := f.exec(t, `
		console.log(process.binding("nope") === null);
		console.log(typeof process.binding("constants"));
	`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := f.stdout.String(); got != "true\nobject\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestEngine_UncaughtInCallback(t *testing.T) {
	f := newFixture(t)
	var uncaught []error
	f.engine.OnUncaught(func(err error) { uncaught = append(uncaught, err) })
	err := f.exec(t, `setTimeout(function () { throw new Error("late"); }, 0);`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(uncaught) != 1 || !strings.Contains(uncaught[0].Error(), "late") {
		t.Errorf("uncaught = %v", uncaught)
	}
}

func TestEngine_RequiresProcess(t *testing.T) {
	err := New(eventloop.New()).Execute("1", engine.Scope{})
	if !stderrors.Is(err, errors.ErrGuestExecution) {
		t.Errorf("expected guest execution error, got %v", err)
	}
}
