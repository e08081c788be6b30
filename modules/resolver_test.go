package modules

import (
	"context"
	stderrors "errors"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/bridge/bridgetest"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/eventloop"
	"github.com/wippyai/node-shim/vfs"
)

// fixedCwd resolves against a constant directory; an empty dir behaves like
// a shim whose cwd is not resolved yet.
type fixedCwd string

func (c fixedCwd) Resolve(p string) (string, error) {
	if path.IsAbs(p) {
		return path.Clean(p), nil
	}
	if c == "" {
		return "", errors.NotInitialized(errors.PhaseBoot, "process cwd")
	}
	return path.Join(string(c), p), nil
}

type fixture struct {
	loop     *eventloop.Loop
	fake     *bridgetest.Fake
	resolver *Resolver
}

func newFixture(t *testing.T, cwd fixedCwd) *fixture {
	t.Helper()
	loop := eventloop.New()
	fake := bridgetest.New(loop)
	r, err := New(Defaults(Deps{
		Bridge: fake,
		FS:     vfs.New(fake, loop),
		Paths:  cwd,
		Post:   loop,
	}))
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{loop: loop, fake: fake, resolver: r}
}

func (f *fixture) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.loop.Run(ctx); err != nil {
		t.Fatalf("loop: %v", err)
	}
}

func TestResolver_KnownAndUnknown(t *testing.T) {
	f := newFixture(t, "/app")

	impl, err := f.resolver.Resolve("path")
	if err != nil {
		t.Fatalf("Resolve(path): %v", err)
	}
	if _, ok := impl.(*PathModule); !ok {
		t.Errorf("Resolve(path) = %T", impl)
	}

	_, err = f.resolver.Resolve("not-a-real-module")
	if !stderrors.Is(err, errors.ErrUnresolvableModule) {
		t.Fatalf("expected unresolvable module, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown module not-a-real-module") {
		t.Errorf("message = %q", err.Error())
	}

	if _, err := f.resolver.Resolve("Path"); err == nil {
		t.Error("lookup must be case-sensitive")
	}
}

func TestResolver_Defaults(t *testing.T) {
	f := newFixture(t, "/app")
	if got := len(f.resolver.Names()); got != len(AllNames()) {
		t.Fatalf("%d modules registered, want %d", got, len(AllNames()))
	}
	for _, n := range AllNames() {
		if _, err := f.resolver.Resolve(string(n)); err != nil {
			t.Errorf("Resolve(%s): %v", n, err)
		}
	}
}

func TestResolver_RejectsUnknownNames(t *testing.T) {
	if _, err := New(map[Name]any{"http": struct{}{}}); err == nil {
		t.Error("unknown module name should be rejected")
	}
}

func TestFSModule_ReadFile(t *testing.T) {
	f := newFixture(t, "/app")
	var requested []string
	f.fake.Handle(bridge.OpReadFile, func(args []any) ([]any, error) {
		requested = append(requested, args[0].(string))
		return []any{[]byte("hi")}, nil
	})
	impl, _ := f.resolver.Resolve("fs")
	fsMod := impl.(*FSModule)

	var text any
	var raw any
	f.loop.Post(func() {
		fsMod.ReadFile("data.txt", "utf8", func(err error, data any) { text = data })
		fsMod.ReadFile("/abs.bin", "", func(err error, data any) { raw = data })
	})
	f.run(t)

	if text != "hi" {
		t.Errorf("text = %v", text)
	}
	if b, ok := raw.([]byte); !ok || string(b) != "hi" {
		t.Errorf("raw = %#v", raw)
	}
	if len(requested) != 2 || requested[0] != "/app/data.txt" || requested[1] != "/abs.bin" {
		t.Errorf("requested = %v", requested)
	}
}

func TestFSModule_RelativePathBeforeCwd(t *testing.T) {
	f := newFixture(t, "")
	impl, _ := f.resolver.Resolve("fs")

	var got error
	f.loop.Post(func() {
		impl.(*FSModule).ReadFile("data.txt", "utf8", func(err error, _ any) { got = err })
	})
	f.run(t)

	if !stderrors.Is(got, &errors.Error{Phase: errors.PhaseBoot, Kind: errors.KindNotInitialized}) {
		t.Errorf("expected not-initialized, got %v", got)
	}
	if len(f.fake.Calls()) != 0 {
		t.Errorf("no request may be issued before cwd resolves, got %v", f.fake.Ops())
	}
}

func TestChildProcess_ExecFile(t *testing.T) {
	f := newFixture(t, "/app")
	f.fake.Handle(bridge.OpSpawn, func(args []any) ([]any, error) {
		if args[0] == "false" {
			return []any{[]byte{}, []byte("nope"), 1}, nil
		}
		return []any{[]byte("hello\n"), []byte{}, 0}, nil
	})
	impl, _ := f.resolver.Resolve("child_process")
	cp := impl.(*ChildProcessModule)

	var okOut string
	var okErr, failErr error
	f.loop.Post(func() {
		cp.ExecFile("echo", []string{"hello"}, func(err error, stdout, _ string) {
			okErr = err
			okOut = stdout
		})
		cp.ExecFile("false", nil, func(err error, _, _ string) { failErr = err })
	})
	f.run(t)

	if okErr != nil || okOut != "hello\n" {
		t.Errorf("echo: %q, %v", okOut, okErr)
	}
	var exitErr *ExecError
	if !stderrors.As(failErr, &exitErr) || exitErr.Code != 1 || exitErr.Stderr != "nope" {
		t.Fatalf("expected ExecError, got %v", failErr)
	}
	if !strings.HasPrefix(exitErr.Error(), "Command failed: false") {
		t.Errorf("message = %q", exitErr.Error())
	}
}

func TestPipe2(t *testing.T) {
	f := newFixture(t, "/app")
	f.fake.Handle(bridge.OpPipe2, func([]any) ([]any, error) { return []any{3, 4}, nil })
	impl, _ := f.resolver.Resolve("node-pipe2")

	var rfd, wfd int
	f.loop.Post(func() {
		impl.(Pipe2Func)(func(err error, r, w int) {
			if err != nil {
				t.Errorf("pipe2: %v", err)
			}
			rfd, wfd = r, w
		})
	})
	f.run(t)

	if rfd != 3 || wfd != 4 {
		t.Errorf("fds = %d, %d", rfd, wfd)
	}
}

// chunkSource replays chunks as a readable stream.
type chunkSource struct {
	data []func([]byte)
	end  []func()
}

func (s *chunkSource) OnData(fn func([]byte)) { s.data = append(s.data, fn) }
func (s *chunkSource) OnEnd(fn func())        { s.end = append(s.end, fn) }

func (s *chunkSource) replay(chunks ...string) {
	for _, c := range chunks {
		for _, fn := range s.data {
			fn([]byte(c))
		}
	}
	for _, fn := range s.end {
		fn()
	}
}

func TestReadline_SplitsLines(t *testing.T) {
	src := &chunkSource{}
	rl := (&ReadlineModule{}).CreateInterface(src)
	var lines []string
	closed := 0
	rl.OnLine(func(l string) { lines = append(lines, l) })
	rl.OnClose(func() { closed++ })

	src.replay("first\r\nsec", "ond\n", "\nlast")

	want := []string{"first", "second", "", "last"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
	if closed != 1 {
		t.Errorf("close emitted %d times", closed)
	}
}
