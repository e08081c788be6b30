package bridge

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/eventloop"
)

// fakeKernel answers requests on the kernel end of a pipe with a fixed
// handler.
type fakeKernel struct {
	conn     *Conn
	notifies chan *Message
}

func newFakeKernel(t *testing.T, conn *Conn, handle func(*Message) *Message) *fakeKernel {
	t.Helper()
	fk := &fakeKernel{conn: conn, notifies: make(chan *Message, 8)}
	go func() {
		for {
			m, err := conn.Receive()
			if err != nil {
				return
			}
			if m.Kind == KindNotify {
				fk.notifies <- m
				continue
			}
			resp := handle(m)
			resp.ID = m.ID
			resp.Kind = KindResponse
			resp.Op = m.Op
			if err := conn.Send(resp); err != nil {
				return
			}
		}
	}()
	return fk
}

func (fk *fakeKernel) sendInit(t *testing.T, argv []string, env map[string]string) {
	t.Helper()
	args, err := EncodeArgs(argv, env)
	if err != nil {
		t.Fatal(err)
	}
	if err := fk.conn.Send(&Message{Kind: KindEvent, Op: OpInit, Args: args}); err != nil {
		t.Fatalf("send init: %v", err)
	}
}

func runLoop(t *testing.T, l *eventloop.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("loop did not go idle: %v", err)
	}
}

func TestClient_InitThenCall(t *testing.T) {
	cc, kc := Pipe()
	defer cc.Close()
	defer kc.Close()

	fk := newFakeKernel(t, kc, func(m *Message) *Message {
		args, _ := EncodeArgs("/home/guest")
		return &Message{Args: args}
	})

	loop := eventloop.New()
	c := NewClient(cc, loop)
	c.Start()

	var gotInit InitEvent
	var cwd string
	c.OnInit(func(ev InitEvent) {
		gotInit = ev
		c.Call(OpGetcwd, nil, func(res Result) {
			if res.Err != nil {
				t.Errorf("getcwd: %v", res.Err)
				return
			}
			cwd, _ = res.Args.String(0)
		})
	})
	fk.sendInit(t, []string{"node", "/app.js"}, map[string]string{"FOO": "bar"})

	runLoop(t, loop)

	if len(gotInit.Argv) != 2 || gotInit.Argv[1] != "/app.js" || gotInit.Env["FOO"] != "bar" {
		t.Errorf("unexpected init event %+v", gotInit)
	}
	if cwd != "/home/guest" {
		t.Errorf("cwd = %q", cwd)
	}
	if c.Pending() != 0 {
		t.Errorf("expected no pending calls, got %d", c.Pending())
	}
}

func TestClient_InitDeliveredToLateHandler(t *testing.T) {
	cc, kc := Pipe()
	defer cc.Close()
	defer kc.Close()
	fk := newFakeKernel(t, kc, func(*Message) *Message { return &Message{} })

	loop := eventloop.New()
	c := NewClient(cc, loop)
	c.Start()
	fk.sendInit(t, []string{"node"}, nil)

	deadline := time.Now().Add(5 * time.Second)
	for {
		c.mu.Lock()
		arrived := c.initEvent != nil
		c.mu.Unlock()
		if arrived {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("init event never arrived")
		}
		time.Sleep(time.Millisecond)
	}

	calls := 0
	c.OnInit(func(ev InitEvent) {
		calls++
		if ev.Env == nil {
			t.Error("env should never be nil")
		}
	})
	runLoop(t, loop)
	if calls != 1 {
		t.Errorf("init delivered %d times, want 1", calls)
	}
}

func TestClient_ErrorResponseIsTransportFailure(t *testing.T) {
	cc, kc := Pipe()
	defer cc.Close()
	defer kc.Close()
	newFakeKernel(t, kc, func(*Message) *Message {
		return &Message{Err: "ENOENT: no such file or directory, open '/x'"}
	})

	loop := eventloop.New()
	c := NewClient(cc, loop)
	c.Start()

	var got error
	c.Call(OpReadFile, []any{"/x"}, func(res Result) { got = res.Err })
	runLoop(t, loop)

	if !stderrors.Is(got, errors.ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", got)
	}
	if !strings.Contains(errors.Description(got), "ENOENT") {
		t.Errorf("description lost the kernel message: %q", errors.Description(got))
	}
}

func TestClient_ClosedConnectionFailsPendingCalls(t *testing.T) {
	cc, kc := Pipe()
	defer cc.Close()

	// The kernel swallows the request and hangs up.
	go func() {
		_, _ = kc.Receive()
		_ = kc.Close()
	}()

	loop := eventloop.New()
	c := NewClient(cc, loop)
	c.Start()
	c.OnInit(func(InitEvent) { t.Error("init must not be delivered") })

	var got error
	c.Call(OpGetcwd, nil, func(res Result) { got = res.Err })
	runLoop(t, loop)

	if !stderrors.Is(got, errors.ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", got)
	}

	var after error
	c.Call(OpGetcwd, nil, func(res Result) { after = res.Err })
	runLoop(t, loop)
	if !stderrors.Is(after, errors.ErrTransportFailure) {
		t.Errorf("calls after close should fail fast, got %v", after)
	}
}

func TestClient_Notify(t *testing.T) {
	cc, kc := Pipe()
	defer cc.Close()
	defer kc.Close()
	fk := newFakeKernel(t, kc, func(*Message) *Message { return &Message{} })

	c := NewClient(cc, eventloop.New())
	c.Start()
	go c.Notify(OpExit, 3)

	select {
	case m := <-fk.notifies:
		code, err := m.Args.Int(0)
		if err != nil || code != 3 || m.Op != OpExit {
			t.Errorf("unexpected notify %s %d (%v)", m.Op, code, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("notify never arrived")
	}
}

func TestArgs_DecodeOutOfRange(t *testing.T) {
	args, err := EncodeArgs("a")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := args.Int(0); err == nil {
		t.Error("decoding a string as int should fail")
	}
	if _, err := args.String(1); err == nil {
		t.Error("missing argument should fail")
	}
	if s, _ := args.String(0); s != "a" {
		t.Errorf("String(0) = %q", s)
	}
}
