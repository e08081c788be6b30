package kernel

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/resource"
)

// Handler serves one syscall. The returned values become the response's
// positional arguments.
type Handler func(ctx context.Context, args bridge.Args) ([]any, error)

// Config describes the process the kernel hosts.
type Config struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string
	// Cwd is the initial working directory. Defaults to the host's.
	Cwd  string
	Argv []string
}

// Kernel is the host side of the syscall bridge. It sends the init event,
// then answers requests read from its connection.
type Kernel struct {
	conn     *bridge.Conn
	fds      *resource.Table
	handlers map[string]handlerEntry
	exited   chan struct{}
	cfg      Config
	cwd      string
	exitCode int
	mu       sync.Mutex
	exitOnce sync.Once
	wg       sync.WaitGroup
}

type handlerEntry struct {
	fn Handler
	// async handlers may block (pipe reads, child processes) and run on
	// their own goroutine so the request stream keeps moving.
	async bool
}

// New creates a kernel serving conn.
func New(conn *bridge.Conn, cfg Config) (*Kernel, error) {
	cwd := cfg.Cwd
	if cwd == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(errors.PhaseKernel, errors.KindNotInitialized, err, "resolve host cwd")
		}
		cwd = wd
	}
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseKernel, errors.KindInvalidInput, err, "resolve cwd")
	}
	if cfg.Env == nil {
		cfg.Env = make(map[string]string)
	}
	if cfg.Stdin == nil {
		cfg.Stdin = eofReader{}
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}

	k := &Kernel{
		conn:     conn,
		fds:      resource.NewTable(),
		handlers: make(map[string]handlerEntry),
		exited:   make(chan struct{}),
		cfg:      cfg,
		cwd:      abs,
	}
	if err := k.installStdio(); err != nil {
		return nil, err
	}
	k.registerDefaults()
	return k, nil
}

func (k *Kernel) installStdio() error {
	std := []struct {
		d  *resource.Descriptor
		fd resource.FD
	}{
		{fd: resource.Stdin, d: &resource.Descriptor{Reader: k.cfg.Stdin, Name: "<stdin>"}},
		{fd: resource.Stdout, d: &resource.Descriptor{Writer: k.cfg.Stdout, Name: "<stdout>"}},
		{fd: resource.Stderr, d: &resource.Descriptor{Writer: k.cfg.Stderr, Name: "<stderr>"}},
	}
	for _, s := range std {
		if err := k.fds.Install(s.fd, s.d); err != nil {
			return errors.Wrap(errors.PhaseKernel, errors.KindInvalidInput, err, "install "+s.d.Name)
		}
	}
	return nil
}

// Handle registers or replaces the handler for op.
func (k *Kernel) Handle(op string, h Handler) {
	k.handle(op, h, false)
}

// HandleAsync registers a handler that may block; it runs on its own goroutine.
func (k *Kernel) HandleAsync(op string, h Handler) {
	k.handle(op, h, true)
}

func (k *Kernel) handle(op string, h Handler, async bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.handlers[op] = handlerEntry{fn: h, async: async}
}

// Descriptors returns the kernel's descriptor table.
func (k *Kernel) Descriptors() *resource.Table {
	return k.fds
}

// Cwd returns the kernel's current working directory.
func (k *Kernel) Cwd() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.cwd
}

// Exited is closed once the guest sends its exit notification.
func (k *Kernel) Exited() <-chan struct{} {
	return k.exited
}

// ExitCode returns the status passed to exit. Valid after Exited is closed.
func (k *Kernel) ExitCode() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.exitCode
}

// Serve sends the init event and answers requests until the connection
// closes or ctx is done.
func (k *Kernel) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = k.conn.Close()
	}()

	if err := k.sendInit(); err != nil {
		return errors.TransportFailure(bridge.OpInit, err)
	}

	defer k.wg.Wait()
	for {
		m, err := k.conn.Receive()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			Logger().Debug("kernel: connection closed", zap.Error(err))
			return nil
		}
		switch m.Kind {
		case bridge.KindRequest:
			k.dispatch(ctx, m)
		case bridge.KindNotify:
			k.notify(m)
		default:
			Logger().Warn("kernel: unexpected message", zap.String("kind", m.Kind.String()))
		}
	}
}

func (k *Kernel) sendInit() error {
	args, err := bridge.EncodeArgs(k.cfg.Argv, k.cfg.Env)
	if err != nil {
		return err
	}
	return k.conn.Send(&bridge.Message{Kind: bridge.KindEvent, Op: bridge.OpInit, Args: args})
}

func (k *Kernel) dispatch(ctx context.Context, m *bridge.Message) {
	k.mu.Lock()
	h, ok := k.handlers[m.Op]
	k.mu.Unlock()

	if !ok {
		k.respond(m, nil, errno{code: "ENOSYS", msg: "function not implemented", syscall: m.Op})
		return
	}
	if h.async {
		k.wg.Add(1)
		go func() {
			defer k.wg.Done()
			results, err := h.fn(ctx, m.Args)
			k.respond(m, results, err)
		}()
		return
	}
	results, err := h.fn(ctx, m.Args)
	k.respond(m, results, err)
}

func (k *Kernel) respond(req *bridge.Message, results []any, err error) {
	resp := &bridge.Message{ID: req.ID, Kind: bridge.KindResponse, Op: req.Op}
	if err != nil {
		resp.Err = err.Error()
	} else {
		args, encErr := bridge.EncodeArgs(results...)
		if encErr != nil {
			resp.Err = encErr.Error()
		} else {
			resp.Args = args
		}
	}
	if sendErr := k.conn.Send(resp); sendErr != nil {
		Logger().Debug("kernel: response dropped", zap.String("op", req.Op), zap.Error(sendErr))
	}
}

func (k *Kernel) notify(m *bridge.Message) {
	if m.Op != bridge.OpExit {
		Logger().Warn("kernel: unknown notification", zap.String("op", m.Op))
		return
	}
	code, err := m.Args.Int(0)
	if err != nil {
		Logger().Warn("kernel: malformed exit status", zap.Error(err))
		code = 1
	}
	k.exitOnce.Do(func() {
		k.mu.Lock()
		k.exitCode = code
		k.mu.Unlock()
		Logger().Debug("kernel: guest exited", zap.Int("code", code))
		_ = k.fds.CloseAll()
		close(k.exited)
	})
}

// resolve makes p absolute against the kernel cwd.
func (k *Kernel) resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(k.Cwd(), p)
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
