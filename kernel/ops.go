package kernel

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/resource"
)

// maxRead bounds a single read request.
const maxRead = 1 << 20

// errno renders kernel failures the way Node formats system errors:
// "ENOENT: no such file or directory, open '/x'".
type errno struct {
	code    string
	msg     string
	syscall string
	path    string
}

func (e errno) Error() string {
	if e.path != "" {
		return fmt.Sprintf("%s: %s, %s '%s'", e.code, e.msg, e.syscall, e.path)
	}
	return fmt.Sprintf("%s: %s, %s", e.code, e.msg, e.syscall)
}

func toErrno(err error, syscall, path string) error {
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, fs.ErrNotExist):
		return errno{code: "ENOENT", msg: "no such file or directory", syscall: syscall, path: path}
	case stderrors.Is(err, fs.ErrPermission):
		return errno{code: "EACCES", msg: "permission denied", syscall: syscall, path: path}
	case stderrors.Is(err, resource.ErrBadFD):
		return errno{code: "EBADF", msg: "bad file descriptor", syscall: syscall}
	case stderrors.Is(err, resource.ErrTooMany):
		return errno{code: "EMFILE", msg: "too many open files", syscall: syscall}
	default:
		return errno{code: "EIO", msg: err.Error(), syscall: syscall, path: path}
	}
}

func badArgs(syscall string, err error) error {
	return errno{code: "EINVAL", msg: err.Error(), syscall: syscall}
}

func (k *Kernel) registerDefaults() {
	k.Handle(bridge.OpGetcwd, k.getcwd)
	k.Handle(bridge.OpChdir, k.chdir)
	k.Handle(bridge.OpReadFile, k.readFile)
	k.Handle(bridge.OpOpen, k.open)
	k.Handle(bridge.OpWrite, k.write)
	k.Handle(bridge.OpClose, k.close)
	k.Handle(bridge.OpPipe2, k.pipe2)
	k.HandleAsync(bridge.OpRead, k.read)
	k.HandleAsync(bridge.OpSpawn, k.spawn)
}

func (k *Kernel) getcwd(_ context.Context, _ bridge.Args) ([]any, error) {
	return []any{k.Cwd()}, nil
}

func (k *Kernel) chdir(_ context.Context, args bridge.Args) ([]any, error) {
	dir, err := args.String(0)
	if err != nil {
		return nil, badArgs("chdir", err)
	}
	target := k.resolve(dir)
	info, err := os.Stat(target)
	if err != nil {
		return nil, toErrno(err, "chdir", dir)
	}
	if !info.IsDir() {
		return nil, errno{code: "ENOTDIR", msg: "not a directory", syscall: "chdir", path: dir}
	}
	k.mu.Lock()
	k.cwd = target
	k.mu.Unlock()
	return nil, nil
}

func (k *Kernel) readFile(_ context.Context, args bridge.Args) ([]any, error) {
	p, err := args.String(0)
	if err != nil {
		return nil, badArgs("open", err)
	}
	target := k.resolve(p)
	info, err := os.Stat(target)
	if err != nil {
		return nil, toErrno(err, "open", p)
	}
	if info.IsDir() {
		return nil, errno{code: "EISDIR", msg: "illegal operation on a directory", syscall: "read"}
	}
	data, err := os.ReadFile(target) //nolint:gosec // guest-supplied path
	if err != nil {
		return nil, toErrno(err, "open", p)
	}
	return []any{data}, nil
}

// openFlags maps Node's string flags onto os.OpenFile flags.
var openFlags = map[string]int{
	"r":  os.O_RDONLY,
	"r+": os.O_RDWR,
	"w":  os.O_WRONLY | os.O_CREATE | os.O_TRUNC,
	"w+": os.O_RDWR | os.O_CREATE | os.O_TRUNC,
	"wx": os.O_WRONLY | os.O_CREATE | os.O_EXCL,
	"a":  os.O_WRONLY | os.O_CREATE | os.O_APPEND,
	"a+": os.O_RDWR | os.O_CREATE | os.O_APPEND,
}

func (k *Kernel) open(_ context.Context, args bridge.Args) ([]any, error) {
	p, err := args.String(0)
	if err != nil {
		return nil, badArgs("open", err)
	}
	flags := "r"
	if args.Len() > 1 {
		if flags, err = args.String(1); err != nil {
			return nil, badArgs("open", err)
		}
	}
	mode := 0o666
	if args.Len() > 2 {
		if mode, err = args.Int(2); err != nil {
			return nil, badArgs("open", err)
		}
	}
	flag, ok := openFlags[flags]
	if !ok {
		return nil, errno{code: "EINVAL", msg: "invalid flags " + flags, syscall: "open", path: p}
	}

	f, err := os.OpenFile(k.resolve(p), flag, os.FileMode(mode)) //nolint:gosec // guest-supplied path
	if err != nil {
		return nil, toErrno(err, "open", p)
	}
	d := &resource.Descriptor{Closer: f, Name: p}
	if flag&(os.O_WRONLY) == 0 {
		d.Reader = f
	}
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		d.Writer = f
	}
	fd, err := k.fds.Open(d)
	if err != nil {
		_ = f.Close()
		return nil, toErrno(err, "open", p)
	}
	return []any{int(fd)}, nil
}

func (k *Kernel) read(_ context.Context, args bridge.Args) ([]any, error) {
	fd, err := args.Int(0)
	if err != nil {
		return nil, badArgs("read", err)
	}
	n, err := args.Int(1)
	if err != nil {
		return nil, badArgs("read", err)
	}
	if n <= 0 || n > maxRead {
		n = maxRead
	}
	d, ok := k.fds.Get(resource.FD(fd))
	if !ok || !d.Readable() {
		return nil, toErrno(resource.ErrBadFD, "read", "")
	}
	buf := make([]byte, n)
	got, err := d.Reader.Read(buf)
	if err != nil {
		if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrClosedPipe) {
			return []any{buf[:got], true}, nil
		}
		return nil, toErrno(err, "read", "")
	}
	return []any{buf[:got], false}, nil
}

func (k *Kernel) write(_ context.Context, args bridge.Args) ([]any, error) {
	fd, err := args.Int(0)
	if err != nil {
		return nil, badArgs("write", err)
	}
	data, err := args.Bytes(1)
	if err != nil {
		return nil, badArgs("write", err)
	}
	d, ok := k.fds.Get(resource.FD(fd))
	if !ok || !d.Writable() {
		return nil, toErrno(resource.ErrBadFD, "write", "")
	}
	n, err := d.Writer.Write(data)
	if err != nil {
		return nil, toErrno(err, "write", "")
	}
	return []any{n}, nil
}

func (k *Kernel) close(_ context.Context, args bridge.Args) ([]any, error) {
	fd, err := args.Int(0)
	if err != nil {
		return nil, badArgs("close", err)
	}
	if err := k.fds.Close(resource.FD(fd)); err != nil {
		return nil, toErrno(err, "close", "")
	}
	return nil, nil
}

func (k *Kernel) pipe2(_ context.Context, _ bridge.Args) ([]any, error) {
	r, w := newPipe()
	rfd, err := k.fds.Open(&resource.Descriptor{Reader: r, Closer: r, Name: "pipe:r"})
	if err != nil {
		return nil, toErrno(err, "pipe2", "")
	}
	wfd, err := k.fds.Open(&resource.Descriptor{Writer: w, Closer: w, Name: "pipe:w"})
	if err != nil {
		_ = k.fds.Close(rfd)
		return nil, toErrno(err, "pipe2", "")
	}
	return []any{int(rfd), int(wfd)}, nil
}

// spawn runs a child to completion and returns [stdout, stderr, exitCode].
func (k *Kernel) spawn(ctx context.Context, args bridge.Args) ([]any, error) {
	file, err := args.String(0)
	if err != nil {
		return nil, badArgs("spawn", err)
	}
	var argv []string
	if args.Len() > 1 {
		if err := args.Decode(1, &argv); err != nil {
			return nil, badArgs("spawn", err)
		}
	}

	cmd := exec.CommandContext(ctx, file, argv...) //nolint:gosec // guest-supplied command
	cmd.Dir = k.Cwd()
	env := make([]string, 0, len(k.cfg.Env))
	for key, v := range k.cfg.Env {
		env = append(env, key+"="+v)
	}
	cmd.Env = env
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			if stderrors.Is(err, exec.ErrNotFound) {
				err = fs.ErrNotExist
			}
			return nil, toErrno(err, "spawn", file)
		}
		code = exitErr.ExitCode()
	}
	return []any{stdout.Bytes(), stderr.Bytes(), code}, nil
}
