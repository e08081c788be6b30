package binding

import (
	"os"
	"reflect"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/wippyai/node-shim/vfs"
)

// errnos are the Linux values Node reports through the uv and constants
// bindings.
var errnos = map[string]int{
	"EPERM":   1,
	"ENOENT":  2,
	"EIO":     5,
	"EBADF":   9,
	"EAGAIN":  11,
	"EACCES":  13,
	"EEXIST":  17,
	"ENOTDIR": 20,
	"EISDIR":  21,
	"EINVAL":  22,
	"EMFILE":  24,
	"EPIPE":   32,
	"ENOSYS":  38,
}

var openFlags = map[string]int{
	"O_RDONLY": os.O_RDONLY,
	"O_WRONLY": os.O_WRONLY,
	"O_RDWR":   os.O_RDWR,
	"O_CREAT":  os.O_CREATE,
	"O_EXCL":   os.O_EXCL,
	"O_TRUNC":  os.O_TRUNC,
	"O_APPEND": os.O_APPEND,
}

var signals = map[string]int{
	"SIGHUP":  1,
	"SIGINT":  2,
	"SIGKILL": 9,
	"SIGPIPE": 13,
	"SIGTERM": 15,
}

// Defaults returns the standard binding set. The fs binding issues its
// calls through fsys.
func Defaults(fsys *vfs.FS) map[Name]Module {
	m := map[Name]Module{
		Buffer:    bufferModule(),
		UV:        uvModule(),
		FS:        fsModule(fsys),
		Constants: constantsModule(),
		TTYWrap:   ttyModule(),
		Util:      utilModule(),
	}
	// The remaining bindings are looked up for presence only.
	for _, n := range []Name{FSEventWrap, Contextify, ProcessWrap, SpawnSync, PipeWrap} {
		m[n] = Module{"name": string(n)}
	}
	return m
}

func constantsModule() Module {
	c := Module{}
	for k, v := range errnos {
		c[k] = v
	}
	for k, v := range openFlags {
		c[k] = v
	}
	for k, v := range signals {
		c[k] = v
	}
	return c
}

func uvModule() Module {
	byCode := make(map[int]string, len(errnos))
	for name, code := range errnos {
		byCode[-code] = name
	}
	return Module{
		"errname": func(code int) string {
			if name, ok := byCode[code]; ok {
				return name
			}
			return "Unknown system error"
		},
	}
}

func bufferModule() Module {
	return Module{
		"byteLength": func(s string) int { return len(s) },
		"isUtf8":     func(s string) bool { return utf8.ValidString(s) },
	}
}

func fsModule(fsys *vfs.FS) Module {
	return Module{
		"readFile": fsys.ReadFile,
		"open":     fsys.Open,
		"close":    fsys.Close,
		"read":     fsys.Read,
		"write":    fsys.Write,
	}
}

func ttyModule() Module {
	return Module{
		"isTTY": func(fd int) bool { return term.IsTerminal(fd) },
		"guessHandleType": func(fd int) string {
			return guessHandleType(fd)
		},
	}
}

func guessHandleType(fd int) string {
	if term.IsTerminal(fd) {
		return "TTY"
	}
	var f *os.File
	switch fd {
	case 0:
		f = os.Stdin
	case 1:
		f = os.Stdout
	case 2:
		f = os.Stderr
	default:
		return "UNKNOWN"
	}
	info, err := f.Stat()
	if err != nil {
		return "UNKNOWN"
	}
	switch mode := info.Mode(); {
	case mode&os.ModeNamedPipe != 0:
		return "PIPE"
	case mode.IsRegular():
		return "FILE"
	default:
		return "UNKNOWN"
	}
}

func utilModule() Module {
	kind := func(v any) reflect.Kind {
		if v == nil {
			return reflect.Invalid
		}
		return reflect.TypeOf(v).Kind()
	}
	return Module{
		"isArray": func(v any) bool {
			k := kind(v)
			return k == reflect.Slice || k == reflect.Array
		},
		"isObject": func(v any) bool {
			k := kind(v)
			return k == reflect.Map || k == reflect.Struct || k == reflect.Ptr
		},
		"isFunction": func(v any) bool { return kind(v) == reflect.Func },
		"isString":   func(v any) bool { return kind(v) == reflect.String },
	}
}
