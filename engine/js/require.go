package js

import (
	stderrors "errors"
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/node-shim/errors"
	"github.com/wippyai/node-shim/modules"
)

func (g *guest) require(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	if v, ok := g.modules[name]; ok {
		return v
	}
	if g.scope.Require == nil {
		panic(g.newError("ReferenceError", "unknown module "+name))
	}
	impl, err := g.scope.Require(name)
	if err != nil {
		panic(g.newError("ReferenceError", message(err)))
	}
	v := g.adapt(impl)
	g.modules[name] = v
	return v
}

func (g *guest) adapt(impl any) goja.Value {
	switch m := impl.(type) {
	case *modules.FSModule:
		return g.must(g.fsObject(m))
	case *modules.PathModule:
		return g.must(g.pathObject(m))
	case *modules.ChildProcessModule:
		return g.must(g.childProcessObject(m))
	case *modules.ReadlineModule:
		return g.must(g.readlineObject(m))
	case modules.Pipe2Func:
		return g.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			cb, ok := goja.AssertFunction(call.Argument(0))
			if !ok {
				panic(g.vm.NewTypeError("callback must be a function"))
			}
			m(func(err error, rfd, wfd int) {
				g.callback(cb, g.errValue(err), g.vm.ToValue(rfd), g.vm.ToValue(wfd))
			})
			return goja.Undefined()
		})
	default:
		return g.vm.ToValue(impl)
	}
}

func (g *guest) fsObject(m *modules.FSModule) (*goja.Object, error) {
	o := g.vm.NewObject()
	set := newProps(o)
	set.set("readFile", func(call goja.FunctionCall) goja.Value {
		cb, rest := g.requireCallback(call.Arguments)
		path := argString(rest, 0)
		encoding := optionString(g.vm, rest, 1, "encoding")
		m.ReadFile(path, encoding, func(err error, data any) {
			if err != nil {
				g.callback(cb, g.errValue(err))
				return
			}
			g.callback(cb, goja.Null(), g.vm.ToValue(data))
		})
		return goja.Undefined()
	})
	set.set("open", func(call goja.FunctionCall) goja.Value {
		cb, rest := g.requireCallback(call.Arguments)
		m.Open(argString(rest, 0), argString(rest, 1), func(err error, fd int) {
			if err != nil {
				g.callback(cb, g.errValue(err))
				return
			}
			g.callback(cb, goja.Null(), g.vm.ToValue(fd))
		})
		return goja.Undefined()
	})
	set.set("close", func(call goja.FunctionCall) goja.Value {
		cb, rest := lastFunc(call.Arguments)
		fd := -1
		if len(rest) > 0 {
			fd = int(rest[0].ToInteger())
		}
		m.Close(fd, func(err error) { g.callback(cb, g.errValue(err)) })
		return goja.Undefined()
	})
	set.set("createReadStream", func(call goja.FunctionCall) goja.Value {
		path := argString(call.Arguments, 0)
		fd := optionInt(g.vm, call.Arguments, 1, "fd", -1)
		s, err := m.CreateReadStream(path, fd)
		if err != nil {
			panic(g.errValue(err))
		}
		return g.must(g.inputObject(s))
	})
	set.set("createWriteStream", func(call goja.FunctionCall) goja.Value {
		path := argString(call.Arguments, 0)
		fd := optionInt(g.vm, call.Arguments, 1, "fd", -1)
		flags := optionString(g.vm, call.Arguments, 1, "flags")
		s, err := m.CreateWriteStream(path, fd, flags)
		if err != nil {
			panic(g.errValue(err))
		}
		return g.must(g.outputObject(s, fd < 0 || fd > 2))
	})
	return set.done()
}

func (g *guest) pathObject(m *modules.PathModule) (*goja.Object, error) {
	o := g.vm.NewObject()
	set := newProps(o)
	set.set("sep", modules.Sep)
	set.set("delimiter", modules.Delimiter)
	set.set("join", m.Join)
	set.set("normalize", m.Normalize)
	set.set("isAbsolute", m.IsAbsolute)
	set.set("dirname", m.Dirname)
	set.set("basename", m.Basename)
	set.set("extname", m.Extname)
	set.set("resolve", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		p, err := m.Resolve(parts...)
		if err != nil {
			panic(g.errValue(err))
		}
		return g.vm.ToValue(p)
	})
	set.set("relative", func(from, to string) goja.Value {
		p, err := m.Relative(from, to)
		if err != nil {
			panic(g.errValue(err))
		}
		return g.vm.ToValue(p)
	})
	return set.done()
}

func (g *guest) childProcessObject(m *modules.ChildProcessModule) (*goja.Object, error) {
	o := g.vm.NewObject()
	set := newProps(o)
	set.set("execFile", func(call goja.FunctionCall) goja.Value {
		cb, rest := lastFunc(call.Arguments)
		file := argString(rest, 0)
		var args []string
		if len(rest) > 1 {
			if err := g.vm.ExportTo(rest[1], &args); err != nil {
				panic(g.vm.NewTypeError("args must be an array of strings"))
			}
		}
		m.ExecFile(file, args, func(err error, stdout, stderr string) {
			g.callback(cb, g.errValue(err), g.vm.ToValue(stdout), g.vm.ToValue(stderr))
		})
		return goja.Undefined()
	})
	return set.done()
}

func (g *guest) readlineObject(m *modules.ReadlineModule) (*goja.Object, error) {
	o := g.vm.NewObject()
	set := newProps(o)
	set.set("createInterface", func(call goja.FunctionCall) goja.Value {
		opts := call.Argument(0).ToObject(g.vm)
		input := opts.Get("input")
		if input == nil {
			panic(g.vm.NewTypeError("createInterface requires an input stream"))
		}
		src, ok := g.sources[input.ToObject(g.vm)]
		if !ok {
			panic(g.vm.NewTypeError("input is not a readable stream"))
		}
		rl := m.CreateInterface(src)

		ri := g.vm.NewObject()
		rset := newProps(ri)
		rset.set("on", func(call goja.FunctionCall) goja.Value {
			fn, ok := goja.AssertFunction(call.Argument(1))
			if !ok {
				panic(g.vm.NewTypeError("listener must be a function"))
			}
			switch call.Argument(0).String() {
			case "line":
				rl.OnLine(func(line string) { g.callback(fn, g.vm.ToValue(line)) })
			case "close":
				rl.OnClose(func() { g.callback(fn) })
			}
			return ri
		})
		rset.set("close", rl.Close)
		return g.must(rset.done())
	})
	return set.done()
}

// requireCallback splits off a mandatory trailing callback.
func (g *guest) requireCallback(args []goja.Value) (goja.Callable, []goja.Value) {
	cb, rest := lastFunc(args)
	if cb == nil {
		panic(g.vm.NewTypeError("callback must be a function"))
	}
	return cb, rest
}

// errValue converts err into a JavaScript Error, or null.
func (g *guest) errValue(err error) goja.Value {
	if err == nil {
		return goja.Null()
	}
	msg := message(err)
	obj := g.newError("Error", msg)
	var execErr *modules.ExecError
	var code any
	switch {
	case stderrors.As(err, &execErr):
		code = execErr.Code
	case isErrno(msg):
		code = msg[:strings.IndexByte(msg, ':')]
	}
	if code != nil {
		if setErr := obj.Set("code", code); setErr != nil {
			Logger().Warn("js: error code not set", zap.Error(setErr))
		}
	}
	return obj
}

func (g *guest) newError(ctor, msg string) *goja.Object {
	obj, err := g.vm.New(g.vm.Get(ctor), g.vm.ToValue(msg))
	if err != nil {
		return g.vm.NewGoError(stderrors.New(msg))
	}
	return obj
}

// message is the guest-facing text of err.
func message(err error) string {
	return errors.Description(err)
}

// isErrno matches kernel messages such as "ENOENT: no such file...".
func isErrno(msg string) bool {
	i := strings.IndexByte(msg, ':')
	if i < 2 || msg[0] != 'E' {
		return false
	}
	for _, c := range msg[1:i] {
		if c < 'A' || c > 'Z' {
			return false
		}
	}
	return true
}

func argString(args []goja.Value, i int) string {
	if i >= len(args) || goja.IsUndefined(args[i]) || goja.IsNull(args[i]) {
		return ""
	}
	return args[i].String()
}

// optionString reads args[i] as a string, or field key of args[i] when it
// is an options object.
func optionString(vm *goja.Runtime, args []goja.Value, i int, key string) string {
	if i >= len(args) || goja.IsUndefined(args[i]) || goja.IsNull(args[i]) {
		return ""
	}
	if _, isObj := args[i].(*goja.Object); !isObj {
		return args[i].String()
	}
	v := args[i].ToObject(vm).Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func optionInt(vm *goja.Runtime, args []goja.Value, i int, key string, def int) int {
	if i >= len(args) {
		return def
	}
	obj, isObj := args[i].(*goja.Object)
	if !isObj {
		return def
	}
	v := obj.Get(key)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return int(v.ToInteger())
}
