package js

import (
	"github.com/dop251/goja"
)

// readable is a guest input stream. *vfs.ReadStream satisfies it.
type readable interface {
	OnData(fn func([]byte))
	OnEnd(fn func())
	Resume()
	Pause()
}

// writable is a guest output stream. *vfs.WriteStream satisfies it.
type writable interface {
	Write(data []byte, cb func(error))
	End(cb func(error))
}

type errorSource interface {
	OnError(fn func(error))
}

func (g *guest) inputObject(in readable) (*goja.Object, error) {
	o := g.vm.NewObject()
	set := newProps(o)
	on := func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			panic(g.vm.NewTypeError("listener must be a function"))
		}
		switch event {
		case "data":
			in.OnData(func(b []byte) { g.callback(fn, g.vm.ToValue(string(b))) })
		case "end":
			in.OnEnd(func() { g.callback(fn) })
		case "error":
			if es, ok := in.(errorSource); ok {
				es.OnError(func(err error) { g.callback(fn, g.errValue(err)) })
			}
		}
		return o
	}
	set.set("on", on)
	set.set("once", on)
	set.set("pause", func() goja.Value { in.Pause(); return o })
	set.set("resume", func() goja.Value { in.Resume(); return o })
	set.set("setEncoding", func(string) goja.Value { return o })
	set.set("pipe", func(call goja.FunctionCall) goja.Value {
		dest := call.Argument(0).ToObject(g.vm)
		sink, ok := g.sinks[dest]
		if !ok {
			panic(g.vm.NewTypeError("pipe destination is not a stream"))
		}
		in.OnData(func(b []byte) { sink.Write(b, nil) })
		if g.ownsEnd(dest) {
			in.OnEnd(func() { sink.End(nil) })
		}
		return dest
	})
	g.sources[o] = in
	return set.done()
}

// outputObject wraps out. Standard streams are never ended by pipe.
func (g *guest) outputObject(out writable, endOnPipe bool) (*goja.Object, error) {
	o := g.vm.NewObject()
	set := newProps(o)
	set.set("write", func(call goja.FunctionCall) goja.Value {
		data := g.bytesOf(call.Argument(0))
		cb, _ := lastFunc(tail(call.Arguments, 1))
		out.Write(data, func(err error) {
			if cb != nil {
				g.callback(cb, g.errValue(err))
			} else if err != nil {
				g.engine.report(err)
			}
		})
		return g.vm.ToValue(true)
	})
	set.set("end", func(call goja.FunctionCall) goja.Value {
		cb, rest := lastFunc(call.Arguments)
		if len(rest) > 0 && !goja.IsUndefined(rest[0]) && !goja.IsNull(rest[0]) {
			out.Write(g.bytesOf(rest[0]), nil)
		}
		out.End(func(err error) {
			if cb != nil {
				g.callback(cb, g.errValue(err))
			}
		})
		return goja.Undefined()
	})
	noop := func(goja.FunctionCall) goja.Value { return o }
	set.set("on", noop)
	set.set("once", noop)
	if endOnPipe {
		set.set("_endOnPipe", true)
	}
	g.sinks[o] = out
	return set.done()
}

func (g *guest) ownsEnd(o *goja.Object) bool {
	v := o.Get("_endOnPipe")
	return v != nil && v.ToBoolean()
}

func (g *guest) bytesOf(v goja.Value) []byte {
	if b, ok := v.Export().([]byte); ok {
		return b
	}
	return []byte(v.String())
}

// lastFunc splits a trailing callback off args.
func lastFunc(args []goja.Value) (goja.Callable, []goja.Value) {
	if len(args) == 0 {
		return nil, args
	}
	if fn, ok := goja.AssertFunction(args[len(args)-1]); ok {
		return fn, args[:len(args)-1]
	}
	return nil, args
}

func tail(args []goja.Value, i int) []goja.Value {
	if i >= len(args) {
		return nil
	}
	return args[i:]
}
