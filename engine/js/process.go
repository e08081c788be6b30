package js

import (
	"fmt"
	"runtime"

	"github.com/dop251/goja"
)

func (g *guest) processObject() (*goja.Object, error) {
	p := g.scope.Process
	o := g.vm.NewObject()
	set := newProps(o)

	argv := p.Argv()
	items := make([]any, len(argv))
	for i, a := range argv {
		items[i] = a
	}
	envProps := newProps(g.vm.NewObject())
	for k, v := range p.Env() {
		envProps.set(k, v)
	}
	env, err := envProps.done()
	if err != nil {
		return nil, fmt.Errorf("process.env: %w", err)
	}

	set.set("argv", g.vm.NewArray(items...))
	set.set("env", env)
	set.set("platform", runtime.GOOS)
	set.set("cwd", p.Cwd)
	set.set("chdir", func(call goja.FunctionCall) goja.Value {
		dir := call.Argument(0).String()
		cb, _ := lastFunc(tail(call.Arguments, 1))
		p.Chdir(dir, func(err error) {
			if cb == nil {
				if err != nil {
					g.engine.report(err)
				}
				return
			}
			g.callback(cb, g.errValue(err))
		})
		return goja.Undefined()
	})
	set.set("exit", func(call goja.FunctionCall) goja.Value {
		code := 0
		if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
			code = int(arg.ToInteger())
		}
		g.exit(code)
		return goja.Undefined()
	})
	set.set("binding", func(name string) goja.Value {
		m := p.Binding(name)
		if m == nil {
			return goja.Null()
		}
		return g.vm.ToValue(map[string]any(m))
	})
	set.set("nextTick", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(g.vm.NewTypeError("callback must be a function"))
		}
		args := append([]goja.Value(nil), call.Arguments[1:]...)
		p.NextTick(func(...any) error {
			return g.call(fn, args...)
		})
		return goja.Undefined()
	})
	set.set("on", func(call goja.FunctionCall) goja.Value { return o })
	set.set("once", func(call goja.FunctionCall) goja.Value { return o })

	if in := p.Stdin(); in != nil {
		stdin, err := g.inputObject(in)
		if err != nil {
			return nil, fmt.Errorf("process.stdin: %w", err)
		}
		set.set("stdin", stdin)
	}
	outputs := []struct {
		name string
		out  writable
	}{
		{"stdout", p.Stdout()},
		{"stderr", p.Stderr()},
	}
	for _, o := range outputs {
		if o.out == nil {
			continue
		}
		stream, err := g.outputObject(o.out, false)
		if err != nil {
			return nil, fmt.Errorf("process.%s: %w", o.name, err)
		}
		set.set(o.name, stream)
	}
	return set.done()
}
