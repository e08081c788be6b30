package js

import (
	"time"

	"github.com/dop251/goja"
)

func (g *guest) setTimeout(call goja.FunctionCall) goja.Value {
	return g.addTimer(call, delayArg(call.Argument(1)), false, 2)
}

func (g *guest) setInterval(call goja.FunctionCall) goja.Value {
	return g.addTimer(call, delayArg(call.Argument(1)), true, 2)
}

func (g *guest) setImmediate(call goja.FunctionCall) goja.Value {
	return g.addTimer(call, 0, false, 1)
}

func (g *guest) clearTimer(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := g.timers[id]; ok {
		t.Stop()
		delete(g.timers, id)
	}
	return goja.Undefined()
}

func (g *guest) addTimer(call goja.FunctionCall, d time.Duration, repeat bool, argStart int) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(g.vm.NewTypeError("callback must be a function"))
	}
	var args []goja.Value
	if len(call.Arguments) > argStart {
		args = append(args, call.Arguments[argStart:]...)
	}
	if g.stopped() {
		return g.vm.ToValue(0)
	}
	g.nextTimer++
	id := g.nextTimer
	fire := func() {
		t, live := g.timers[id]
		if !live {
			return
		}
		if !repeat || g.stopped() {
			t.Stop()
			delete(g.timers, id)
		}
		g.callback(fn, args...)
	}
	if repeat {
		g.timers[id] = g.engine.loop.Every(d, fire)
	} else {
		g.timers[id] = g.engine.loop.AfterFunc(d, fire)
	}
	return g.vm.ToValue(id)
}

func delayArg(v goja.Value) time.Duration {
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return 0
	}
	ms := v.ToInteger()
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}
