package eventloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	nodeloop "github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
)

// minInterval is the shortest repeat period; zero and negative delays are
// clamped to it the way Node clamps setInterval.
const minInterval = time.Millisecond

// Loop runs host jobs on a goja_nodejs event loop and decides when the
// process has gone idle.
//
// Jobs posted from any goroutine run one at a time, in post order, on the
// loop goroutine. Run returns once no job is queued and no reference is
// outstanding. In-flight work that will post a job later (a syscall awaiting
// its completion, a pending timer) must hold a reference via Ref/Unref so
// the loop does not go idle underneath it.
type Loop struct {
	el       *nodeloop.EventLoop
	vm       *goja.Runtime
	idle     chan struct{}
	stop     chan struct{}
	refs     atomic.Int64
	ran      atomic.Uint64
	stopped  atomic.Bool
	stopOnce sync.Once
}

// New creates an idle loop. The underlying goja runtime is created here and
// only touched from loop jobs.
func New() *Loop {
	return &Loop{
		el:   nodeloop.NewEventLoop(nodeloop.EnableConsole(false)),
		idle: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Post queues fn to run on the loop. Safe for concurrent use. A queued job
// counts as a reference until it has run.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.refs.Add(1)
	l.el.RunOnLoop(func(vm *goja.Runtime) {
		defer l.Unref()
		l.exec(vm, fn)
	})
}

// Ref marks outstanding work that keeps the loop alive.
func (l *Loop) Ref() {
	l.refs.Add(1)
}

// Unref releases a reference taken with Ref.
func (l *Loop) Unref() {
	for {
		n := l.refs.Load()
		if n <= 0 {
			return
		}
		if l.refs.CompareAndSwap(n, n-1) {
			if n == 1 {
				signal(l.idle)
			}
			return
		}
	}
}

// Stop makes Run return after the job currently executing, if any.
// Jobs still queued are skipped. Safe to call from a job.
func (l *Loop) Stop() {
	l.stopped.Store(true)
	l.stopOnce.Do(func() { close(l.stop) })
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	return l.stopped.Load()
}

// Executed returns the number of jobs run so far.
func (l *Loop) Executed() uint64 {
	return l.ran.Load()
}

// Runtime returns the goja runtime owned by the loop. It is only valid from
// inside a job.
func (l *Loop) Runtime() *goja.Runtime {
	return l.vm
}

// Run drives the loop until it is idle, Stop is called, or ctx is done.
// It must not be called concurrently with itself. Jobs posted after Run
// returns stay queued for the next Run.
func (l *Loop) Run(ctx context.Context) error {
	if l.Stopped() {
		return nil
	}
	l.el.Start()
	defer l.el.Stop()

	for {
		if l.Stopped() || l.refs.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case <-l.idle:
		}
	}
}

// Timer is a pending AfterFunc or Every job. Its methods must be called
// from a loop job.
type Timer struct {
	loop     *Loop
	timeout  *nodeloop.Timer
	interval *nodeloop.Interval
	fired    bool
	stopped  bool
}

// Stop cancels the timer. It reports whether a pending run was prevented.
func (t *Timer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	switch {
	case t.interval != nil:
		t.loop.el.ClearInterval(t.interval)
	case t.timeout != nil:
		t.loop.el.ClearTimeout(t.timeout)
	}
	t.loop.Unref()
	return true
}

// AfterFunc runs fn on the loop after d. The timer holds a loop reference
// until it fires or is stopped. It is armed from a job, so jobs queued
// before the call run before fn even when d is zero.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	t := &Timer{loop: l}
	l.Ref()
	l.Post(func() {
		if t.stopped {
			return
		}
		t.timeout = l.el.SetTimeout(func(vm *goja.Runtime) {
			if t.stopped {
				return
			}
			t.fired = true
			defer l.Unref()
			l.exec(vm, fn)
		}, d)
	})
	return t
}

// Every runs fn on the loop each period d until the timer is stopped. The
// timer holds a loop reference until then.
func (l *Loop) Every(d time.Duration, fn func()) *Timer {
	if d < minInterval {
		d = minInterval
	}
	t := &Timer{loop: l}
	l.Ref()
	l.Post(func() {
		if t.stopped {
			return
		}
		t.interval = l.el.SetInterval(func(vm *goja.Runtime) {
			if t.stopped {
				return
			}
			l.exec(vm, fn)
		}, d)
	})
	return t
}

func (l *Loop) exec(vm *goja.Runtime, job func()) {
	l.vm = vm
	if l.Stopped() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("eventloop: job panicked", zap.Any("panic", r))
		}
	}()
	l.ran.Add(1)
	job()
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
