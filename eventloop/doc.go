// Package eventloop implements the host's cooperative job loop on top of
// goja_nodejs/eventloop.
//
// Every asynchronous wake-up in the shim is a job posted to a Loop: syscall
// completions delivered by the bridge, tick-queue drains, timers, and
// deferred exits. Jobs go through RunOnLoop and timers through the node
// loop's SetTimeout/SetInterval, so they all run on the single loop
// goroutine and never race with other shim code. The JavaScript engine runs
// guests on the same goroutine, using the runtime the loop owns.
//
// The node loop runs in the background for the duration of Run. Idleness
// is decided here: a reference count covers queued jobs, pending timers and
// in-flight syscalls, and Run returns when it drops to zero.
//
//	loop := eventloop.New()
//	loop.Post(func() { fmt.Println("first") })
//	loop.Post(func() {
//		loop.AfterFunc(10*time.Millisecond, func() { fmt.Println("later") })
//	})
//	_ = loop.Run(ctx) // returns once nothing is queued or referenced
package eventloop
