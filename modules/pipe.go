package modules

import (
	"github.com/wippyai/node-shim/bridge"
)

// Pipe2Func is require("node-pipe2"): it creates a kernel pipe and reports
// its read and write descriptors.
type Pipe2Func func(cb func(err error, rfd, wfd int))

// NewPipe2 binds pipe creation to b.
func NewPipe2(b bridge.Bridge) Pipe2Func {
	return func(cb func(err error, rfd, wfd int)) {
		b.Call(bridge.OpPipe2, []any{0}, func(res bridge.Result) {
			if res.Err != nil {
				cb(res.Err, -1, -1)
				return
			}
			rfd, err := res.Args.Int(0)
			if err != nil {
				cb(err, -1, -1)
				return
			}
			wfd, err := res.Args.Int(1)
			if err != nil {
				cb(err, -1, -1)
				return
			}
			cb(nil, rfd, wfd)
		})
	}
}
