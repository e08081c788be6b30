package modules

import (
	"fmt"
	"strings"

	"github.com/wippyai/node-shim/bridge"
	"github.com/wippyai/node-shim/vfs"
)

// ChildProcessModule is require("child_process"). Children run in the
// kernel to completion; their output is buffered.
type ChildProcessModule struct {
	bridge bridge.Bridge
	paths  PathResolver
	post   vfs.Poster
}

// ExecError reports a child that exited with a non-zero status.
type ExecError struct {
	Cmd    string
	Stderr string
	Code   int
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("Command failed: %s", e.Cmd)
	if e.Stderr != "" {
		msg += "\n" + e.Stderr
	}
	return msg
}

// ExecFile runs file with args. err is an *ExecError for a non-zero exit
// and a transport failure when the child could not be started.
func (m *ChildProcessModule) ExecFile(file string, args []string, cb func(err error, stdout, stderr string)) {
	// Children inherit the kernel cwd, which is only meaningful once resolved.
	if _, err := m.paths.Resolve("."); err != nil {
		m.post.Post(func() { cb(err, "", "") })
		return
	}
	if args == nil {
		args = []string{}
	}
	m.bridge.Call(bridge.OpSpawn, []any{file, args}, func(res bridge.Result) {
		if res.Err != nil {
			cb(res.Err, "", "")
			return
		}
		stdout, err := res.Args.Bytes(0)
		if err != nil {
			cb(err, "", "")
			return
		}
		stderr, err := res.Args.Bytes(1)
		if err != nil {
			cb(err, "", "")
			return
		}
		code, err := res.Args.Int(2)
		if err != nil {
			cb(err, "", "")
			return
		}
		if code != 0 {
			cmd := strings.Join(append([]string{file}, args...), " ")
			cb(&ExecError{Cmd: cmd, Stderr: string(stderr), Code: code}, string(stdout), string(stderr))
			return
		}
		cb(nil, string(stdout), string(stderr))
	})
}
