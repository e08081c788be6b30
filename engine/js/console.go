package js

import (
	"go.uber.org/zap"

	"github.com/wippyai/node-shim/process"
)

// printer routes console output to the guest's stdout and stderr streams.
type printer struct {
	g *guest
}

func (p printer) Log(s string)   { p.write(p.g.scope.Process.Stdout(), s) }
func (p printer) Warn(s string)  { p.write(p.g.scope.Process.Stderr(), s) }
func (p printer) Error(s string) { p.write(p.g.scope.Process.Stderr(), s) }

func (p printer) write(out process.OutputStream, s string) {
	if out == nil {
		Logger().Info("js: console", zap.String("line", s))
		return
	}
	out.Write([]byte(s+"\n"), nil)
}
