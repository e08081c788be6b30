package modules

import (
	"bytes"
	"strings"
)

// LineSource is a readable stream; *vfs.ReadStream satisfies it.
type LineSource interface {
	OnData(fn func([]byte))
	OnEnd(fn func())
}

// ReadlineModule is require("readline").
type ReadlineModule struct{}

// CreateInterface starts reading input and splits it into lines.
func (m *ReadlineModule) CreateInterface(input LineSource) *Interface {
	i := &Interface{}
	input.OnData(i.feed)
	input.OnEnd(i.finish)
	return i
}

// Interface emits one event per input line, then close at end of input.
type Interface struct {
	onLine  []func(string)
	onClose []func()
	buf     []byte
	closed  bool
}

// OnLine registers a line listener. Lines exclude the terminator.
func (i *Interface) OnLine(fn func(string)) {
	i.onLine = append(i.onLine, fn)
}

// OnClose registers a close listener.
func (i *Interface) OnClose(fn func()) {
	i.onClose = append(i.onClose, fn)
}

// Close stops line delivery and emits close.
func (i *Interface) Close() {
	if i.closed {
		return
	}
	i.closed = true
	i.buf = nil
	for _, fn := range i.onClose {
		fn()
	}
}

func (i *Interface) feed(data []byte) {
	if i.closed {
		return
	}
	i.buf = append(i.buf, data...)
	for !i.closed {
		n := bytes.IndexByte(i.buf, '\n')
		if n < 0 {
			return
		}
		line := strings.TrimSuffix(string(i.buf[:n]), "\r")
		i.buf = i.buf[n+1:]
		i.emit(line)
	}
}

func (i *Interface) finish() {
	if i.closed {
		return
	}
	if len(i.buf) > 0 {
		line := strings.TrimSuffix(string(i.buf), "\r")
		i.buf = nil
		i.emit(line)
	}
	i.Close()
}

func (i *Interface) emit(line string) {
	for _, fn := range i.onLine {
		fn(line)
	}
}
