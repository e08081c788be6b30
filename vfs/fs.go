package vfs

import (
	"github.com/wippyai/node-shim/bridge"
)

// readChunk is the request size for stream reads.
const readChunk = 64 * 1024

// Poster runs a function later on the host loop.
type Poster interface {
	Post(fn func())
}

// FS issues filesystem syscalls over a bridge.
type FS struct {
	bridge bridge.Bridge
	post   Poster
}

// New creates a filesystem client. post is used to deliver completions
// that fail before reaching the bridge, so callbacks are never synchronous.
func New(b bridge.Bridge, post Poster) *FS {
	return &FS{bridge: b, post: post}
}

// ReadFile reads the whole file at path.
func (f *FS) ReadFile(path string, cb func([]byte, error)) {
	f.bridge.Call(bridge.OpReadFile, []any{path}, func(res bridge.Result) {
		if res.Err != nil {
			cb(nil, res.Err)
			return
		}
		data, err := res.Args.Bytes(0)
		cb(data, err)
	})
}

// ReadText reads the file at path and decodes it with encoding.
func (f *FS) ReadText(path, encoding string, cb func(string, error)) {
	f.ReadFile(path, func(data []byte, err error) {
		if err != nil {
			cb("", err)
			return
		}
		cb(Decode(data, encoding))
	})
}

// Open opens path with Node-style flags ("r", "w", "a", ...).
func (f *FS) Open(path, flags string, cb func(fd int, err error)) {
	f.bridge.Call(bridge.OpOpen, []any{path, flags}, func(res bridge.Result) {
		if res.Err != nil {
			cb(-1, res.Err)
			return
		}
		fd, err := res.Args.Int(0)
		if err != nil {
			cb(-1, err)
			return
		}
		cb(fd, nil)
	})
}

// Close releases fd.
func (f *FS) Close(fd int, cb func(error)) {
	f.bridge.Call(bridge.OpClose, []any{fd}, func(res bridge.Result) {
		if cb != nil {
			cb(res.Err)
		}
	})
}

// Write writes data to fd.
func (f *FS) Write(fd int, data []byte, cb func(n int, err error)) {
	f.bridge.Call(bridge.OpWrite, []any{fd, data}, func(res bridge.Result) {
		if cb == nil {
			return
		}
		if res.Err != nil {
			cb(0, res.Err)
			return
		}
		n, err := res.Args.Int(0)
		cb(n, err)
	})
}

// Read reads up to n bytes from fd. eof reports that the descriptor is drained.
func (f *FS) Read(fd, n int, cb func(data []byte, eof bool, err error)) {
	f.bridge.Call(bridge.OpRead, []any{fd, n}, func(res bridge.Result) {
		if res.Err != nil {
			cb(nil, false, res.Err)
			return
		}
		data, err := res.Args.Bytes(0)
		if err != nil {
			cb(nil, false, err)
			return
		}
		var eof bool
		if res.Args.Len() > 1 {
			if err := res.Args.Decode(1, &eof); err != nil {
				cb(nil, false, err)
				return
			}
		}
		cb(data, eof, nil)
	})
}

// CreateReadStream binds a read stream to an already open descriptor.
func (f *FS) CreateReadStream(path string, fd int) *ReadStream {
	return &ReadStream{fs: f, path: path, fd: fd, chunk: readChunk}
}

// CreateWriteStream binds a write stream to an already open descriptor.
func (f *FS) CreateWriteStream(path string, fd int) *WriteStream {
	return &WriteStream{fs: f, path: path, fd: fd}
}

// OpenReadStream opens path for reading and returns a stream that starts
// delivering data once the open completes. The descriptor is closed at EOF.
func (f *FS) OpenReadStream(path string) *ReadStream {
	r := &ReadStream{fs: f, path: path, fd: -1, chunk: readChunk, opening: true, autoClose: true}
	f.Open(path, "r", func(fd int, err error) {
		r.opening = false
		if err != nil {
			r.fail(err)
			return
		}
		r.fd = fd
		r.pull()
	})
	return r
}

// OpenWriteStream opens path with flags and returns a stream that queues
// writes until the open completes. End closes the descriptor.
func (f *FS) OpenWriteStream(path, flags string) *WriteStream {
	if flags == "" {
		flags = "w"
	}
	w := &WriteStream{fs: f, path: path, fd: -1, opening: true, autoClose: true}
	f.Open(path, flags, func(fd int, err error) {
		w.opening = false
		w.fd = fd
		if err != nil {
			w.err = err
		}
		queued := w.queued
		w.queued = nil
		for _, op := range queued {
			op()
		}
		w.maybeFinish()
	})
	return w
}
