package modules

import (
	"github.com/wippyai/node-shim/vfs"
)

// FSModule is require("fs").
type FSModule struct {
	fs    *vfs.FS
	paths PathResolver
	post  vfs.Poster
}

// ReadFile reads p. With an empty encoding data is []byte, otherwise the
// decoded string.
func (m *FSModule) ReadFile(p, encoding string, cb func(err error, data any)) {
	abs, err := m.paths.Resolve(p)
	if err != nil {
		m.post.Post(func() { cb(err, nil) })
		return
	}
	if encoding == "" {
		m.fs.ReadFile(abs, func(data []byte, err error) {
			if err != nil {
				cb(err, nil)
				return
			}
			cb(nil, data)
		})
		return
	}
	m.fs.ReadText(abs, encoding, func(text string, err error) {
		if err != nil {
			cb(err, nil)
			return
		}
		cb(nil, text)
	})
}

// Open opens p with Node flags.
func (m *FSModule) Open(p, flags string, cb func(err error, fd int)) {
	abs, err := m.paths.Resolve(p)
	if err != nil {
		m.post.Post(func() { cb(err, -1) })
		return
	}
	if flags == "" {
		flags = "r"
	}
	m.fs.Open(abs, flags, func(fd int, err error) { cb(err, fd) })
}

// Close closes fd.
func (m *FSModule) Close(fd int, cb func(err error)) {
	m.fs.Close(fd, cb)
}

// CreateReadStream returns a stream over fd, or over p opened for reading
// when fd is negative.
func (m *FSModule) CreateReadStream(p string, fd int) (*vfs.ReadStream, error) {
	if fd >= 0 {
		return m.fs.CreateReadStream(p, fd), nil
	}
	abs, err := m.paths.Resolve(p)
	if err != nil {
		return nil, err
	}
	return m.fs.OpenReadStream(abs), nil
}

// CreateWriteStream returns a stream over fd, or over p opened with flags
// when fd is negative.
func (m *FSModule) CreateWriteStream(p string, fd int, flags string) (*vfs.WriteStream, error) {
	if fd >= 0 {
		return m.fs.CreateWriteStream(p, fd), nil
	}
	abs, err := m.paths.Resolve(p)
	if err != nil {
		return nil, err
	}
	return m.fs.OpenWriteStream(abs, flags), nil
}
