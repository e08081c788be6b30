package boot

import (
	"github.com/wippyai/node-shim/process"
	"github.com/wippyai/node-shim/vfs"
)

// StreamFactory builds the standard stream handles on descriptors 0, 1
// and 2.
type StreamFactory interface {
	Input(fd int) process.InputStream
	Output(fd int) process.OutputStream
}

var stdNames = map[int]string{0: "<stdin>", 1: "<stdout>", 2: "<stderr>"}

// VFSStreams builds descriptor-bound streams on a virtual filesystem.
type VFSStreams struct {
	FS *vfs.FS
}

// Input implements StreamFactory.
func (v VFSStreams) Input(fd int) process.InputStream {
	return v.FS.CreateReadStream(stdNames[fd], fd)
}

// Output implements StreamFactory.
func (v VFSStreams) Output(fd int) process.OutputStream {
	return v.FS.CreateWriteStream(stdNames[fd], fd)
}
