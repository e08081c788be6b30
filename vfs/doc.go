// Package vfs is the guest-side view of the kernel's filesystem.
//
// Every operation is a bridge round trip and completes through a callback
// on the host loop. FS covers whole-file reads and descriptor calls;
// ReadStream and WriteStream wrap a descriptor with Node-style stream
// semantics (flowing reads, ordered writes, end-then-finish).
package vfs
