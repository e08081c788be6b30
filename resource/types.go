package resource

import "io"

// FD is a process-level file descriptor number.
type FD int

// Standard descriptors installed for every guest.
const (
	Stdin  FD = 0
	Stdout FD = 1
	Stderr FD = 2
)

// Descriptor is the host object behind an FD. Either side may be nil:
// a pipe's read end has no Writer, stdout has no Reader.
type Descriptor struct {
	Reader io.Reader
	Writer io.Writer
	Closer io.Closer
	Name   string
}

// Readable reports whether the descriptor can be read from.
func (d *Descriptor) Readable() bool { return d.Reader != nil }

// Writable reports whether the descriptor can be written to.
func (d *Descriptor) Writable() bool { return d.Writer != nil }

// EventType identifies a descriptor lifecycle event.
type EventType uint8

const (
	EventOpened EventType = iota
	EventClosed
)

// Event represents a descriptor lifecycle event.
type Event struct {
	Descriptor *Descriptor
	FD         FD
	Type       EventType
}

// Observer receives notifications about descriptor lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}
