package resource

import (
	"errors"
	"sync"
)

var (
	ErrClosed   = errors.New("descriptor table closed")
	ErrBadFD    = errors.New("bad file descriptor")
	ErrFDInUse  = errors.New("file descriptor already in use")
	ErrTooMany  = errors.New("too many open files")
	errNegative = errors.New("negative file descriptor")
)

// DefaultLimit caps the number of simultaneously open descriptors.
const DefaultLimit = 1024

// Table maps descriptor numbers to host objects. New descriptors take the
// lowest free number, as POSIX open(2) does.
type Table struct {
	entries   []*Descriptor
	observers []Observer
	limit     int
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

// NewTable creates an empty descriptor table.
func NewTable() *Table {
	return &Table{
		entries: make([]*Descriptor, 0, 16),
		limit:   DefaultLimit,
	}
}

// Install places d at a specific fd. Used for the standard descriptors.
func (t *Table) Install(fd FD, d *Descriptor) error {
	if fd < 0 {
		return errNegative
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	if int(fd) >= t.limit {
		t.mu.Unlock()
		return ErrTooMany
	}
	for len(t.entries) <= int(fd) {
		t.entries = append(t.entries, nil)
	}
	if t.entries[fd] != nil {
		t.mu.Unlock()
		return ErrFDInUse
	}
	t.entries[fd] = d
	t.mu.Unlock()

	t.notify(Event{Type: EventOpened, FD: fd, Descriptor: d})
	return nil
}

// Open stores d under the lowest free descriptor number.
func (t *Table) Open(d *Descriptor) (FD, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return -1, ErrClosed
	}
	fd := FD(-1)
	for i, e := range t.entries {
		if e == nil {
			fd = FD(i)
			break
		}
	}
	if fd < 0 {
		if len(t.entries) >= t.limit {
			t.mu.Unlock()
			return -1, ErrTooMany
		}
		t.entries = append(t.entries, nil)
		fd = FD(len(t.entries) - 1)
	}
	t.entries[fd] = d
	t.mu.Unlock()

	t.notify(Event{Type: EventOpened, FD: fd, Descriptor: d})
	return fd, nil
}

// Get returns the descriptor for fd.
func (t *Table) Get(fd FD) (*Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || int(fd) >= len(t.entries) || t.entries[fd] == nil {
		return nil, false
	}
	return t.entries[fd], true
}

// Close removes fd and closes its host object.
func (t *Table) Close(fd FD) error {
	t.mu.Lock()
	if fd < 0 || int(fd) >= len(t.entries) || t.entries[fd] == nil {
		t.mu.Unlock()
		return ErrBadFD
	}
	d := t.entries[fd]
	t.entries[fd] = nil
	t.mu.Unlock()

	var err error
	if d.Closer != nil {
		err = d.Closer.Close()
	}
	t.notify(Event{Type: EventClosed, FD: fd, Descriptor: d})
	return err
}

// Len returns the number of open descriptors.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, e := range t.entries {
		if e != nil {
			n++
		}
	}
	return n
}

// SetLimit changes the maximum number of descriptors.
func (t *Table) SetLimit(n int) {
	t.mu.Lock()
	t.limit = n
	t.mu.Unlock()
}

// CloseAll closes every descriptor and stops accepting new ones.
func (t *Table) CloseAll() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	entries := t.entries
	t.entries = nil
	t.mu.Unlock()

	var first error
	for i, d := range entries {
		if d == nil {
			continue
		}
		if d.Closer != nil {
			if err := d.Closer.Close(); err != nil && first == nil {
				first = err
			}
		}
		t.notify(Event{Type: EventClosed, FD: FD(i), Descriptor: d})
	}
	return first
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := t.observers
	t.obsMu.RUnlock()
	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
