package bridge

import (
	"io"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Conn carries CBOR-encoded messages over a byte stream. CBOR items are
// self-delimiting, so no extra framing is needed. Send is safe for
// concurrent use; Receive must be called from a single goroutine.
type Conn struct {
	rwc  io.ReadWriteCloser
	enc  *cbor.Encoder
	dec  *cbor.Decoder
	wmu  sync.Mutex
	once sync.Once
}

// NewConn wraps rwc.
func NewConn(rwc io.ReadWriteCloser) *Conn {
	return &Conn{
		rwc: rwc,
		enc: encMode.NewEncoder(rwc),
		dec: cbor.NewDecoder(rwc),
	}
}

// Pipe returns two connected in-memory ends: one for the client, one for the kernel.
func Pipe() (client, kernel *Conn) {
	a, b := net.Pipe()
	return NewConn(a), NewConn(b)
}

// Send writes one message.
func (c *Conn) Send(m *Message) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.enc.Encode(m)
}

// Receive blocks for the next message.
func (c *Conn) Receive() (*Message, error) {
	var m Message
	if err := c.dec.Decode(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Close closes the underlying stream. Subsequent calls are no-ops.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.rwc.Close()
	})
	return err
}
