package bridge

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind distinguishes the four message shapes carried by the bridge.
type Kind uint8

const (
	KindRequest  Kind = iota + 1 // client -> kernel, expects a response with the same ID
	KindResponse                 // kernel -> client, completes a request
	KindEvent                    // kernel -> client, unsolicited (init)
	KindNotify                   // client -> kernel, fire-and-forget (exit)
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	case KindEvent:
		return "event"
	case KindNotify:
		return "notify"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Syscall operation names understood by the kernel.
const (
	OpInit     = "init"
	OpGetcwd   = "getcwd"
	OpChdir    = "chdir"
	OpReadFile = "readFile"
	OpOpen     = "open"
	OpRead     = "read"
	OpWrite    = "write"
	OpClose    = "close"
	OpPipe2    = "pipe2"
	OpSpawn    = "spawn"
	OpExit     = "exit"
)

// Message is one frame on the wire. Arguments are kept as raw CBOR so each
// side decodes them into the concrete types its operation expects.
type Message struct {
	Op   string `cbor:"3,keyasint,omitempty"`
	Err  string `cbor:"5,keyasint,omitempty"`
	Args Args   `cbor:"4,keyasint,omitempty"`
	ID   uint64 `cbor:"1,keyasint"`
	Kind Kind   `cbor:"2,keyasint"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bridge: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Args is a positional argument list in wire form.
type Args []cbor.RawMessage

// EncodeArgs converts Go values into wire arguments.
func EncodeArgs(values ...any) (Args, error) {
	args := make(Args, 0, len(values))
	for i, v := range values {
		data, err := encMode.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("bridge: encode arg %d: %w", i, err)
		}
		args = append(args, data)
	}
	return args, nil
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

// Decode unmarshals argument i into v.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("bridge: argument %d missing (have %d)", i, len(a))
	}
	if err := cbor.Unmarshal(a[i], v); err != nil {
		return fmt.Errorf("bridge: decode arg %d: %w", i, err)
	}
	return nil
}

// String decodes argument i as a string.
func (a Args) String(i int) (string, error) {
	var s string
	err := a.Decode(i, &s)
	return s, err
}

// Int decodes argument i as an int.
func (a Args) Int(i int) (int, error) {
	var n int
	err := a.Decode(i, &n)
	return n, err
}

// Bytes decodes argument i as a byte string.
func (a Args) Bytes(i int) ([]byte, error) {
	var b []byte
	err := a.Decode(i, &b)
	return b, err
}
