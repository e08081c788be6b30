package bridge

import (
	stderrors "errors"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/node-shim/errors"
)

// Loop is the subset of the host loop the client needs: completions are
// posted to it, and in-flight calls hold a reference so it stays alive.
type Loop interface {
	Post(fn func())
	Ref()
	Unref()
}

// Result is the completion of one request.
type Result struct {
	Err  error
	Op   string
	Args Args
}

// Callback receives a request's completion on the loop goroutine.
type Callback func(Result)

// InitEvent is the one-time startup event.
type InitEvent struct {
	Env  map[string]string
	Argv []string
}

// Bridge is the asynchronous syscall transport seen by the shim.
type Bridge interface {
	// Call issues op with positional args. cb runs exactly once on the loop.
	Call(op string, args []any, cb Callback)
	// Notify sends a fire-and-forget message.
	Notify(op string, args ...any)
	// OnInit registers the startup handler. The init event is delivered once.
	OnInit(fn func(InitEvent))
}

// Client is the shim side of the bridge.
type Client struct {
	conn      *Conn
	loop      Loop
	pending   map[uint64]pendingCall
	onInit    func(InitEvent)
	initEvent *InitEvent
	closeErr  error
	nextID    uint64
	mu        sync.Mutex
	initDone  bool
	waitInit  bool
}

type pendingCall struct {
	cb Callback
	op string
}

var _ Bridge = (*Client)(nil)

// NewClient creates a client over conn that delivers completions to loop.
// Call Start to begin reading.
func NewClient(conn *Conn, loop Loop) *Client {
	return &Client{
		conn:    conn,
		loop:    loop,
		pending: make(map[uint64]pendingCall),
	}
}

// Start launches the reader goroutine.
func (c *Client) Start() {
	go c.readLoop()
}

// Call implements Bridge.
func (c *Client) Call(op string, args []any, cb Callback) {
	c.loop.Ref()

	wire, err := EncodeArgs(args...)
	if err != nil {
		c.complete(cb, Result{Op: op, Err: errors.TransportFailure(op, err)})
		return
	}

	c.mu.Lock()
	if c.closeErr != nil {
		closeErr := c.closeErr
		c.mu.Unlock()
		c.complete(cb, Result{Op: op, Err: errors.TransportFailure(op, closeErr)})
		return
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = pendingCall{op: op, cb: cb}
	c.mu.Unlock()

	if err := c.conn.Send(&Message{ID: id, Kind: KindRequest, Op: op, Args: wire}); err != nil {
		c.mu.Lock()
		_, ok := c.pending[id]
		delete(c.pending, id)
		c.mu.Unlock()
		if ok {
			c.complete(cb, Result{Op: op, Err: errors.TransportFailure(op, err)})
		}
	}
}

// Notify implements Bridge.
func (c *Client) Notify(op string, args ...any) {
	wire, err := EncodeArgs(args...)
	if err != nil {
		Logger().Error("bridge: encode notify", zap.String("op", op), zap.Error(err))
		return
	}
	if err := c.conn.Send(&Message{Kind: KindNotify, Op: op, Args: wire}); err != nil {
		Logger().Warn("bridge: notify failed", zap.String("op", op), zap.Error(err))
	}
}

// OnInit implements Bridge. Until the event arrives the loop is kept alive.
func (c *Client) OnInit(fn func(InitEvent)) {
	c.mu.Lock()
	c.onInit = fn
	ev := c.initEvent
	deliver := ev != nil && !c.initDone
	if deliver {
		c.initDone = true
	} else if !c.initDone && !c.waitInit {
		c.waitInit = true
		c.loop.Ref()
	}
	c.mu.Unlock()

	if deliver {
		c.loop.Post(func() { fn(*ev) })
	}
}

// Close closes the connection; outstanding calls fail with a transport error.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Pending returns the number of requests awaiting completion.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) complete(cb Callback, res Result) {
	c.loop.Post(func() {
		c.loop.Unref()
		if cb != nil {
			cb(res)
		}
	})
}

func (c *Client) readLoop() {
	for {
		m, err := c.conn.Receive()
		if err != nil {
			c.fail(err)
			return
		}
		switch m.Kind {
		case KindResponse:
			c.handleResponse(m)
		case KindEvent:
			c.handleEvent(m)
		default:
			Logger().Warn("bridge: unexpected message",
				zap.String("kind", m.Kind.String()),
				zap.String("op", m.Op))
		}
	}
}

func (c *Client) handleResponse(m *Message) {
	c.mu.Lock()
	call, ok := c.pending[m.ID]
	delete(c.pending, m.ID)
	c.mu.Unlock()
	if !ok {
		Logger().Warn("bridge: response for unknown request", zap.Uint64("id", m.ID))
		return
	}

	res := Result{Op: call.op, Args: m.Args}
	if m.Err != "" {
		res.Err = errors.TransportFailure(call.op, stderrors.New(m.Err))
	}
	c.complete(call.cb, res)
}

func (c *Client) handleEvent(m *Message) {
	if m.Op != OpInit {
		Logger().Debug("bridge: ignoring event", zap.String("op", m.Op))
		return
	}

	var ev InitEvent
	if err := m.Args.Decode(0, &ev.Argv); err != nil {
		Logger().Error("bridge: malformed init event", zap.Error(err))
		return
	}
	if m.Args.Len() > 1 {
		if err := m.Args.Decode(1, &ev.Env); err != nil {
			Logger().Error("bridge: malformed init environment", zap.Error(err))
			return
		}
	}
	if ev.Env == nil {
		ev.Env = make(map[string]string)
	}

	c.mu.Lock()
	if c.initEvent != nil {
		c.mu.Unlock()
		Logger().Warn("bridge: duplicate init event ignored")
		return
	}
	c.initEvent = &ev
	fn := c.onInit
	deliver := fn != nil && !c.initDone
	if deliver {
		c.initDone = true
	}
	wasWaiting := c.waitInit
	c.waitInit = false
	c.mu.Unlock()

	if deliver {
		c.loop.Post(func() {
			if wasWaiting {
				c.loop.Unref()
			}
			fn(ev)
		})
	}
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = err
	}
	calls := c.pending
	c.pending = make(map[uint64]pendingCall)
	wasWaiting := c.waitInit
	c.waitInit = false
	c.mu.Unlock()

	Logger().Debug("bridge: connection closed", zap.Error(err), zap.Int("pending", len(calls)))
	for _, call := range calls {
		c.complete(call.cb, Result{Op: call.op, Err: errors.TransportFailure(call.op, err)})
	}
	if wasWaiting {
		c.loop.Unref()
	}
}
