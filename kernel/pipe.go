package kernel

import (
	"io"
	"sync"
)

// pipe is an unbounded in-memory pipe. Writes never block, so a guest that
// writes before it reads cannot stall the kernel's request loop; reads
// block until data arrives or the write end closes.
type pipe struct {
	cond        *sync.Cond
	buf         []byte
	mu          sync.Mutex
	writeClosed bool
	readClosed  bool
}

func newPipe() (*pipeReader, *pipeWriter) {
	p := &pipe{}
	p.cond = sync.NewCond(&p.mu)
	return &pipeReader{p}, &pipeWriter{p}
}

type pipeReader struct{ p *pipe }

func (r *pipeReader) Read(b []byte) (int, error) {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 {
		if p.writeClosed || p.readClosed {
			return 0, io.EOF
		}
		p.cond.Wait()
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (r *pipeReader) Close() error {
	p := r.p
	p.mu.Lock()
	p.readClosed = true
	p.buf = nil
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}

type pipeWriter struct{ p *pipe }

func (w *pipeWriter) Write(b []byte) (int, error) {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeClosed || p.readClosed {
		return 0, io.ErrClosedPipe
	}
	p.buf = append(p.buf, b...)
	p.cond.Broadcast()
	return len(b), nil
}

func (w *pipeWriter) Close() error {
	p := w.p
	p.mu.Lock()
	p.writeClosed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	return nil
}
