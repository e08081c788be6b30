package vfs

import (
	"go.uber.org/zap"

	"github.com/wippyai/node-shim/errors"
)

// ReadStream delivers a descriptor's contents in chunks. It starts reading
// once it is flowing: the first OnData registration or an explicit Resume.
// A stream that is never read from issues no requests.
type ReadStream struct {
	fs        *FS
	onData    []func([]byte)
	onEnd     []func()
	onError   []func(error)
	path      string
	fd        int
	chunk     int
	opening   bool
	flowing   bool
	reading   bool
	ended     bool
	closed    bool
	autoClose bool
}

// Path returns the name the stream was created with.
func (r *ReadStream) Path() string { return r.path }

// FD returns the bound descriptor, or -1 while an open is in flight.
func (r *ReadStream) FD() int { return r.fd }

// Ended reports whether EOF or an error has been delivered.
func (r *ReadStream) Ended() bool { return r.ended }

// OnData registers a chunk listener and switches the stream to flowing.
func (r *ReadStream) OnData(fn func([]byte)) {
	r.onData = append(r.onData, fn)
	r.Resume()
}

// OnEnd registers an EOF listener.
func (r *ReadStream) OnEnd(fn func()) {
	r.onEnd = append(r.onEnd, fn)
}

// OnError registers an error listener.
func (r *ReadStream) OnError(fn func(error)) {
	r.onError = append(r.onError, fn)
}

// Resume starts or continues reading.
func (r *ReadStream) Resume() {
	r.flowing = true
	r.pull()
}

// Pause stops reading after the in-flight chunk, if any.
func (r *ReadStream) Pause() {
	r.flowing = false
}

// Close stops the stream. Descriptors above stderr are closed in the kernel.
func (r *ReadStream) Close(cb func(error)) {
	if r.closed {
		r.fs.post.Post(func() { callErr(cb, nil) })
		return
	}
	r.closed = true
	r.flowing = false
	if r.fd > 2 {
		r.fs.Close(r.fd, cb)
		return
	}
	r.fs.post.Post(func() { callErr(cb, nil) })
}

func (r *ReadStream) pull() {
	if !r.flowing || r.reading || r.ended || r.closed || r.opening {
		return
	}
	r.reading = true
	r.fs.Read(r.fd, r.chunk, func(data []byte, eof bool, err error) {
		r.reading = false
		if r.closed {
			return
		}
		if err != nil {
			r.fail(err)
			return
		}
		if len(data) > 0 {
			for _, fn := range r.onData {
				fn(data)
			}
		}
		if eof {
			r.ended = true
			for _, fn := range r.onEnd {
				fn()
			}
			if r.autoClose && r.fd > 2 {
				r.closed = true
				r.fs.Close(r.fd, nil)
			}
			return
		}
		r.pull()
	})
}

func (r *ReadStream) fail(err error) {
	r.ended = true
	if len(r.onError) == 0 {
		Logger().Warn("vfs: unhandled read stream error", zap.String("path", r.path), zap.Error(err))
		return
	}
	for _, fn := range r.onError {
		fn(err)
	}
}

// WriteStream writes to a descriptor. Writes are issued in call order and
// the kernel applies them in that order. End waits for every outstanding
// write before reporting completion.
type WriteStream struct {
	fs        *FS
	err       error
	queued    []func()
	finish    []func(error)
	path      string
	fd        int
	pending   int
	written   int
	opening   bool
	ended     bool
	finished  bool
	autoClose bool
}

// Path returns the name the stream was created with.
func (w *WriteStream) Path() string { return w.path }

// FD returns the bound descriptor, or -1 while an open is in flight.
func (w *WriteStream) FD() int { return w.fd }

// BytesWritten returns the number of bytes the kernel acknowledged.
func (w *WriteStream) BytesWritten() int { return w.written }

// Ended reports whether End has been called.
func (w *WriteStream) Ended() bool { return w.ended }

// Write sends data. cb, if non-nil, runs once the kernel has applied it.
func (w *WriteStream) Write(data []byte, cb func(error)) {
	if w.ended {
		err := errors.Closed(errors.PhaseTransport, "write stream "+w.path)
		w.fs.post.Post(func() { callErr(cb, err) })
		return
	}
	if w.opening {
		buf := append([]byte(nil), data...)
		w.queued = append(w.queued, func() { w.issue(buf, cb) })
		return
	}
	w.issue(data, cb)
}

// WriteString is Write for text.
func (w *WriteStream) WriteString(s string, cb func(error)) {
	w.Write([]byte(s), cb)
}

// End marks the stream finished. cb runs after all earlier writes have
// completed (and the descriptor is closed, for streams that opened it) and
// receives the first write error, if any.
func (w *WriteStream) End(cb func(error)) {
	if w.finished {
		err := w.err
		w.fs.post.Post(func() { callErr(cb, err) })
		return
	}
	w.ended = true
	if cb != nil {
		w.finish = append(w.finish, cb)
	}
	w.maybeFinish()
}

func (w *WriteStream) issue(data []byte, cb func(error)) {
	if w.fd < 0 {
		err := w.err
		if err == nil {
			err = errors.Closed(errors.PhaseTransport, "write stream "+w.path)
		}
		w.fs.post.Post(func() { callErr(cb, err) })
		return
	}
	w.pending++
	w.fs.Write(w.fd, data, func(n int, err error) {
		w.pending--
		w.written += n
		if err != nil && w.err == nil {
			w.err = err
		}
		callErr(cb, err)
		w.maybeFinish()
	})
}

func (w *WriteStream) maybeFinish() {
	if !w.ended || w.finished || w.opening || w.pending > 0 {
		return
	}
	w.finished = true
	fns := w.finish
	w.finish = nil
	done := func(err error) {
		for _, fn := range fns {
			fn(err)
		}
	}
	if w.autoClose && w.fd > 2 {
		w.fs.Close(w.fd, func(err error) {
			if w.err != nil {
				err = w.err
			}
			done(err)
		})
		return
	}
	err := w.err
	w.fs.post.Post(func() { done(err) })
}

func callErr(cb func(error), err error) {
	if cb != nil {
		cb(err)
	}
}
