package tick

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wippyai/node-shim/errors"
)

// Task is a deferred callback. Args are the values captured at enqueue time.
type Task func(args ...any) error

// Poster schedules a function to run asynchronously on the host loop.
// *eventloop.Loop satisfies it.
type Poster interface {
	Post(fn func())
}

type entry struct {
	fn   Task
	args []any
}

// Scheduler is a cooperative tick queue.
//
// Tasks run in breadth-by-pass order: everything enqueued before a pass runs
// in that pass, and anything enqueued while a pass runs waits for the next
// pass of the same drain. At most one wake-up is outstanding at any time.
//
// A Scheduler is not safe for concurrent use; all calls must happen on the
// goroutine that runs the Poster's jobs.
type Scheduler struct {
	post     Poster
	onError  func(error)
	queue    []entry
	passes   uint64
	draining bool
	pending  bool
}

// New creates a scheduler that wakes itself through post.
func New(post Poster) *Scheduler {
	return &Scheduler{post: post}
}

// OnError sets the handler for failures raised during a wake-up drain.
// By default they are logged.
func (s *Scheduler) OnError(fn func(error)) {
	s.onError = fn
}

// Enqueue appends fn to the queue. If no drain is running and no wake-up is
// pending, exactly one wake-up is posted.
func (s *Scheduler) Enqueue(fn Task, args ...any) {
	if fn == nil {
		return
	}
	s.queue = append(s.queue, entry{fn: fn, args: args})
	s.wake()
}

// Drain runs queued tasks until a pass leaves nothing behind. It is a no-op
// when called from inside a running drain.
//
// If a task returns an error or panics, the drain stops, the tasks of the
// current pass that did not run are put back at the head of the queue, a
// wake-up is scheduled for them, and the failure is returned wrapped as
// KindTaskFailure. The draining flag is released on every path.
func (s *Scheduler) Drain() (err error) {
	if s.draining {
		return nil
	}
	s.draining = true

	var current []entry
	i := 0
	defer func() {
		if r := recover(); r != nil {
			err = errors.TaskFailure(fmt.Errorf("panic: %v", r))
		}
		if err != nil && i+1 < len(current) {
			rest := current[i+1:]
			requeued := make([]entry, 0, len(rest)+len(s.queue))
			requeued = append(requeued, rest...)
			s.queue = append(requeued, s.queue...)
		}
		s.draining = false
		if len(s.queue) > 0 {
			s.wake()
		}
	}()

	for len(s.queue) > 0 {
		current = s.queue
		s.queue = nil
		s.passes++
		for i = 0; i < len(current); i++ {
			e := current[i]
			if taskErr := e.fn(e.args...); taskErr != nil {
				return errors.TaskFailure(taskErr)
			}
		}
	}
	current = nil
	return nil
}

// Len returns the number of queued tasks.
func (s *Scheduler) Len() int { return len(s.queue) }

// Passes returns the number of drain passes executed so far.
func (s *Scheduler) Passes() uint64 { return s.passes }

// Draining reports whether a drain is in progress.
func (s *Scheduler) Draining() bool { return s.draining }

// Pending reports whether a wake-up has been posted and not yet run.
func (s *Scheduler) Pending() bool { return s.pending }

func (s *Scheduler) wake() {
	if s.draining || s.pending {
		return
	}
	s.pending = true
	s.post.Post(s.wakeup)
}

func (s *Scheduler) wakeup() {
	s.pending = false
	if err := s.Drain(); err != nil {
		s.report(err)
	}
}

func (s *Scheduler) report(err error) {
	if s.onError != nil {
		s.onError(err)
		return
	}
	Logger().Error("tick: task failed", zap.Error(err))
}
