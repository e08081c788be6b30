package eventloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
)

func runLoop(t *testing.T, l *Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestLoop_RunsJobsInPostOrder(t *testing.T) {
	l := New()
	var got []int
	for i := 0; i < 5; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}

	runLoop(t, l)
	for i, v := range got {
		if v != i {
			t.Fatalf("expected post order, got %v", got)
		}
	}
	if l.Executed() != 5 {
		t.Errorf("expected 5 executed jobs, got %d", l.Executed())
	}
}

func TestLoop_JobsPostedFromJobsRunInSameRun(t *testing.T) {
	l := New()
	var got []string
	l.Post(func() {
		got = append(got, "a")
		l.Post(func() { got = append(got, "c") })
	})
	l.Post(func() { got = append(got, "b") })

	runLoop(t, l)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected order %v", got)
	}
}

func TestLoop_RefKeepsLoopAlive(t *testing.T) {
	l := New()
	l.Ref()

	var wg sync.WaitGroup
	wg.Add(1)
	done := false
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		l.Post(func() { done = true })
		l.Unref()
	}()

	runLoop(t, l)
	wg.Wait()
	if !done {
		t.Error("expected job posted by referenced work to run")
	}
}

func TestLoop_RunAgainAfterIdle(t *testing.T) {
	l := New()
	runs := 0
	l.Post(func() { runs++ })
	runLoop(t, l)

	l.Post(func() { runs++ })
	runLoop(t, l)
	if runs != 2 {
		t.Errorf("expected the job posted between runs to execute, ran %d", runs)
	}
}

func TestLoop_AfterFunc(t *testing.T) {
	l := New()
	var order []string
	l.Post(func() {
		l.AfterFunc(5*time.Millisecond, func() { order = append(order, "timer") })
		order = append(order, "job")
	})

	runLoop(t, l)
	if len(order) != 2 || order[0] != "job" || order[1] != "timer" {
		t.Errorf("expected timer to fire after the job and before idle, got %v", order)
	}
}

func TestLoop_TimerStopReleasesRef(t *testing.T) {
	l := New()
	fired := false
	var first, second bool
	l.Post(func() {
		timer := l.AfterFunc(time.Hour, func() { fired = true })
		first = timer.Stop()
		second = timer.Stop()
	})

	runLoop(t, l)
	if !first {
		t.Error("expected Stop to cancel pending timer")
	}
	if second {
		t.Error("second Stop should report false")
	}
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestLoop_Every(t *testing.T) {
	l := New()
	ticks := 0
	l.Post(func() {
		var timer *Timer
		timer = l.Every(time.Millisecond, func() {
			ticks++
			if ticks == 3 {
				timer.Stop()
			}
		})
	})

	runLoop(t, l)
	if ticks != 3 {
		t.Errorf("expected 3 ticks before Stop, got %d", ticks)
	}
}

func TestLoop_RuntimeIsSharedAcrossJobs(t *testing.T) {
	l := New()
	var a, b *goja.Runtime
	l.Post(func() { a = l.Runtime() })
	l.Post(func() { b = l.Runtime() })

	runLoop(t, l)
	if a == nil || a != b {
		t.Errorf("expected one runtime for every job, got %p and %p", a, b)
	}
}

func TestLoop_Stop(t *testing.T) {
	l := New()
	ran := 0
	l.Post(func() {
		ran++
		l.Stop()
	})
	l.Post(func() { ran++ })

	runLoop(t, l)
	if ran != 1 {
		t.Errorf("expected queued job to be skipped after Stop, ran %d", ran)
	}
	if !l.Stopped() {
		t.Error("expected Stopped to report true")
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	l := New()
	l.Ref()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); err == nil {
		t.Error("expected context error while a reference is held")
	}
}

func TestLoop_PanickingJobDoesNotStopLoop(t *testing.T) {
	l := New()
	after := false
	l.Post(func() { panic("boom") })
	l.Post(func() { after = true })

	runLoop(t, l)
	if !after {
		t.Error("expected loop to continue after a panicking job")
	}
}
