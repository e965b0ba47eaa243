package scheduler

import (
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/pkg/logger"
)

// Task runs fn repeatedly: first after an initial delay, then every interval.
// The next run is scheduled only after fn returns, so runs never overlap.
type Task struct {
	name     string
	clock    Clock
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   Timer
	stopped bool
	runs    int
}

func Every(clock Clock, name string, initialDelay, interval time.Duration, fn func()) *Task {
	if clock == nil {
		clock = RealClock{}
	}
	t := &Task{
		name:     name,
		clock:    clock,
		interval: interval,
		fn:       fn,
	}
	t.mu.Lock()
	t.timer = clock.AfterFunc(initialDelay, t.tick)
	t.mu.Unlock()
	return t
}

// Stop cancels the pending run. A run already in progress completes but is
// not rescheduled.
func (t *Task) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *Task) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Task) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func (t *Task) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.runs++
	t.mu.Unlock()

	t.run()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer = t.clock.AfterFunc(t.interval, t.tick)
}

func (t *Task) run() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("Scheduled task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn()
}
