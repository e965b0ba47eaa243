package throttle

import (
	"sync"
	"time"
)

// ProgressStream is the key used for transport progress notifications. All
// instances share it, so one busy instance can hold the window for others.
const ProgressStream = "progress"

// Policy lets a named stream emit at most once per interval.
type Policy struct {
	mu       sync.Mutex
	interval time.Duration
	lastEmit map[string]time.Time
}

func New(interval time.Duration) *Policy {
	return &Policy{
		interval: interval,
		lastEmit: make(map[string]time.Time),
	}
}

// ShouldEmit reports whether streamKey may emit at now and records the emit
// when it may.
func (p *Policy) ShouldEmit(streamKey string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastEmit[streamKey]; ok && now.Sub(last) < p.interval {
		return false
	}
	p.lastEmit[streamKey] = now
	return true
}

func (p *Policy) Interval() time.Duration {
	return p.interval
}
