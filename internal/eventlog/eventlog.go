// Package eventlog keeps the bounded, process-lifetime activity feed of
// replication events. The newest event is always listed first.
package eventlog

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/The-Promised-Neverland/syncmonitor/internal/models"
	"github.com/google/uuid"
)

const DefaultMaxEvents = 1000

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Log is a fixed-capacity ring buffer. Appending past capacity overwrites
// the oldest entry.
type Log struct {
	mu    sync.RWMutex
	clock Clock
	data  []models.ReplicationEvent
	head  int // index of the next write
	count int
	last  time.Time
}

func New(maxEvents int, clock Clock) *Log {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if clock == nil {
		clock = systemClock{}
	}
	return &Log{
		clock: clock,
		data:  make([]models.ReplicationEvent, maxEvents),
	}
}

// Append stamps the draft with an id and timestamp and stores it. Stamping
// happens under the lock so timestamps never decrease in storage order.
func (l *Log) Append(draft models.ReplicationEvent) models.ReplicationEvent {
	l.mu.Lock()
	now := l.clock.Now()
	if now.Before(l.last) {
		now = l.last
	}
	l.last = now
	draft.ID = newEventID(now)
	draft.Timestamp = now

	l.data[l.head] = draft
	l.head = (l.head + 1) % len(l.data)
	if l.count < len(l.data) {
		l.count++
	}
	l.mu.Unlock()
	return draft
}

// List returns up to limit events, newest first. limit <= 0 returns all.
func (l *Log) List(limit int) []models.ReplicationEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := l.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.ReplicationEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, l.at(i))
	}
	return out
}

// CountSince counts retained events stamped at or after t.
func (l *Log) CountSince(t time.Time) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for i := 0; i < l.count; i++ {
		if !l.at(i).Timestamp.Before(t) {
			n++
		}
	}
	return n
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

func (l *Log) Cap() int {
	return len(l.data)
}

// at returns the i-th newest event. Caller holds the lock.
func (l *Log) at(i int) models.ReplicationEvent {
	idx := (l.head - 1 - i + len(l.data)) % len(l.data)
	return l.data[idx]
}

// newEventID combines the millisecond timestamp with a random suffix so ids
// stay unique within the same millisecond.
func newEventID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%d-%s", now.UnixMilli(), suffix)
}
