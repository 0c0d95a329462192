package core

import (
	"sync"
	"time"
)

// Throttle enforces the minimum interval between successful executions of a work order.
type Throttle interface {
	ElapsedEnough(workOrderID int64, now time.Time, periodicity Periodicity) bool
	RecordSuccess(workOrderID int64, now time.Time)
	LastSuccess(workOrderID int64) (time.Time, bool)
}

// ThrottleTracker keeps last-success timestamps in memory. State is lost on restart.
type ThrottleTracker struct {
	mu   sync.RWMutex
	last map[int64]time.Time
}

// NewThrottleTracker returns an empty tracker.
func NewThrottleTracker() *ThrottleTracker {
	return &ThrottleTracker{last: make(map[int64]time.Time)}
}

// ElapsedEnough reports whether the periodicity has passed since the last success.
// Work orders that never succeeded are always eligible.
func (t *ThrottleTracker) ElapsedEnough(workOrderID int64, now time.Time, periodicity Periodicity) bool {
	last, ok := t.LastSuccess(workOrderID)
	if !ok {
		return true
	}
	return now.Sub(last) >= periodicity.Duration()
}

// RecordSuccess creates or overwrites the entry for the work order.
func (t *ThrottleTracker) RecordSuccess(workOrderID int64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[workOrderID] = now
}

func (t *ThrottleTracker) LastSuccess(workOrderID int64) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	last, ok := t.last[workOrderID]
	return last, ok
}

// Snapshot copies the current entries.
func (t *ThrottleTracker) Snapshot() map[int64]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]time.Time, len(t.last))
	for id, ts := range t.last {
		out[id] = ts
	}
	return out
}
