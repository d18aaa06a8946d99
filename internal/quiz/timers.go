package quiz

import (
	"sync"
	"time"
)

// TimerSupervisor owns at most one countdown timer per user. Starting a
// timer for a user silently replaces any previous one; cancelling an
// absent or already-fired timer is a no-op.
type TimerSupervisor struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

// NewTimerSupervisor creates an empty supervisor.
func NewTimerSupervisor() *TimerSupervisor {
	return &TimerSupervisor{timers: make(map[int64]*time.Timer)}
}

// Start schedules fn to run after d, replacing any existing timer for
// userID. fn runs on the timer goroutine exactly once unless the timer is
// cancelled or replaced first.
func (ts *TimerSupervisor) Start(userID int64, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if prev, ok := ts.timers[userID]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		ts.clear(userID, t)
		fn()
	})
	ts.timers[userID] = t
}

// clear removes the entry only if it still points at the fired timer, so a
// replacement registered after the fire is left untouched.
func (ts *TimerSupervisor) clear(userID int64, t *time.Timer) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if cur, ok := ts.timers[userID]; ok && cur == t {
		delete(ts.timers, userID)
	}
}

// Cancel stops and forgets the user's timer if one exists.
func (ts *TimerSupervisor) Cancel(userID int64) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.timers[userID]; ok {
		t.Stop()
		delete(ts.timers, userID)
	}
}

// Count returns the number of tracked timers.
func (ts *TimerSupervisor) Count() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}
