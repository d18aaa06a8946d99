package quiz

import (
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"log/slog"
)

// Store holds active sessions keyed by user ID, enforces the global
// capacity cap, and owns the shared teardown path that keeps the session
// map and the timer supervisor in sync.
//
// Lock order: Store.mu may be taken before TimerSupervisor.mu, never the
// other way round.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	timers   *TimerSupervisor
	capacity int
	timeout  time.Duration
}

// NewStore creates a store with the given capacity cap and idle timeout.
func NewStore(capacity int, timeout time.Duration, timers *TimerSupervisor) *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		timers:   timers,
		capacity: capacity,
		timeout:  timeout,
	}
}

// Admit reports whether a session for userID may exist. An existing
// session is refreshed and admitted. At capacity a reap pass runs first;
// admission is denied only if reaping frees nothing.
func (s *Store) Admit(userID int64) bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.touch(now)
		return true
	}
	if len(s.sessions) < s.capacity {
		return true
	}
	s.reapLocked(now)
	return len(s.sessions) < s.capacity
}

// Put installs a session for its user, tearing down any previous one
// first. It fails with a capacity error when the store is full and a reap
// pass frees nothing; the rejected session is never registered.
func (s *Store) Put(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.sessions[sess.UserID]; ok {
		s.teardownLocked(sess.UserID, prev)
	}
	if len(s.sessions) >= s.capacity {
		s.reapLocked(time.Now())
	}
	if len(s.sessions) >= s.capacity {
		return ErrCapacityExceeded()
	}
	s.sessions[sess.UserID] = sess
	return nil
}

// Get returns the live session for userID, if any.
func (s *Store) Get(userID int64) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Touch refreshes the activity timestamp of an existing session.
func (s *Store) Touch(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		sess.touch(time.Now())
	}
}

// Remove tears down the session for userID if one exists. Idempotent.
func (s *Store) Remove(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[userID]; ok {
		s.teardownLocked(userID, sess)
	}
}

// FinishTake atomically detaches a session: it cancels the user's timer,
// removes the map entry, and marks the session done, but only when the map
// still points at the exact session the caller holds. Exactly one of the
// racing finalizers (last answer, cancel, timer expiry, reaper) gets true;
// every other caller sees false and must not produce a result.
func (s *Store) FinishTake(userID int64, sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[userID]
	if !ok || cur != sess {
		return false
	}
	s.teardownLocked(userID, cur)
	return true
}

// Reap evicts every session idle longer than the timeout and returns the
// number evicted.
func (s *Store) Reap(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reapLocked(now)
}

// reapLocked snapshots expired IDs first, then tears each down, so the map
// is never mutated while being ranged. Caller holds s.mu.
func (s *Store) reapLocked(now time.Time) int {
	var expired []int64
	for id, sess := range s.sessions {
		if sess.idleSince(now, s.timeout) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		sess := s.sessions[id]
		s.teardownLocked(id, sess)
		logger.Info(logger.Background(), "quiz.store", "session.reaped",
			slog.Int64("user_id", id),
			slog.String("phase", string(sess.Phase)),
		)
	}
	return len(expired)
}

// teardownLocked is the single removal path: cancel the timer, drop the
// map entry, mark the session detached. Caller holds s.mu.
func (s *Store) teardownLocked(userID int64, sess *Session) {
	s.timers.Cancel(userID)
	delete(s.sessions, userID)
	sess.markDone()
}

// Snapshot is a point-in-time view of store occupancy.
type Snapshot struct {
	Sessions int
	Timers   int
}

// Stats returns current session and timer counts.
func (s *Store) Stats() Snapshot {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	return Snapshot{Sessions: n, Timers: s.timers.Count()}
}
