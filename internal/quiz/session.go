package quiz

import (
	"sync"
	"sync/atomic"
	"time"
)

// Phase is the step of the quiz flow a session is currently in.
type Phase string

const (
	PhaseSelectingCategory   Phase = "selecting_category"
	PhaseSelectingDifficulty Phase = "selecting_difficulty"
	PhaseAwaitingCount       Phase = "awaiting_count"
	PhaseAwaitingDuration    Phase = "awaiting_duration"
	PhaseInProgress          Phase = "in_progress"
	PhaseFinished            Phase = "finished"
)

// FinishReason records why a quiz ended.
type FinishReason string

const (
	ReasonCompleted FinishReason = "completed"
	ReasonCancelled FinishReason = "cancelled"
	ReasonTimedOut  FinishReason = "timed_out"
)

// AnswerEntry records one answered question for the final report.
type AnswerEntry struct {
	Prompt  string
	Chosen  string
	Correct string
	Right   bool
}

// Presentation is the question currently shown to the user. Answer
// callbacks carry the question index so taps on an older message are
// detected as stale.
type Presentation struct {
	QuestionIndex int
	Prompt        string
	Options       []string
	CorrectIndex  int
}

// Session is the per-user quiz state. All mutable fields are guarded by mu;
// done and lastActivity are atomics so the store and reaper can read them
// without taking the session lock.
type Session struct {
	mu sync.Mutex

	UserID int64
	ChatID int64

	Phase      Phase
	Category   string
	Difficulty Difficulty

	Pool           []Question
	QuizSet        []Question
	RequestedCount int
	Duration       time.Duration
	StartedAt      time.Time

	CurrentIndex int
	Current      *Presentation
	Score        int
	Answered     int
	AnswerLog    []AnswerEntry

	done         atomic.Bool
	lastActivity atomic.Int64
}

// NewSession creates a session in the category selection phase.
func NewSession(userID, chatID int64) *Session {
	s := &Session{
		UserID: userID,
		ChatID: chatID,
		Phase:  PhaseSelectingCategory,
	}
	s.touch(time.Now())
	return s
}

// Done reports whether the session has been finalized or evicted.
// A detached session must not be mutated or presented again.
func (s *Session) Done() bool { return s.done.Load() }

func (s *Session) markDone() { s.done.Store(true) }

func (s *Session) touch(now time.Time) { s.lastActivity.Store(now.UnixNano()) }

// LastActivity returns the time of the last user interaction.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

func (s *Session) idleSince(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity()) > timeout
}
