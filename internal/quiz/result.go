package quiz

import "time"

// Result is the final report of a quiz, produced exactly once per session.
type Result struct {
	Reason     FinishReason
	Category   string
	Difficulty Difficulty
	Score      int
	Answered   int
	Requested  int
	Percentage float64
	Elapsed    time.Duration
	Wrong      []AnswerEntry
}

// buildResult snapshots the session into a Result. Caller must ensure the
// session is already detached from the store.
func buildResult(sess *Session, reason FinishReason, now time.Time) Result {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	res := Result{
		Reason:     reason,
		Category:   sess.Category,
		Difficulty: sess.Difficulty,
		Score:      sess.Score,
		Answered:   sess.Answered,
		Requested:  sess.RequestedCount,
	}
	if sess.Answered > 0 {
		res.Percentage = float64(sess.Score) / float64(sess.Answered) * 100
	}
	if !sess.StartedAt.IsZero() {
		res.Elapsed = now.Sub(sess.StartedAt)
	}
	for _, e := range sess.AnswerLog {
		if !e.Right {
			res.Wrong = append(res.Wrong, e)
		}
	}
	return res
}
