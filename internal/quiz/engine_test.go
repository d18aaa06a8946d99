package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const engineBankFixture = `{
  "categories": [
    {
      "category": "Math",
      "difficulty_levels": {
        "1": [
          {"question": "q1", "true_answer": "r1", "answer_1": "a", "answer_2": "b", "answer_3": "c"},
          {"question": "q2", "true_answer": "r2", "answer_1": "a", "answer_2": "b", "answer_3": "c"},
          {"question": "q3", "true_answer": "r3", "answer_1": "a", "answer_2": "b", "answer_3": "c"},
          {"question": "q4", "true_answer": "r4", "answer_1": "a", "answer_2": "b", "answer_3": "c"},
          {"question": "q5", "true_answer": "r5", "answer_1": "a", "answer_2": "b", "answer_3": "c"}
        ]
      }
    }
  ]
}`

// fakePresenter records every render call; individual methods can be
// forced to fail to exercise transport error paths.
type fakePresenter struct {
	mu sync.Mutex

	calls     []string
	questions []QuestionView
	results   []Result

	questionErr error
	categoryErr error
}

func (p *fakePresenter) record(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, name)
}

func (p *fakePresenter) callCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (p *fakePresenter) lastQuestion() (QuestionView, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.questions) == 0 {
		return QuestionView{}, false
	}
	return p.questions[len(p.questions)-1], true
}

func (p *fakePresenter) allResults() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Result(nil), p.results...)
}

func (p *fakePresenter) PresentCategories(ctx context.Context, chatID int64, categories []string) error {
	p.record("categories")
	return p.categoryErr
}

func (p *fakePresenter) PresentDifficulties(ctx context.Context, chatID int64, category string) error {
	p.record("difficulties")
	return nil
}

func (p *fakePresenter) PresentCountPrompt(ctx context.Context, chatID int64, available int) error {
	p.record(fmt.Sprintf("count_prompt:%d", available))
	return nil
}

func (p *fakePresenter) PresentDurationPrompt(ctx context.Context, chatID int64, minMinutes, maxMinutes int) error {
	p.record("duration_prompt")
	return nil
}

func (p *fakePresenter) PresentQuizStarted(ctx context.Context, chatID int64, minutes int) error {
	p.record("quiz_started")
	return nil
}

func (p *fakePresenter) PresentQuestion(ctx context.Context, chatID int64, view QuestionView) error {
	p.mu.Lock()
	p.calls = append(p.calls, "question")
	p.questions = append(p.questions, view)
	err := p.questionErr
	p.mu.Unlock()
	return err
}

func (p *fakePresenter) PresentResult(ctx context.Context, chatID int64, res Result) error {
	p.mu.Lock()
	p.calls = append(p.calls, "result")
	p.results = append(p.results, res)
	p.mu.Unlock()
	return nil
}

func (p *fakePresenter) PresentCapacityNotice(ctx context.Context, chatID int64) error {
	p.record("capacity_notice")
	return nil
}

func (p *fakePresenter) PresentExpiredNotice(ctx context.Context, chatID int64) error {
	p.record("expired_notice")
	return nil
}

func (p *fakePresenter) PresentInvalidNumber(ctx context.Context, chatID int64) error {
	p.record("invalid_number")
	return nil
}

func (p *fakePresenter) PresentCountRange(ctx context.Context, chatID int64, min, max int) error {
	p.record(fmt.Sprintf("count_range:%d..%d", min, max))
	return nil
}

func (p *fakePresenter) PresentDurationRange(ctx context.Context, chatID int64, min, max int) error {
	p.record("duration_range")
	return nil
}

func (p *fakePresenter) PresentLookupFailed(ctx context.Context, chatID int64) error {
	p.record("lookup_failed")
	return nil
}

func newTestEngine(t *testing.T, capacity int) (*Engine, *Store, *fakePresenter) {
	t.Helper()
	bank, err := LoadBank(writeBankFile(t, engineBankFixture))
	require.NoError(t, err)
	timers := NewTimerSupervisor()
	store := NewStore(capacity, time.Hour, timers)
	p := &fakePresenter{}
	e := NewEngine(bank, store, timers, p, Limits{
		MinQuestionCount:   1,
		MinDurationMinutes: 1,
		MaxDurationMinutes: 120,
	})
	return e, store, p
}

// startQuiz drives a user through the selection flow into an in-progress
// quiz of n questions.
func startQuiz(t *testing.T, e *Engine, store *Store, userID int64, n int) *Session {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.StartSelection(ctx, userID, userID))
	require.NoError(t, e.ChooseCategory(ctx, userID, userID, "Math"))
	require.NoError(t, e.ChooseDifficulty(ctx, userID, userID, "1"))
	require.NoError(t, e.HandleText(ctx, userID, userID, fmt.Sprintf("%d", n)))
	require.NoError(t, e.HandleText(ctx, userID, userID, "5"))

	sess, ok := store.Get(userID)
	require.True(t, ok)
	require.Equal(t, PhaseInProgress, sess.Phase)
	return sess
}

// answerCurrent taps an option on the currently presented question.
func answerCurrent(t *testing.T, e *Engine, sess *Session, right bool) {
	t.Helper()
	sess.mu.Lock()
	cur := sess.Current
	require.NotNil(t, cur)
	qIdx := cur.QuestionIndex
	opt := cur.CorrectIndex
	if !right {
		opt = (cur.CorrectIndex + 1) % len(cur.Options)
	}
	sess.mu.Unlock()
	require.NoError(t, e.SubmitAnswer(context.Background(), sess.UserID, sess.ChatID, qIdx, opt))
}

func TestEngineFullFlowCompleted(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	sess := startQuiz(t, e, store, 1, 3)

	answerCurrent(t, e, sess, true)
	answerCurrent(t, e, sess, false)
	answerCurrent(t, e, sess, true)

	results := p.allResults()
	require.Len(t, results, 1)
	res := results[0]
	require.Equal(t, ReasonCompleted, res.Reason)
	require.Equal(t, 2, res.Score)
	require.Equal(t, 3, res.Answered)
	require.Equal(t, 3, res.Requested)
	require.InDelta(t, 66.66, res.Percentage, 0.1)
	require.Len(t, res.Wrong, 1)
	require.GreaterOrEqual(t, res.Elapsed, time.Duration(0))

	_, ok := store.Get(1)
	require.False(t, ok, "completed session is removed")
	require.Equal(t, 0, store.Stats().Timers)
	require.Equal(t, 3, p.callCount("question"))
}

func TestEngineCountValidation(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	ctx := context.Background()
	require.NoError(t, e.StartSelection(ctx, 1, 1))
	require.NoError(t, e.ChooseCategory(ctx, 1, 1, "Math"))
	require.NoError(t, e.ChooseDifficulty(ctx, 1, 1, "1"))

	// Pool holds 5 questions; 15 is out of range, text stays in phase.
	require.NoError(t, e.HandleText(ctx, 1, 1, "15"))
	require.Equal(t, 1, p.callCount("count_range:1..5"))
	sess, ok := store.Get(1)
	require.True(t, ok)
	require.Equal(t, PhaseAwaitingCount, sess.Phase)

	require.NoError(t, e.HandleText(ctx, 1, 1, "abc"))
	require.Equal(t, 1, p.callCount("invalid_number"))
	require.Equal(t, PhaseAwaitingCount, sess.Phase)

	require.NoError(t, e.HandleText(ctx, 1, 1, "5"))
	require.Equal(t, PhaseAwaitingDuration, sess.Phase)
}

func TestEngineDurationValidation(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	ctx := context.Background()
	require.NoError(t, e.StartSelection(ctx, 1, 1))
	require.NoError(t, e.ChooseCategory(ctx, 1, 1, "Math"))
	require.NoError(t, e.ChooseDifficulty(ctx, 1, 1, "1"))
	require.NoError(t, e.HandleText(ctx, 1, 1, "2"))

	require.NoError(t, e.HandleText(ctx, 1, 1, "0"))
	require.NoError(t, e.HandleText(ctx, 1, 1, "121"))
	require.Equal(t, 2, p.callCount("duration_range"))

	sess, ok := store.Get(1)
	require.True(t, ok)
	require.Equal(t, PhaseAwaitingDuration, sess.Phase)
}

func TestEngineCancel(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	sess := startQuiz(t, e, store, 1, 3)
	answerCurrent(t, e, sess, true)

	require.NoError(t, e.Cancel(context.Background(), 1, 1))

	results := p.allResults()
	require.Len(t, results, 1)
	require.Equal(t, ReasonCancelled, results[0].Reason)
	require.Equal(t, 1, results[0].Answered)
	require.Equal(t, 3, results[0].Requested)
	require.InDelta(t, 100.0, results[0].Percentage, 0.01)

	_, ok := store.Get(1)
	require.False(t, ok)
}

func TestEngineTimedOutWithoutAnswers(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	sess := startQuiz(t, e, store, 1, 3)

	e.expire(sess)

	results := p.allResults()
	require.Len(t, results, 1)
	require.Equal(t, ReasonTimedOut, results[0].Reason)
	require.Equal(t, 0, results[0].Answered)
	require.Equal(t, 0.0, results[0].Percentage, "0/0 renders as zero percent")

	_, ok := store.Get(1)
	require.False(t, ok)
}

func TestEngineFinalizeExactlyOnce(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	sess := startQuiz(t, e, store, 1, 1)

	sess.mu.Lock()
	qIdx := sess.Current.QuestionIndex
	opt := sess.Current.CorrectIndex
	sess.mu.Unlock()

	var wg sync.WaitGroup
	start := make(chan struct{})
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		e.expire(sess)
	}()
	go func() {
		defer wg.Done()
		<-start
		_ = e.SubmitAnswer(context.Background(), 1, 1, qIdx, opt)
	}()
	close(start)
	wg.Wait()

	require.Len(t, p.allResults(), 1, "racing finalizers must produce exactly one result")
	_, ok := store.Get(1)
	require.False(t, ok)
}

func TestEngineStaleAnswerRejected(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	sess := startQuiz(t, e, store, 1, 3)

	sess.mu.Lock()
	qIdx := sess.Current.QuestionIndex
	sess.mu.Unlock()

	// A tap carrying an older question index is ignored.
	require.NoError(t, e.SubmitAnswer(context.Background(), 1, 1, qIdx+7, 0))
	require.Equal(t, 1, p.callCount("expired_notice"))

	sess.mu.Lock()
	require.Equal(t, 0, sess.Answered)
	require.Equal(t, qIdx, sess.Current.QuestionIndex)
	sess.mu.Unlock()
}

func TestEngineAnswerWithoutSession(t *testing.T) {
	e, _, p := newTestEngine(t, 10)
	require.NoError(t, e.SubmitAnswer(context.Background(), 99, 99, 0, 0))
	require.Equal(t, 1, p.callCount("expired_notice"))
	require.Equal(t, 0, p.callCount("result"))
}

func TestEngineCapacityDenied(t *testing.T) {
	e, store, p := newTestEngine(t, 1)
	ctx := context.Background()
	require.NoError(t, e.StartSelection(ctx, 1, 1))

	require.NoError(t, e.StartSelection(ctx, 2, 2))
	require.Equal(t, 1, p.callCount("capacity_notice"))
	_, ok := store.Get(2)
	require.False(t, ok, "denied user gets no session")

	// The occupant can still restart.
	require.NoError(t, e.StartSelection(ctx, 1, 1))
	require.Equal(t, 1, store.Stats().Sessions)
}

func TestEngineLookupFailureTearsDown(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	ctx := context.Background()
	require.NoError(t, e.StartSelection(ctx, 1, 1))
	require.NoError(t, e.ChooseCategory(ctx, 1, 1, "Math"))

	// Fixture has no difficulty 3 for Math.
	err := e.ChooseDifficulty(ctx, 1, 1, "3")
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, 1, p.callCount("lookup_failed"))
	_, ok := store.Get(1)
	require.False(t, ok)
}

func TestEngineQuestionSendFailureTearsDown(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	ctx := context.Background()
	require.NoError(t, e.StartSelection(ctx, 1, 1))
	require.NoError(t, e.ChooseCategory(ctx, 1, 1, "Math"))
	require.NoError(t, e.ChooseDifficulty(ctx, 1, 1, "1"))
	require.NoError(t, e.HandleText(ctx, 1, 1, "2"))

	p.mu.Lock()
	p.questionErr = errors.New("telegram down")
	p.mu.Unlock()

	err := e.HandleText(ctx, 1, 1, "5")
	require.Equal(t, KindTransport, KindOf(err))
	_, ok := store.Get(1)
	require.False(t, ok, "send failure tears the session down")
	require.Equal(t, 0, store.Stats().Timers)
	require.Equal(t, 0, p.callCount("result"), "no result after a fatal send failure")
}

func TestEngineRestartDuringQuiz(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	old := startQuiz(t, e, store, 1, 3)

	require.NoError(t, e.StartSelection(context.Background(), 1, 1))
	require.True(t, old.Done())
	require.Equal(t, 0, store.Stats().Timers, "restart cancels the old countdown")

	// A timer left over from the old session cannot finalize the new one.
	e.expire(old)
	require.Empty(t, p.allResults())
	fresh, ok := store.Get(1)
	require.True(t, ok)
	require.Equal(t, PhaseSelectingCategory, fresh.Phase)
}

func TestEngineCategoryRestartTearsDownTimer(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	old := startQuiz(t, e, store, 1, 3)
	require.Equal(t, 1, store.Stats().Timers)

	// A category tap during an active quiz is a restart: the old session
	// and its countdown must both go away.
	require.NoError(t, e.ChooseCategory(context.Background(), 1, 1, "Math"))
	require.Equal(t, 0, store.Stats().Timers)
	require.True(t, old.Done())

	fresh, ok := store.Get(1)
	require.True(t, ok)
	require.NotSame(t, old, fresh)
	require.Equal(t, PhaseSelectingDifficulty, fresh.Phase)
	require.Equal(t, "Math", fresh.Category)

	// A countdown that outlived the restart cannot produce a result or
	// evict the replacement session.
	e.expire(old)
	require.Empty(t, p.allResults())
	got, ok := store.Get(1)
	require.True(t, ok)
	require.Same(t, fresh, got)
}

func TestEngineQuestionViewHidesAnswer(t *testing.T) {
	e, store, p := newTestEngine(t, 10)
	sess := startQuiz(t, e, store, 1, 1)

	view, ok := p.lastQuestion()
	require.True(t, ok)
	require.Len(t, view.Options, 4)
	require.Equal(t, 1, view.Total)

	sess.mu.Lock()
	correct := sess.Current.Options[sess.Current.CorrectIndex]
	want := sess.QuizSet[0].CorrectAnswer
	sess.mu.Unlock()
	require.Contains(t, view.Options, correct)
	require.Equal(t, want, correct)
}
