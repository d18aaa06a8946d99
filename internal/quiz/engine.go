package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"log/slog"
)

// Presenter renders quiz output to the user. The engine never composes
// user-facing text; it reports semantic events and the presenter owns the
// wording and markup. A send error from PresentQuestion or
// PresentQuizStarted is fatal for the session; notice methods are
// best-effort.
type Presenter interface {
	PresentCategories(ctx context.Context, chatID int64, categories []string) error
	PresentDifficulties(ctx context.Context, chatID int64, category string) error
	PresentCountPrompt(ctx context.Context, chatID int64, available int) error
	PresentDurationPrompt(ctx context.Context, chatID int64, minMinutes, maxMinutes int) error
	PresentQuizStarted(ctx context.Context, chatID int64, minutes int) error
	PresentQuestion(ctx context.Context, chatID int64, view QuestionView) error
	PresentResult(ctx context.Context, chatID int64, res Result) error

	PresentCapacityNotice(ctx context.Context, chatID int64) error
	PresentExpiredNotice(ctx context.Context, chatID int64) error
	PresentInvalidNumber(ctx context.Context, chatID int64) error
	PresentCountRange(ctx context.Context, chatID int64, min, max int) error
	PresentDurationRange(ctx context.Context, chatID int64, min, max int) error
	PresentLookupFailed(ctx context.Context, chatID int64) error
}

// QuestionView is the render-ready form of one question. Options are
// already shuffled; the view does not reveal which one is correct.
type QuestionView struct {
	QuestionIndex int
	Total         int
	Prompt        string
	Options       []string
}

// Limits bounds user-supplied quiz parameters.
type Limits struct {
	MinQuestionCount   int
	MinDurationMinutes int
	MaxDurationMinutes int
}

// Engine drives the quiz state machine. It is safe for concurrent use by
// the transport handlers, timer callbacks, and the reaper.
type Engine struct {
	bank      *Bank
	store     *Store
	timers    *TimerSupervisor
	presenter Presenter
	limits    Limits
	log       *slog.Logger
}

// NewEngine wires the engine over its collaborators.
func NewEngine(bank *Bank, store *Store, timers *TimerSupervisor, p Presenter, limits Limits) *Engine {
	return &Engine{
		bank:      bank,
		store:     store,
		timers:    timers,
		presenter: p,
		limits:    limits,
		log:       logger.Component("quiz.engine"),
	}
}

// StartSelection begins (or restarts) the flow for a user: admission check,
// fresh session in the category phase, category keyboard.
func (e *Engine) StartSelection(ctx context.Context, userID, chatID int64) error {
	if !e.store.Admit(userID) {
		e.deny(ctx, userID, chatID)
		return nil
	}
	sess := NewSession(userID, chatID)
	if err := e.store.Put(sess); err != nil {
		e.deny(ctx, userID, chatID)
		return nil
	}
	if err := e.presenter.PresentCategories(ctx, chatID, e.bank.Categories()); err != nil {
		e.store.Remove(userID)
		return ErrTransport(err)
	}
	logger.LogEvent(ctx, e.log, slog.LevelInfo, "session.created",
		slog.Int64("user_id", userID),
		slog.String("phase", string(PhaseSelectingCategory)),
	)
	return nil
}

func (e *Engine) deny(ctx context.Context, userID, chatID int64) {
	logger.LogEvent(ctx, e.log, slog.LevelWarn, "session.admit.denied",
		slog.Int64("user_id", userID),
		slog.String("err_code", string(KindCapacityExceeded)),
		slog.Int("sessions", e.store.Stats().Sessions),
	)
	e.notice(ctx, e.presenter.PresentCapacityNotice(ctx, chatID))
}

// ChooseCategory handles a category button tap. It always installs a fresh
// session: a tap during an active quiz is a restart, and Put tears the old
// session down together with its countdown.
func (e *Engine) ChooseCategory(ctx context.Context, userID, chatID int64, category string) error {
	if !e.store.Admit(userID) {
		e.deny(ctx, userID, chatID)
		return nil
	}
	sess := NewSession(userID, chatID)
	sess.Category = category
	sess.Phase = PhaseSelectingDifficulty
	if err := e.store.Put(sess); err != nil {
		e.deny(ctx, userID, chatID)
		return nil
	}

	if err := e.presenter.PresentDifficulties(ctx, chatID, category); err != nil {
		e.store.Remove(userID)
		return ErrTransport(err)
	}
	return nil
}

// ChooseDifficulty handles a difficulty button tap. A failed bank lookup
// tears the session down and asks the user to restart.
func (e *Engine) ChooseDifficulty(ctx context.Context, userID, chatID int64, level string) error {
	sess, ok := e.store.Get(userID)
	if !ok {
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return nil
	}

	d, err := ParseDifficulty(level)
	if err != nil {
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return err
	}

	sess.mu.Lock()
	if sess.Done() || sess.Phase != PhaseSelectingDifficulty {
		sess.mu.Unlock()
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return nil
	}
	category := sess.Category
	sess.mu.Unlock()

	pool, err := e.bank.Lookup(category, d)
	if err != nil {
		e.store.Remove(userID)
		logger.LogEvent(ctx, e.log, slog.LevelWarn, "bank.lookup.failed",
			slog.Int64("user_id", userID),
			slog.String("category", category),
			slog.Int("difficulty", int(d)),
			slog.String("err_code", string(KindNotFound)),
		)
		e.notice(ctx, e.presenter.PresentLookupFailed(ctx, chatID))
		return err
	}

	sess.mu.Lock()
	if sess.Done() {
		sess.mu.Unlock()
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return nil
	}
	sess.Difficulty = d
	sess.Pool = pool
	sess.Phase = PhaseAwaitingCount
	sess.touch(time.Now())
	sess.mu.Unlock()

	if err := e.presenter.PresentCountPrompt(ctx, chatID, len(pool)); err != nil {
		e.store.Remove(userID)
		return ErrTransport(err)
	}
	return nil
}

// HandleText routes free-form text by session phase: the question count and
// the duration are typed, everything else is ignored.
func (e *Engine) HandleText(ctx context.Context, userID, chatID int64, text string) error {
	sess, ok := e.store.Get(userID)
	if !ok {
		return nil
	}
	sess.mu.Lock()
	phase := sess.Phase
	sess.mu.Unlock()

	switch phase {
	case PhaseAwaitingCount:
		return e.submitCount(ctx, sess, chatID, text)
	case PhaseAwaitingDuration:
		return e.submitDuration(ctx, sess, chatID, text)
	default:
		return nil
	}
}

func (e *Engine) submitCount(ctx context.Context, sess *Session, chatID int64, text string) error {
	n, convErr := strconv.Atoi(text)

	sess.mu.Lock()
	if sess.Done() || sess.Phase != PhaseAwaitingCount {
		sess.mu.Unlock()
		return nil
	}
	available := len(sess.Pool)
	if convErr != nil {
		sess.mu.Unlock()
		e.notice(ctx, e.presenter.PresentInvalidNumber(ctx, chatID))
		return nil
	}
	if n < e.limits.MinQuestionCount || n > available {
		sess.mu.Unlock()
		e.notice(ctx, e.presenter.PresentCountRange(ctx, chatID, e.limits.MinQuestionCount, available))
		return nil
	}
	sess.RequestedCount = n
	sess.Phase = PhaseAwaitingDuration
	sess.touch(time.Now())
	sess.mu.Unlock()

	if err := e.presenter.PresentDurationPrompt(ctx, chatID, e.limits.MinDurationMinutes, e.limits.MaxDurationMinutes); err != nil {
		e.store.Remove(sess.UserID)
		return ErrTransport(err)
	}
	return nil
}

func (e *Engine) submitDuration(ctx context.Context, sess *Session, chatID int64, text string) error {
	minutes, convErr := strconv.Atoi(text)

	sess.mu.Lock()
	if sess.Done() || sess.Phase != PhaseAwaitingDuration {
		sess.mu.Unlock()
		return nil
	}
	if convErr != nil {
		sess.mu.Unlock()
		e.notice(ctx, e.presenter.PresentInvalidNumber(ctx, chatID))
		return nil
	}
	if minutes < e.limits.MinDurationMinutes || minutes > e.limits.MaxDurationMinutes {
		sess.mu.Unlock()
		e.notice(ctx, e.presenter.PresentDurationRange(ctx, chatID, e.limits.MinDurationMinutes, e.limits.MaxDurationMinutes))
		return nil
	}

	now := time.Now()
	sess.Duration = time.Duration(minutes) * time.Minute
	sess.QuizSet = sample(sess.Pool, sess.RequestedCount)
	sess.StartedAt = now
	sess.CurrentIndex = 0
	sess.Score = 0
	sess.Answered = 0
	sess.AnswerLog = sess.AnswerLog[:0]
	sess.Phase = PhaseInProgress
	sess.touch(now)
	duration := sess.Duration
	count := sess.RequestedCount
	sess.mu.Unlock()

	e.timers.Start(sess.UserID, duration, func() { e.expire(sess) })

	logger.LogEvent(ctx, e.log, slog.LevelInfo, "quiz.started",
		slog.Int64("user_id", sess.UserID),
		slog.String("category", sess.Category),
		slog.Int("difficulty", int(sess.Difficulty)),
		slog.Int("count", count),
		slog.Duration("duration", duration),
	)

	if err := e.presenter.PresentQuizStarted(ctx, chatID, minutes); err != nil {
		e.store.Remove(sess.UserID)
		return ErrTransport(err)
	}
	return e.presentCurrent(ctx, sess)
}

// SubmitAnswer handles an answer button tap. The payload carries the
// question index the button was rendered for, so taps on an outdated
// message are rejected as stale instead of being misapplied.
func (e *Engine) SubmitAnswer(ctx context.Context, userID, chatID int64, questionIndex, optionIndex int) error {
	sess, ok := e.store.Get(userID)
	if !ok {
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return nil
	}

	sess.mu.Lock()
	cur := sess.Current
	if sess.Done() || sess.Phase != PhaseInProgress || cur == nil ||
		cur.QuestionIndex != questionIndex ||
		optionIndex < 0 || optionIndex >= len(cur.Options) {
		sess.mu.Unlock()
		stale := ErrStaleEvent(fmt.Sprintf("answer tap for question %d does not match the current presentation", questionIndex))
		logger.LogEvent(ctx, e.log, slog.LevelDebug, "answer.stale",
			slog.Int64("user_id", userID),
			slog.Int("question_index", questionIndex),
			slog.String("err", stale.Error()),
			slog.String("err_code", stale.Code()),
		)
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return nil
	}

	chosen := cur.Options[optionIndex]
	right := optionIndex == cur.CorrectIndex
	q := sess.QuizSet[cur.QuestionIndex]
	sess.AnswerLog = append(sess.AnswerLog, AnswerEntry{
		Prompt:  q.Prompt,
		Chosen:  chosen,
		Correct: q.CorrectAnswer,
		Right:   right,
	})
	if right {
		sess.Score++
	}
	sess.Answered++
	sess.CurrentIndex++
	sess.Current = nil
	sess.touch(time.Now())
	completed := sess.CurrentIndex >= sess.RequestedCount
	sess.mu.Unlock()

	if completed {
		return e.finish(ctx, sess, ReasonCompleted)
	}
	return e.presentCurrent(ctx, sess)
}

// Cancel ends the quiz early at the user's request.
func (e *Engine) Cancel(ctx context.Context, userID, chatID int64) error {
	sess, ok := e.store.Get(userID)
	if !ok {
		e.notice(ctx, e.presenter.PresentExpiredNotice(ctx, chatID))
		return nil
	}
	return e.finish(ctx, sess, ReasonCancelled)
}

// expire is the timer callback. The closure captures the exact session the
// timer was armed for, so a timer surviving a session swap can never
// finalize the replacement.
func (e *Engine) expire(sess *Session) {
	ctx := logger.Background()
	if err := e.finish(ctx, sess, ReasonTimedOut); err != nil {
		logger.LogEvent(ctx, e.log, slog.LevelWarn, "quiz.expire.report",
			slog.Int64("user_id", sess.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// finish is the single finalization path. FinishTake decides the winner
// when several finalizers race; only the winner builds and delivers the
// result, losers return without side effects.
func (e *Engine) finish(ctx context.Context, sess *Session, reason FinishReason) error {
	if !e.store.FinishTake(sess.UserID, sess) {
		noop := ErrInternal("session already detached by another finalizer")
		logger.LogEvent(ctx, e.log, slog.LevelDebug, "quiz.finish.noop",
			slog.Int64("user_id", sess.UserID),
			slog.String("reason", string(reason)),
			slog.String("err", noop.Error()),
			slog.String("err_code", noop.Code()),
		)
		return nil
	}
	res := buildResult(sess, reason, time.Now())
	logger.LogEvent(ctx, e.log, slog.LevelInfo, "quiz.finished",
		slog.Int64("user_id", sess.UserID),
		slog.String("reason", string(reason)),
		slog.Int("score", res.Score),
		slog.Int("answered", res.Answered),
		slog.Duration("duration", logger.RoundMS(res.Elapsed)),
	)
	if err := e.presenter.PresentResult(ctx, sess.ChatID, res); err != nil {
		return ErrTransport(err)
	}
	return nil
}

// presentCurrent shuffles and shows the question at the session's current
// index. A send failure tears the session down without a result.
func (e *Engine) presentCurrent(ctx context.Context, sess *Session) error {
	sess.mu.Lock()
	if sess.Done() || sess.Phase != PhaseInProgress || sess.CurrentIndex >= len(sess.QuizSet) {
		sess.mu.Unlock()
		return nil
	}
	idx := sess.CurrentIndex
	q := sess.QuizSet[idx]
	options, correct := shuffleOptions(q)
	sess.Current = &Presentation{
		QuestionIndex: idx,
		Prompt:        q.Prompt,
		Options:       options,
		CorrectIndex:  correct,
	}
	view := QuestionView{
		QuestionIndex: idx,
		Total:         sess.RequestedCount,
		Prompt:        q.Prompt,
		Options:       options,
	}
	chatID := sess.ChatID
	sess.mu.Unlock()

	if err := e.presenter.PresentQuestion(ctx, chatID, view); err != nil {
		e.store.Remove(sess.UserID)
		logger.LogEvent(ctx, e.log, slog.LevelError, "question.send.failed",
			slog.Int64("user_id", sess.UserID),
			slog.Int("question_index", idx),
			slog.String("err", err.Error()),
			slog.String("err_code", string(KindTransport)),
		)
		return ErrTransport(err)
	}
	return nil
}

// notice logs best-effort prompt failures without failing the operation.
func (e *Engine) notice(ctx context.Context, err error) {
	if err != nil {
		logger.LogEvent(ctx, e.log, slog.LevelWarn, "notice.send.failed",
			slog.String("err", err.Error()),
		)
	}
}

// Stats reports engine occupancy for the admin surface.
func (e *Engine) Stats() Snapshot { return e.store.Stats() }

// sample returns n random questions from pool without replacement.
func sample(pool []Question, n int) []Question {
	idx := rand.Perm(len(pool))
	out := make([]Question, 0, n)
	for _, i := range idx[:n] {
		out = append(out, pool[i])
	}
	return out
}

// shuffleOptions returns the four answers in random order and the position
// of the correct one.
func shuffleOptions(q Question) ([]string, int) {
	all := q.Options()
	order := rand.Perm(len(all))
	options := make([]string, len(all))
	correct := 0
	for pos, src := range order {
		options[pos] = all[src]
		if src == 0 {
			correct = pos
		}
	}
	return options, correct
}
