package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/quizbot/internal/quiz"

	tele "gopkg.in/telebot.v4"
)

// Callback uniques shared by the keyboards and the dispatch table.
const (
	cbCategory   = "quiz_cat"
	cbDifficulty = "quiz_diff"
	cbAnswer     = "quiz_ans"
	cbCancel     = "quiz_cancel"
	cbRestart    = "quiz_restart"
)

// resultTextLimit keeps the final report safely below the Telegram message
// size cap; overflow mistakes are summarized as a count.
const resultTextLimit = 3500

// presenter renders quiz output through the bot API. It implements
// quiz.Presenter.
type presenter struct {
	bot *tele.Bot
}

func newPresenter(bot *tele.Bot) *presenter {
	return &presenter{bot: bot}
}

func (p *presenter) send(chatID int64, what any, opts ...any) error {
	_, err := p.bot.Send(tele.ChatID(chatID), what, opts...)
	return err
}

func (p *presenter) PresentCategories(ctx context.Context, chatID int64, categories []string) error {
	buttons := make([]inlineBtn, 0, len(categories))
	for _, cat := range categories {
		buttons = append(buttons, inlineBtn{Text: cat, Unique: cbCategory, Data: cat})
	}
	return p.send(chatID, "👋 Welcome to the quiz!\n\nPick a category:", inlineRows(chunk(buttons, 2)...))
}

func (p *presenter) PresentDifficulties(ctx context.Context, chatID int64, category string) error {
	row := []inlineBtn{
		{Text: "🟢 Easy", Unique: cbDifficulty, Data: "1"},
		{Text: "🟡 Medium", Unique: cbDifficulty, Data: "2"},
		{Text: "🔴 Hard", Unique: cbDifficulty, Data: "3"},
	}
	text := fmt.Sprintf("📚 Category: %s\n\nChoose difficulty:", category)
	return p.send(chatID, text, inlineRows(row))
}

func (p *presenter) PresentCountPrompt(ctx context.Context, chatID int64, available int) error {
	text := fmt.Sprintf("🔢 How many questions? Send a number from 1 to %d.", available)
	return p.send(chatID, text)
}

func (p *presenter) PresentDurationPrompt(ctx context.Context, chatID int64, minMinutes, maxMinutes int) error {
	text := fmt.Sprintf("⏱ How many minutes for the quiz? Send a number from %d to %d.", minMinutes, maxMinutes)
	return p.send(chatID, text)
}

func (p *presenter) PresentQuizStarted(ctx context.Context, chatID int64, minutes int) error {
	return p.send(chatID, fmt.Sprintf("🚀 Quiz started! You have %d min. Good luck!", minutes))
}

func (p *presenter) PresentQuestion(ctx context.Context, chatID int64, view quiz.QuestionView) error {
	rows := make([][]inlineBtn, 0, len(view.Options)+1)
	for i, opt := range view.Options {
		rows = append(rows, []inlineBtn{{
			Text:   opt,
			Unique: cbAnswer,
			Data:   fmt.Sprintf("%d|%d", view.QuestionIndex, i),
		}})
	}
	rows = append(rows, []inlineBtn{{Text: "❌ Cancel quiz", Unique: cbCancel, Data: "cancel"}})

	text := fmt.Sprintf("❓ Question %d of %d\n\n%s", view.QuestionIndex+1, view.Total, view.Prompt)
	return p.send(chatID, text, inlineRows(rows...))
}

func (p *presenter) PresentResult(ctx context.Context, chatID int64, res quiz.Result) error {
	markup := inlineRows([]inlineBtn{{Text: "🔄 New quiz", Unique: cbRestart, Data: "restart"}})
	return p.send(chatID, renderResult(res), markup)
}

func (p *presenter) PresentCapacityNotice(ctx context.Context, chatID int64) error {
	return p.send(chatID, "😔 The bot is at full capacity right now. Please try again in a few minutes.")
}

func (p *presenter) PresentExpiredNotice(ctx context.Context, chatID int64) error {
	return p.send(chatID, "⌛️ That quiz is no longer active. Send /start to begin a new one.")
}

func (p *presenter) PresentInvalidNumber(ctx context.Context, chatID int64) error {
	return p.send(chatID, "✏️ Please send a number.")
}

func (p *presenter) PresentCountRange(ctx context.Context, chatID int64, min, max int) error {
	return p.send(chatID, fmt.Sprintf("✏️ Please send a number from %d to %d.", min, max))
}

func (p *presenter) PresentDurationRange(ctx context.Context, chatID int64, min, max int) error {
	return p.send(chatID, fmt.Sprintf("✏️ Please send a duration from %d to %d minutes.", min, max))
}

func (p *presenter) PresentLookupFailed(ctx context.Context, chatID int64) error {
	return p.send(chatID, "😕 No questions available for that selection. Send /start to try another one.")
}

func renderResult(res quiz.Result) string {
	var b strings.Builder

	switch res.Reason {
	case quiz.ReasonTimedOut:
		b.WriteString("⏰ Time is up!\n\n")
	case quiz.ReasonCancelled:
		b.WriteString("🚫 Quiz cancelled.\n\n")
	default:
		b.WriteString("🏁 Quiz finished!\n\n")
	}

	fmt.Fprintf(&b, "📚 Category: %s (level %d)\n", res.Category, res.Difficulty)
	fmt.Fprintf(&b, "✅ Correct: %d of %d (%.0f%%)\n", res.Score, res.Answered, res.Percentage)
	fmt.Fprintf(&b, "⏱ Time: %s\n", formatElapsed(res.Elapsed))

	if len(res.Wrong) > 0 {
		b.WriteString("\n❌ Mistakes:\n")
		shown := 0
		for i, e := range res.Wrong {
			entry := fmt.Sprintf("\n%d. %s\nYour answer: %s\nCorrect: %s\n", i+1, e.Prompt, e.Chosen, e.Correct)
			if b.Len()+len(entry) > resultTextLimit {
				break
			}
			b.WriteString(entry)
			shown++
		}
		if rest := len(res.Wrong) - shown; rest > 0 {
			fmt.Fprintf(&b, "\n… and %d more", rest)
		}
	}
	return b.String()
}

func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %02ds", m, s)
}
