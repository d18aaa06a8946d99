package telegram

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/analytics"
	"github.com/m3rciful/quizbot/internal/quiz"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

type handlers struct {
	engine    *quiz.Engine
	bank      *quiz.Bank
	analytics *analytics.Repo
	adminID   int64
	startedAt time.Time
}

func (h *handlers) onStart(c tele.Context) error {
	ctx := withHandler(c, "start")
	h.recordVisit(c)
	return h.engine.StartSelection(ctx, senderID(c), chatID(c))
}

func (h *handlers) onHelp(c tele.Context) error {
	_ = withHandler(c, "help")
	lines := []string{
		"🤖 Quiz bot",
		"",
		"/start — begin a new quiz",
		"/help — this message",
		"",
		"Pick a category and difficulty, choose how many questions",
		"and how many minutes, then answer before the time runs out.",
	}
	if h.adminID != 0 && senderID(c) == h.adminID {
		lines = append(lines,
			"",
			"Admin:",
			"/stats — bot occupancy snapshot",
			"/users — recently seen users",
			"/export — analytics as a CSV file",
		)
	}
	return c.Send(strings.Join(lines, "\n"))
}

func (h *handlers) onText(c tele.Context) error {
	ctx := withHandler(c, "text")
	return h.engine.HandleText(ctx, senderID(c), chatID(c), strings.TrimSpace(c.Text()))
}

func (h *handlers) onCategory(c tele.Context) error {
	defer func() { _ = c.Respond() }()
	ctx := withHandler(c, "category")
	return h.engine.ChooseCategory(ctx, senderID(c), chatID(c), strings.TrimSpace(c.Data()))
}

func (h *handlers) onDifficulty(c tele.Context) error {
	defer func() { _ = c.Respond() }()
	ctx := withHandler(c, "difficulty")
	return h.engine.ChooseDifficulty(ctx, senderID(c), chatID(c), strings.TrimSpace(c.Data()))
}

func (h *handlers) onAnswer(c tele.Context) error {
	defer func() { _ = c.Respond() }()
	ctx := withHandler(c, "answer")

	qIdx, optIdx, err := parseAnswerPayload(c.Data())
	if err != nil {
		logger.Warn(ctx, "tg", "answer.payload.invalid",
			slog.String("payload", logger.SanitizeLimit(c.Data(), 64)),
			slog.String("err", err.Error()),
		)
		return nil
	}
	return h.engine.SubmitAnswer(ctx, senderID(c), chatID(c), qIdx, optIdx)
}

func (h *handlers) onCancel(c tele.Context) error {
	defer func() { _ = c.Respond() }()
	ctx := withHandler(c, "cancel")
	return h.engine.Cancel(ctx, senderID(c), chatID(c))
}

func (h *handlers) onRestart(c tele.Context) error {
	defer func() { _ = c.Respond() }()
	ctx := withHandler(c, "restart")
	h.recordVisit(c)
	return h.engine.StartSelection(ctx, senderID(c), chatID(c))
}

func (h *handlers) onStats(c tele.Context) error {
	ctx := withHandler(c, "stats")
	snap := h.engine.Stats()

	var b strings.Builder
	b.WriteString("📊 Bot stats\n\n")
	fmt.Fprintf(&b, "Active sessions: %d\n", snap.Sessions)
	fmt.Fprintf(&b, "Active timers: %d\n", snap.Timers)
	fmt.Fprintf(&b, "Categories loaded: %d\n", h.bank.Size())
	fmt.Fprintf(&b, "Uptime: %s\n", time.Since(h.startedAt).Round(time.Second))

	if total, err := h.analytics.TotalUsers(ctx); err == nil {
		fmt.Fprintf(&b, "Users seen: %d\n", total)
	} else {
		logger.Warn(ctx, "tg", "stats.users.failed", slog.String("err", err.Error()))
	}
	return c.Send(b.String())
}

// recentUsersLimit caps the /users listing.
const recentUsersLimit = 20

func (h *handlers) onUsers(c tele.Context) error {
	ctx := withHandler(c, "users")
	users, err := h.analytics.RecentUsers(ctx, recentUsersLimit)
	if err != nil {
		logger.Warn(ctx, "tg", "users.query.failed", slog.String("err", err.Error()))
		return c.Send("⚠️ Failed to load users.")
	}
	if len(users) == 0 {
		return c.Send("No users recorded yet.")
	}

	var b strings.Builder
	b.WriteString("👥 Recent users\n\n")
	for _, u := range users {
		name := strings.TrimSpace(u.FirstName + " " + u.LastName)
		if u.Username != "" {
			name = fmt.Sprintf("%s (@%s)", name, u.Username)
		}
		fmt.Fprintf(&b, "%d — %s, visits: %d, last seen: %s\n",
			u.UserID, name, u.TotalVisits, u.LastSeen.Format("2006-01-02 15:04"))
	}
	return c.Send(b.String())
}

func (h *handlers) onExport(c tele.Context) error {
	ctx := withHandler(c, "export")
	users, err := h.analytics.AllUsers(ctx)
	if err != nil {
		logger.Warn(ctx, "tg", "export.query.failed", slog.String("err", err.Error()))
		return c.Send("⚠️ Export failed.")
	}
	if len(users) == 0 {
		return c.Send("No users recorded yet.")
	}
	data, err := usersCSV(users)
	if err != nil {
		logger.Warn(ctx, "tg", "export.render.failed", slog.String("err", err.Error()))
		return c.Send("⚠️ Export failed.")
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: fmt.Sprintf("bot_users_%s.csv", time.Now().Format("2006-01-02")),
		MIME:     "text/csv",
	}
	return c.Send(doc)
}

func usersCSV(users []analytics.User) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	header := []string{"user_id", "first_name", "last_name", "username", "language_code", "first_seen", "last_seen", "total_visits"}
	if err := cw.Write(header); err != nil {
		return nil, err
	}
	for _, u := range users {
		rec := []string{
			strconv.FormatInt(u.UserID, 10),
			u.FirstName,
			u.LastName,
			u.Username,
			u.LanguageCode,
			u.FirstSeen.UTC().Format(time.RFC3339),
			u.LastSeen.UTC().Format(time.RFC3339),
			strconv.FormatInt(u.TotalVisits, 10),
		}
		if err := cw.Write(rec); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// recordVisit persists analytics without blocking the quiz flow.
func (h *handlers) recordVisit(c tele.Context) {
	user := c.Sender()
	if user == nil {
		return
	}
	ctx := buildContext(c)
	_ = h.analytics.RecordVisit(ctx, analytics.Visit{
		UserID:       user.ID,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Username:     user.Username,
		LanguageCode: user.LanguageCode,
	})
}

func parseAnswerPayload(data string) (questionIndex, optionIndex int, err error) {
	parts := strings.Split(strings.TrimSpace(data), "|")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected qIdx|optIdx, got %q", data)
	}
	questionIndex, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad question index: %w", err)
	}
	optionIndex, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad option index: %w", err)
	}
	return questionIndex, optionIndex, nil
}
