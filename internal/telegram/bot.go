package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/analytics"
	"github.com/m3rciful/quizbot/internal/quiz"
	"log/slog"

	tele "gopkg.in/telebot.v4"
)

// Options carries everything the bot needs besides its handlers.
type Options struct {
	Config    *coreconfig.Config
	Bank      *quiz.Bank
	Store     *quiz.Store
	Timers    *quiz.TimerSupervisor
	Analytics *analytics.Repo
}

// Bot binds the quiz engine to the Telegram transport.
type Bot struct {
	tb     *tele.Bot
	engine *quiz.Engine
	log    *slog.Logger
}

// New builds the bot: long poller, middleware chain, presenter, engine, and
// the full handler surface.
func New(opts Options) (*Bot, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}

	timeoutSec := cfg.Telegram.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: time.Duration(timeoutSec) * time.Second},
		OnError: func(err error, c tele.Context) {
			ctx := logger.Background()
			if c != nil {
				ctx = buildContext(c)
			}
			logger.Error(ctx, "tg", "handler.error",
				slog.String("err", err.Error()),
				errCodeAttr(err),
			)
		},
	}

	start := time.Now()
	tb, err := tele.NewBot(settings)
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	p := newPresenter(tb)
	engine := quiz.NewEngine(opts.Bank, opts.Store, opts.Timers, p, quiz.Limits{
		MinQuestionCount:   cfg.Quiz.MinQuestionCount,
		MinDurationMinutes: cfg.Quiz.MinDurationMinutes,
		MaxDurationMinutes: cfg.Quiz.MaxDurationMinutes,
	})

	h := &handlers{
		engine:    engine,
		bank:      opts.Bank,
		analytics: opts.Analytics,
		adminID:   cfg.Telegram.AdminID,
		startedAt: time.Now(),
	}

	tb.Use(RecoverMiddleware)
	interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
	if interval > 0 {
		tb.Use(RateLimitMiddleware(RateLimitOptions{
			Interval:         interval,
			ExcludeCallbacks: cfg.RateLimit.ExcludeCallbacks,
		}))
	}
	tb.Use(LoggerMiddleware)

	tb.Handle("/start", h.onStart)
	tb.Handle("/help", h.onHelp)
	tb.Handle("/stats", AdminOnly(cfg.Telegram.AdminID, h.onStats))
	tb.Handle("/users", AdminOnly(cfg.Telegram.AdminID, h.onUsers))
	tb.Handle("/export", AdminOnly(cfg.Telegram.AdminID, h.onExport))
	tb.Handle(tele.OnText, h.onText)
	tb.Handle("\f"+cbCategory, h.onCategory)
	tb.Handle("\f"+cbDifficulty, h.onDifficulty)
	tb.Handle("\f"+cbAnswer, h.onAnswer)
	tb.Handle("\f"+cbCancel, h.onCancel)
	tb.Handle("\f"+cbRestart, h.onRestart)

	logger.Info(logger.Background(), "tg", "mode",
		slog.String("mode", "polling"),
		slog.Int("timeout_seconds", timeoutSec),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)

	return &Bot{tb: tb, engine: engine, log: logger.Component("tg")}, nil
}

// Engine exposes the quiz engine built by New.
func (b *Bot) Engine() *quiz.Engine { return b.engine }

// Run starts long polling until the context is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.tb.Start()
		close(done)
	}()

	select {
	case <-ctx.Done():
		b.tb.Stop()
		<-done
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		return ctx.Err()
	case <-done:
		return nil
	}
}

// errCodeAttr surfaces the quiz error code when the error carries one.
func errCodeAttr(err error) slog.Attr {
	if kind := quiz.KindOf(err); kind != "" {
		return slog.String("err_code", string(kind))
	}
	return slog.String("err_code", "UNKNOWN")
}
