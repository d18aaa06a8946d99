package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/database"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/internal/analytics"
	"github.com/m3rciful/quizbot/internal/quiz"
	"github.com/m3rciful/quizbot/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "quizbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := coreconfig.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitLogger(cfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo *analytics.Repo
	if cfg.Database.Host != "" {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := database.RunMigrations(cfg.Database); err != nil {
			return err
		}
		repo = analytics.NewRepo(db)
	} else {
		logger.Info(logger.Background(), "app", "analytics.disabled")
	}

	bank, err := quiz.LoadBank(cfg.Quiz.QuestionsPath)
	if err != nil {
		return err
	}

	timers := quiz.NewTimerSupervisor()
	store := quiz.NewStore(
		cfg.Quiz.MaxSessions,
		time.Duration(cfg.Quiz.SessionTimeoutSeconds)*time.Second,
		timers,
	)

	bot, err := telegram.New(telegram.Options{
		Config:    cfg,
		Bank:      bank,
		Store:     store,
		Timers:    timers,
		Analytics: repo,
	})
	if err != nil {
		return err
	}

	reaper := quiz.NewReaper(store, time.Duration(cfg.Quiz.ReapIntervalSeconds)*time.Second)
	go reaper.Run(ctx)

	return bot.Run(ctx)
}
