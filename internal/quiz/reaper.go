package quiz

import (
	"context"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"log/slog"
)

// Reaper periodically evicts idle sessions through the store's shared
// teardown path. Evicted users get no message; they see the expiry notice
// on their next interaction.
type Reaper struct {
	store    *Store
	interval time.Duration
	log      *slog.Logger
}

// NewReaper creates a reaper sweeping at the given interval.
func NewReaper(store *Store, interval time.Duration) *Reaper {
	return &Reaper{
		store:    store,
		interval: interval,
		log:      logger.Component("quiz.reaper"),
	}
}

// Run sweeps until ctx is cancelled. Intended to be launched as a goroutine.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.LogEvent(ctx, r.log, slog.LevelInfo, "reaper.stopped")
			return
		case now := <-ticker.C:
			evicted := r.store.Reap(now)
			snap := r.store.Stats()
			logger.LogEvent(ctx, r.log, slog.LevelInfo, "reaper.sweep",
				slog.Int("evicted", evicted),
				slog.Int("sessions", snap.Sessions),
				slog.Int("timers", snap.Timers),
			)
		}
	}
}
