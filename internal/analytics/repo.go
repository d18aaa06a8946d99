package analytics

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/quizbot/core/logger"
	"log/slog"
)

// User is one row of the bot_users table.
type User struct {
	UserID       int64     `db:"user_id"`
	FirstName    string    `db:"first_name"`
	LastName     string    `db:"last_name"`
	Username     string    `db:"username"`
	LanguageCode string    `db:"language_code"`
	FirstSeen    time.Time `db:"first_seen"`
	LastSeen     time.Time `db:"last_seen"`
	TotalVisits  int64     `db:"total_visits"`
}

// Visit is the identity payload recorded on each /start.
type Visit struct {
	UserID       int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// Repo persists usage analytics. It is a best-effort sidecar: callers log
// failures and carry on, analytics never blocks the quiz flow. A nil Repo
// is valid and turns every method into a no-op.
type Repo struct {
	db  *sqlx.DB
	log *slog.Logger
}

// NewRepo wraps a database handle.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db, log: logger.Component("analytics")}
}

const upsertVisitQuery = `
INSERT INTO bot_users (user_id, first_name, last_name, username, language_code, first_seen, last_seen, total_visits)
VALUES (:user_id, :first_name, :last_name, :username, :language_code, NOW(), NOW(), 1)
ON CONFLICT (user_id) DO UPDATE SET
    first_name    = EXCLUDED.first_name,
    last_name     = EXCLUDED.last_name,
    username      = EXCLUDED.username,
    language_code = EXCLUDED.language_code,
    last_seen     = NOW(),
    total_visits  = bot_users.total_visits + 1`

// RecordVisit upserts the user row and bumps the visit counter.
func (r *Repo) RecordVisit(ctx context.Context, v Visit) error {
	if r == nil || r.db == nil {
		return nil
	}
	start := time.Now()
	_, err := r.db.NamedExecContext(ctx, upsertVisitQuery, map[string]any{
		"user_id":       v.UserID,
		"first_name":    v.FirstName,
		"last_name":     v.LastName,
		"username":      v.Username,
		"language_code": v.LanguageCode,
	})
	if err != nil {
		logger.LogEvent(ctx, r.log, slog.LevelWarn, "visit.record",
			slog.String("status", "fail"),
			slog.Int64("user_id", v.UserID),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
		)
		return err
	}
	logger.LogEvent(ctx, r.log, slog.LevelDebug, "visit.record",
		slog.String("status", "ok"),
		slog.Int64("user_id", v.UserID),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// TotalUsers returns the number of distinct users ever seen.
func (r *Repo) TotalUsers(ctx context.Context) (int64, error) {
	if r == nil || r.db == nil {
		return 0, nil
	}
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM bot_users`)
	return n, err
}

// AllUsers returns every recorded user, most recently active first.
// Used by the admin export.
func (r *Repo) AllUsers(ctx context.Context) ([]User, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var users []User
	err := r.db.SelectContext(ctx, &users,
		`SELECT user_id, first_name, last_name, username, language_code, first_seen, last_seen, total_visits
		 FROM bot_users ORDER BY last_seen DESC`)
	return users, err
}

// RecentUsers returns the most recently active users, newest first.
func (r *Repo) RecentUsers(ctx context.Context, limit int) ([]User, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}
	var users []User
	err := r.db.SelectContext(ctx, &users,
		`SELECT user_id, first_name, last_name, username, language_code, first_seen, last_seen, total_visits
		 FROM bot_users ORDER BY last_seen DESC LIMIT $1`, limit)
	return users, err
}
