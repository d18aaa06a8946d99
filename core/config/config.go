package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	AdminID int64  `yaml:"admin_id" envconfig:"TELEGRAM_ADMIN_ID"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
	File   string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

// RateLimitConfig holds settings for inbound rate limiting.
type RateLimitConfig struct {
	IntervalMS       int  `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeCallbacks bool `yaml:"exclude_callbacks" envconfig:"RATE_LIMIT_EXCLUDE_CALLBACKS"`
}

// DatabaseConfig holds connection settings for the analytics store.
type DatabaseConfig struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
}

// QuizConfig groups the tunables of the session lifecycle engine.
type QuizConfig struct {
	QuestionsPath         string `yaml:"questions_path" envconfig:"QUIZ_QUESTIONS_PATH"`
	MaxSessions           int    `yaml:"max_sessions" envconfig:"QUIZ_MAX_SESSIONS"`
	SessionTimeoutSeconds int    `yaml:"session_timeout_seconds" envconfig:"QUIZ_SESSION_TIMEOUT_SECONDS"`
	ReapIntervalSeconds   int    `yaml:"reap_interval_seconds" envconfig:"QUIZ_REAP_INTERVAL_SECONDS"`
	MinDurationMinutes    int    `yaml:"min_duration_minutes" envconfig:"QUIZ_MIN_DURATION_MINUTES"`
	MaxDurationMinutes    int    `yaml:"max_duration_minutes" envconfig:"QUIZ_MAX_DURATION_MINUTES"`
	MinQuestionCount      int    `yaml:"min_question_count" envconfig:"QUIZ_MIN_QUESTION_COUNT"`
}

// Config aggregates the full application configuration.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Quiz      QuizConfig      `yaml:"quiz"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills defaults for zeroed tunables.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if cfg.Telegram.LongPollTimeoutSeconds < 0 {
		return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
	}

	if strings.TrimSpace(cfg.Quiz.QuestionsPath) == "" {
		cfg.Quiz.QuestionsPath = "questions.json"
	}
	if cfg.Quiz.MaxSessions <= 0 {
		cfg.Quiz.MaxSessions = 1000
	}
	if cfg.Quiz.SessionTimeoutSeconds <= 0 {
		cfg.Quiz.SessionTimeoutSeconds = 3600
	}
	if cfg.Quiz.ReapIntervalSeconds <= 0 {
		cfg.Quiz.ReapIntervalSeconds = 600
	}
	if cfg.Quiz.MinDurationMinutes <= 0 {
		cfg.Quiz.MinDurationMinutes = 1
	}
	if cfg.Quiz.MaxDurationMinutes <= 0 {
		cfg.Quiz.MaxDurationMinutes = 120
	}
	if cfg.Quiz.MaxDurationMinutes < cfg.Quiz.MinDurationMinutes {
		return fmt.Errorf("quiz.max_duration_minutes must be >= quiz.min_duration_minutes")
	}
	if cfg.Quiz.MinQuestionCount <= 0 {
		cfg.Quiz.MinQuestionCount = 1
	}

	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}

	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}

	return nil
}
