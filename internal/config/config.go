package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config keeps runtime settings for the bot.
type Config struct {
	TelegramToken  string
	DatabaseURL    string
	LogLevel       string
	ReportInterval time.Duration
	PollInterval   time.Duration // recurrence due-pattern poll cadence
	PollBatchSize  int           // max due patterns handled per tick
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		TelegramToken:  strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LogLevel:       strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		ReportInterval: parseHours(strings.TrimSpace(os.Getenv("REPORT_INTERVAL_HOURS"))),
		PollInterval:   parseDuration(strings.TrimSpace(os.Getenv("POLL_INTERVAL"))),
		PollBatchSize:  parseInt(strings.TrimSpace(os.Getenv("POLL_BATCH_SIZE"))),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "taskmate.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Hour
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.PollBatchSize == 0 {
		cfg.PollBatchSize = 50
	}

	if cfg.TelegramToken == "" {
		return cfg, fmt.Errorf("TELEGRAM_TOKEN is required")
	}

	return cfg, nil
}

func parseHours(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	hours, err := time.ParseDuration(raw + "h")
	if err != nil || hours <= 0 {
		return 0
	}
	return hours
}

// parseDuration accepts Go duration syntax, e.g. "30s" or "2m".
func parseDuration(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}

func parseInt(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
