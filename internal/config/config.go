// Package config loads runtime configuration from the environment, with
// optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/avolkov/spendwatch/internal/insight"
)

// Config is the full runtime configuration shared by the binaries.
// Optional integrations (FCM, BigQuery analytics, GCS reports, Gemini,
// Notion) stay disabled when their settings are empty.
type Config struct {
	Port         string
	ProjectID    string
	TimezoneName string
	Location     *time.Location

	RetentionDays int
	QueueSize     int
	Workers       int

	FirebaseCredentials string
	AnalyticsDataset    string
	AnalyticsTable      string
	ReportBucket        string
	GeminiModel         string
	NotionToken         string
	NotionDatabaseID    string
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in when present; real environment variables
// win over file values.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                envOr("PORT", "8080"),
		ProjectID:           os.Getenv("GCP_PROJECT"),
		TimezoneName:        envOr("TIMEZONE", insight.DefaultTimezone),
		RetentionDays:       envIntOr("RETENTION_DAYS", 14),
		QueueSize:           envIntOr("EVENT_QUEUE_SIZE", 100),
		Workers:             envIntOr("EVENT_WORKERS", 4),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS"),
		AnalyticsDataset:    os.Getenv("ANALYTICS_DATASET"),
		AnalyticsTable:      envOr("ANALYTICS_TABLE", "insight_events"),
		ReportBucket:        os.Getenv("REPORT_BUCKET"),
		GeminiModel:         envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		NotionToken:         os.Getenv("NOTION_TOKEN"),
		NotionDatabaseID:    os.Getenv("NOTION_DB_ID"),
	}

	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		return nil, fmt.Errorf("config.Load: invalid TIMEZONE %q: %w", cfg.TimezoneName, err)
	}
	cfg.Location = loc

	if cfg.RetentionDays <= 0 {
		return nil, fmt.Errorf("config.Load: RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
