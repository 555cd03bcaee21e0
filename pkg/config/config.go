// Package config loads the service's environment-variable configuration,
// following the teacher's pkg/database.LoadConfigFromEnv pattern. This spec's
// Agent/Branch/Version model has no need for the teacher's YAML-based
// agent/chain/MCP registries, so those are not carried forward (see
// DESIGN.md).
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every environment variable named in spec.md §6.
type Config struct {
	DatabaseURL string
	Port        string

	EvaluationWindowMinutes int
	MinSampleSize           int
	SuccessRateThreshold    float64
	EfficiencyThreshold     float64
	BaselineWindowMinutes   int

	SlackWebhookURL      string
	NotificationsEnabled bool
}

// LoadFromEnv loads Config from the process environment, applying the
// defaults named in spec.md §6.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		Port:                 getEnvOrDefault("PORT", "3002"),
		SlackWebhookURL:      os.Getenv("SLACK_WEBHOOK_URL"),
		NotificationsEnabled: getEnvOrDefault("NOTIFICATION_ENABLED", "true") == "true",
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("config: DATABASE_URL is required")
	}

	var err error
	if cfg.EvaluationWindowMinutes, err = getEnvInt("EVALUATION_WINDOW_MINUTES", 30); err != nil {
		return Config{}, err
	}
	if cfg.MinSampleSize, err = getEnvInt("MIN_SAMPLE_SIZE", 50); err != nil {
		return Config{}, err
	}
	if cfg.BaselineWindowMinutes, err = getEnvInt("BASELINE_WINDOW_MINUTES", 60); err != nil {
		return Config{}, err
	}
	if cfg.SuccessRateThreshold, err = getEnvFloat("SUCCESS_RATE_THRESHOLD", 0.05); err != nil {
		return Config{}, err
	}
	if cfg.EfficiencyThreshold, err = getEnvFloat("EFFICIENCY_THRESHOLD", 0.10); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s: %w", key, err)
	}
	return f, nil
}
