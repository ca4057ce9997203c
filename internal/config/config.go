package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Port           string
	HumeAPIKey     string
	HumeAPIBase    string
	PollInterval   time.Duration
	MaxUploadBytes int64
	DataDir        string
	BaseURL        string
	ShareSecret    string
	ShareTTL       time.Duration
}

func LoadConfig() (Config, error) {
	cfg := Config{}

	cfg.Port = envOrDefault("PORT", "8080")
	cfg.HumeAPIKey = os.Getenv("HUME_API_KEY")
	cfg.HumeAPIBase = envOrDefault("HUME_API_BASE", "https://api.hume.ai/v0/batch")

	cfg.BaseURL = envOrDefault("BASE_URL", fmt.Sprintf("http://localhost:%s", cfg.Port))
	cfg.ShareSecret = envOrDefault("SHARE_SECRET", "change-me")
	cfg.DataDir = envOrDefault("DATA_DIR", "data")

	pollSeconds, err := parseIntEnv("POLL_INTERVAL_SECONDS", 3)
	if err != nil {
		return Config{}, fmt.Errorf("parse POLL_INTERVAL_SECONDS: %w", err)
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	shareTTLSeconds, err := parseIntEnv("SHARE_TTL_SECONDS", 86400)
	if err != nil {
		return Config{}, fmt.Errorf("parse SHARE_TTL_SECONDS: %w", err)
	}
	cfg.ShareTTL = time.Duration(shareTTLSeconds) * time.Second

	maxUploadMB, err := parseIntEnv("MAX_UPLOAD_MB", 100)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_MB: %w", err)
	}
	cfg.MaxUploadBytes = maxUploadMB * 1024 * 1024

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return Config{}, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg.DataDir = absDataDir

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func parseIntEnv(key string, fallback int64) (int64, error) {
	value := envOrDefault(key, "")
	if value == "" {
		return fallback, nil
	}

	num, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	return num, nil
}
