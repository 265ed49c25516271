// Package config loads application settings from the environment, with
// an optional .env file for development.
package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults for optional settings.
const (
	DefaultPort             = "8080"
	DefaultDatabasePath     = "pnl.db"
	DefaultBrokerageBaseURL = "https://paper-api.alpaca.markets"
)

// Config holds all runtime settings for the dashboard API.
type Config struct {
	Port               string
	DatabasePath       string
	JWTSecret          string
	EncryptionKey      string
	BrokerageBaseURL   string
	DashboardAPIKey    string
	DashboardAPISecret string

	// DepositJumpThreshold tunes the equity-jump deposit heuristic used
	// when an account has no cashflow telemetry. Zero keeps the
	// extractor default.
	DepositJumpThreshold float64

	Debug bool
}

// Load reads configuration from the environment. A .env file in the
// working directory is honored when present but never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               envOr("PORT", DefaultPort),
		DatabasePath:       envOr("DATABASE_PATH", DefaultDatabasePath),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		EncryptionKey:      os.Getenv("ENCRYPTION_KEY"),
		BrokerageBaseURL:   envOr("BROKERAGE_BASE_URL", DefaultBrokerageBaseURL),
		DashboardAPIKey:    os.Getenv("DASHBOARD_API_KEY"),
		DashboardAPISecret: os.Getenv("DASHBOARD_API_SECRET"),
		Debug:              os.Getenv("DEBUG") == "true",
	}

	if raw := os.Getenv("DEPOSIT_JUMP_THRESHOLD"); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold <= 0 {
			return nil, errors.New("DEPOSIT_JUMP_THRESHOLD must be a positive number")
		}
		cfg.DepositJumpThreshold = threshold
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, errors.New("ENCRYPTION_KEY is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
