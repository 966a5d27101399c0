// package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds all application configuration.
type Config struct {
	// telegram
	TGApiID      int
	TGApiHash    string
	TGSessionStr string

	// storage
	DownloadDir  string
	StateDir     string
	DatabasePath string

	// sync behaviour
	RateRPS            float64
	PaceDelayMs        int
	MaxFloodRetries    int
	GroupQuarantineMax int

	// watchlist
	WatchlistPath string

	// nats
	NatsURL string

	// server
	HTTPPort int

	// logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		TGApiID:            getEnvInt("TG_API_ID", 0),
		TGApiHash:          getEnv("TG_API_HASH", ""),
		TGSessionStr:       getEnv("TG_SESSION_STRING", ""),
		DownloadDir:        getEnv("DOWNLOAD_DIR", "./downloads"),
		StateDir:           getEnv("STATE_DIR", "./state"),
		DatabasePath:       getEnv("DATABASE_PATH", "./state/media-sync.db"),
		RateRPS:            getEnvFloat("RATE_RPS", 2.0),
		PaceDelayMs:        getEnvInt("PACE_DELAY_MS", 1000),
		MaxFloodRetries:    getEnvInt("MAX_FLOOD_RETRIES", 3),
		GroupQuarantineMax: getEnvInt("GROUP_QUARANTINE_MAX", 3),
		WatchlistPath:      getEnv("WATCHLIST_PATH", ""),
		NatsURL:            getEnv("NATS_URL", ""),
		HTTPPort:           getEnvInt("HTTP_PORT", 3200),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            getEnv("LOG_FILE", "./logs/app.log"),
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
