package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Telegram
	BotToken string

	// Banking Gateway
	GatewayBaseURL string
	GatewayRPS     float64

	// Database
	DBPath string

	// Orchestration tuning
	RecipientDebounce time.Duration
	NotifyPollEvery   time.Duration

	// Funding
	MaxFundingAmount float64

	// Logging
	LogLevel string
}

func Load() *Config {
	return &Config{
		// Telegram
		BotToken: getEnv("BOT_TOKEN", ""),

		// Gateway
		GatewayBaseURL: strings.TrimSuffix(getEnv("GATEWAY_BASE_URL", "http://localhost:8080/api"), "/"),
		GatewayRPS:     getEnvFloat("GATEWAY_RPS", 8),

		// Database
		DBPath: getEnv("DB_PATH", "./walletbot.db"),

		// Orchestration
		RecipientDebounce: getEnvDuration("RECIPIENT_DEBOUNCE", 500*time.Millisecond),
		NotifyPollEvery:   getEnvDuration("NOTIFY_POLL_INTERVAL", 30*time.Second),

		// Funding
		MaxFundingAmount: getEnvFloat("MAX_FUNDING_AMOUNT", 10000),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
