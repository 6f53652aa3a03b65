// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// Values are read once at startup and never mutated afterwards.
type Config struct {
	// Market data
	Symbol          string // e.g. "ETHUSDT"
	Interval        string // kline interval, e.g. "1m"
	WSBaseURL       string
	RESTBaseURL     string
	HistoricalLimit int // bootstrap candle count

	// Analysis
	AnalysisWindow       int
	UpdateIntervalMin    int // scheduler gate in minutes
	SwingLookback        int
	SwingLookforward     int
	MaxReconnectAttempts int

	// Telegram
	EnableTelegram   bool
	TelegramBotToken string
	TelegramChatID   string
	EnableFibAlerts  bool

	// Webhook
	WebhookURL string

	// Infrastructure (optional: empty disables the store)
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
}

// Load reads configuration from environment variables with sensible
// defaults. A .env file in the working directory is loaded first if
// present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env file")
	}

	return &Config{
		Symbol:          getEnv("SYMBOL", "ETHUSDT"),
		Interval:        getEnv("KLINE_INTERVAL", "1m"),
		WSBaseURL:       getEnv("WS_BASE_URL", "wss://fstream.binance.com/ws"),
		RESTBaseURL:     getEnv("REST_BASE_URL", "https://fapi.binance.com"),
		HistoricalLimit: getEnvInt("HISTORICAL_LIMIT", 1000),

		AnalysisWindow:       getEnvInt("ANALYSIS_WINDOW", 20),
		UpdateIntervalMin:    getEnvInt("UPDATE_INTERVAL_MINUTES", 5),
		SwingLookback:        getEnvInt("SWING_LOOKBACK", 10),
		SwingLookforward:     getEnvInt("SWING_LOOKFORWARD", 10),
		MaxReconnectAttempts: getEnvInt("MAX_RECONNECT_ATTEMPTS", 5),

		EnableTelegram:   getEnvBool("ENABLE_TELEGRAM", false),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		EnableFibAlerts:  getEnvBool("ENABLE_FIB_ALERTS", false),

		WebhookURL: getEnv("WEBHOOK_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", ""),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
	}
}

// Validate checks cross-field requirements. Telegram credentials are only
// required when the integration is enabled.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("SYMBOL must not be empty")
	}
	if c.HistoricalLimit <= 0 || c.HistoricalLimit > 1000 {
		return fmt.Errorf("HISTORICAL_LIMIT must be in 1..1000, got %d", c.HistoricalLimit)
	}
	if c.AnalysisWindow < 2 {
		return fmt.Errorf("ANALYSIS_WINDOW must be at least 2, got %d", c.AnalysisWindow)
	}
	if c.UpdateIntervalMin <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_MINUTES must be positive, got %d", c.UpdateIntervalMin)
	}
	if c.EnableTelegram {
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when telegram is enabled")
		}
		if c.TelegramChatID == "" {
			return fmt.Errorf("TELEGRAM_CHAT_ID is required when telegram is enabled")
		}
	}
	return nil
}

// UpdateInterval returns the scheduler gate as a duration.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMin) * time.Minute
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return strings.EqualFold(v, "true") || v == "1"
}
