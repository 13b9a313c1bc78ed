package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"futuresMegaBot/internal/adapters/logger" // Import the logger package for LogLevel
	"futuresMegaBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Binance API
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter

	// Price stream
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	StreamPingInterval   time.Duration

	// Scheduling
	PositionInterval time.Duration // Reconciliation cadence
	OrderInterval    time.Duration // Order processing cadence
	SettleDelay      time.Duration // Wait after the entry fill before re-reading the position
	OrderStatusRPS   float64       // Pace of order status polls

	// Fees (fractions, e.g. 0.0005 for 0.05%)
	MarketFeeRate float64
	LimitFeeRate  float64

	// Risk & sizing
	MaxRiskPerTrade   float64 // Fraction of margin at risk per trade
	MaxLeverage       int
	MarginPerTrade    float64 // Quote-asset margin committed per trade
	VolumeMarginBonus float64 // Extra margin fraction when the trade's volume flag allows it
	TrailingRate      float64 // Trailing stop distance in percent
	StopOrderType     domain.OrderType
	OrderIDMinDigits  int

	// Surfaces
	MetricsAddr      string // Empty disables the /metrics endpoint
	TelegramBotToken string
	TelegramChatID   int64
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	if cfg.APIKey == "" {
		errs = append(errs, "BINANCE_API_KEY must be set")
	}
	if cfg.SecretKey == "" {
		errs = append(errs, "BINANCE_API_SECRET must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/futures_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Price stream
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 5)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 10)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	pingSeconds := getEnvAsInt("STREAM_PING_INTERVAL_SECONDS", 30)
	if pingSeconds <= 0 {
		errs = append(errs, "STREAM_PING_INTERVAL_SECONDS must be positive")
	}
	cfg.StreamPingInterval = time.Duration(pingSeconds) * time.Second

	// Scheduling
	positionSeconds, err := getEnvAsIntRequired("POSITION_INTERVAL_SECONDS", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POSITION_INTERVAL_SECONDS: %v", err))
	} else if positionSeconds <= 0 {
		errs = append(errs, "POSITION_INTERVAL_SECONDS must be positive")
	}
	cfg.PositionInterval = time.Duration(positionSeconds) * time.Second

	orderSeconds, err := getEnvAsIntRequired("ORDER_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid ORDER_INTERVAL_SECONDS: %v", err))
	} else if orderSeconds <= 0 {
		errs = append(errs, "ORDER_INTERVAL_SECONDS must be positive")
	}
	cfg.OrderInterval = time.Duration(orderSeconds) * time.Second

	settleMs := getEnvAsInt("SETTLE_DELAY_MS", 1000)
	if settleMs < 0 {
		errs = append(errs, "SETTLE_DELAY_MS cannot be negative")
	}
	cfg.SettleDelay = time.Duration(settleMs) * time.Millisecond

	cfg.OrderStatusRPS = getEnvAsFloat("ORDER_STATUS_RPS", 5)
	if cfg.OrderStatusRPS <= 0 {
		errs = append(errs, "ORDER_STATUS_RPS must be positive")
	}

	// Fees
	cfg.MarketFeeRate, err = getEnvAsFloatRequired("MARKET_FEE_RATE", 0.0005)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARKET_FEE_RATE: %v", err))
	} else if cfg.MarketFeeRate < 0 || cfg.MarketFeeRate >= 1 {
		errs = append(errs, "MARKET_FEE_RATE must be between 0.0 and 1.0")
	}

	cfg.LimitFeeRate, err = getEnvAsFloatRequired("LIMIT_FEE_RATE", 0.0002)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LIMIT_FEE_RATE: %v", err))
	} else if cfg.LimitFeeRate < 0 || cfg.LimitFeeRate >= 1 {
		errs = append(errs, "LIMIT_FEE_RATE must be between 0.0 and 1.0")
	}

	// Risk & sizing
	cfg.MaxRiskPerTrade, err = getEnvAsFloatRequired("MAX_RISK_PER_TRADE", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_RISK_PER_TRADE: %v", err))
	} else if cfg.MaxRiskPerTrade <= 0 || cfg.MaxRiskPerTrade > 1.0 {
		errs = append(errs, "MAX_RISK_PER_TRADE must be between 0.0 (exclusive) and 1.0")
	}

	cfg.MaxLeverage, err = getEnvAsIntRequired("MAX_LEVERAGE", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_LEVERAGE: %v", err))
	} else if cfg.MaxLeverage <= 0 {
		errs = append(errs, "MAX_LEVERAGE must be positive")
	}

	cfg.MarginPerTrade, err = getEnvAsFloatRequired("MARGIN_PER_TRADE", 100.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MARGIN_PER_TRADE: %v", err))
	} else if cfg.MarginPerTrade <= 0 {
		errs = append(errs, "MARGIN_PER_TRADE must be positive")
	}

	cfg.VolumeMarginBonus = getEnvAsFloat("VOLUME_MARGIN_BONUS", 0.5)
	if cfg.VolumeMarginBonus < 0 {
		errs = append(errs, "VOLUME_MARGIN_BONUS cannot be negative")
	}

	cfg.TrailingRate = getEnvAsFloat("TRAILING_RATE", 1.0)
	if cfg.TrailingRate <= 0 {
		errs = append(errs, "TRAILING_RATE must be positive")
	}

	cfg.StopOrderType = domain.OrderType(strings.ToUpper(getEnv("STOP_ORDER_TYPE", string(domain.OrderTypeStopMarket))))
	if !cfg.StopOrderType.IsStop() {
		errs = append(errs, "STOP_ORDER_TYPE must be STOP or STOP_MARKET")
	}

	// Binance ids run 8 to 19 digits, so 8 rather than 16 keeps older
	// accounts' shorter ids visible to the processor.
	cfg.OrderIDMinDigits = getEnvAsInt("ORDER_ID_MIN_DIGITS", 8)
	if cfg.OrderIDMinDigits <= 0 {
		errs = append(errs, "ORDER_ID_MIN_DIGITS must be positive")
	}

	// Surfaces
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9102")
	cfg.TelegramBotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if chatID := getEnv("TELEGRAM_CHAT_ID", ""); chatID != "" {
		cfg.TelegramChatID, err = strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TELEGRAM_CHAT_ID: %v", err))
		}
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID == 0 {
		errs = append(errs, "TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
