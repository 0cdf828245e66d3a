package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port               string
	DatabasePath       string
	LogLevel           string
	MaxUploadSizeBytes int64

	// Flex web service (statement submit/poll protocol)
	FlexBaseURL      string
	FlexToken        string
	FlexMinPollDelay time.Duration
	FlexMaxPollDelay time.Duration
	FlexFetchTimeout time.Duration
	FlexPollRate     time.Duration // minimum spacing between poll requests

	// Scheduled sync
	SyncInterval time.Duration
	SyncCooldown time.Duration

	// Ticker resolution
	QuoteSearchBaseURL    string
	TickerCacheRetention  time.Duration
	TickerCacheMaxEntries int

	// Ledger host application
	LedgerBaseURL string
	LedgerToken   string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxUploadSizeBytesStr := getEnv("MAX_UPLOAD_SIZE_BYTES", "10485760")
	maxUploadSizeBytes, err := strconv.ParseInt(maxUploadSizeBytesStr, 10, 64)
	if err != nil {
		log.Printf("WARNING: Invalid MAX_UPLOAD_SIZE_BYTES format '%s'. Using default 10MB. Error: %v", maxUploadSizeBytesStr, err)
		maxUploadSizeBytes = 10 * 1024 * 1024
	}

	Cfg = &AppConfig{
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./flexfolio.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MaxUploadSizeBytes: maxUploadSizeBytes,

		FlexBaseURL:      getEnv("FLEX_BASE_URL", "https://gdcdyn.interactivebrokers.com/Universal/servlet"),
		FlexToken:        getEnv("FLEX_TOKEN", ""),
		FlexMinPollDelay: getEnvAsDuration("FLEX_MIN_POLL_DELAY", 2*time.Second),
		FlexMaxPollDelay: getEnvAsDuration("FLEX_MAX_POLL_DELAY", 30*time.Second),
		FlexFetchTimeout: getEnvAsDuration("FLEX_FETCH_TIMEOUT", 5*time.Minute),
		FlexPollRate:     getEnvAsDuration("FLEX_POLL_RATE", time.Second),

		SyncInterval: getEnvAsDuration("SYNC_INTERVAL", 1*time.Hour),
		SyncCooldown: getEnvAsDuration("SYNC_COOLDOWN", 12*time.Hour),

		QuoteSearchBaseURL:    getEnv("QUOTE_SEARCH_BASE_URL", "https://query1.finance.yahoo.com"),
		TickerCacheRetention:  getEnvAsDuration("TICKER_CACHE_RETENTION", 30*24*time.Hour),
		TickerCacheMaxEntries: getEnvAsInt("TICKER_CACHE_MAX_ENTRIES", 1000),

		LedgerBaseURL: getEnv("LEDGER_BASE_URL", "http://localhost:3333"),
		LedgerToken:   getEnv("LEDGER_TOKEN", ""),
	}

	if Cfg.FlexToken == "" {
		log.Println("WARNING: FLEX_TOKEN is not set. Remote statement fetching will be unavailable until a token is stored.")
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, SyncInterval=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.SyncInterval)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
