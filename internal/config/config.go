// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Snapshots, audit trails and caches (always absolute)
	LogDir    string // Empty keeps logs on stderr only
	LogLevel  string
	LogPretty bool

	Store  string // "file" or "sqlite"
	DBPath string // sqlite database, defaults to DataDir/fundmate.db

	PriceSource  string // "yahoo", "http" or "none"
	PriceURL     string // template of the http price source
	PriceWorkers int
	PriceTimeout time.Duration
	PriceRPS     float64 // zero disables rate limiting
	FXURL        string  // template of the fx rate source, empty disables USD totals

	Unmatched      string // "abort" or "skip"
	AllowShort     bool
	AccountWorkers int

	HTTPAddr    string
	CORSOrigins []string // origins allowed to call the JSON api, none disables CORS
	Schedule    string   // cron spec of the periodic run, empty disables it

	TCDir         string // folder of trade confirmation files
	DefaultBroker string // broker of trade confirmations without a Broker column
	AliasFile     string // JSON {broker: {alias: symbol}}, "" for the shared table
	HKATSFile     string // JSON {numeric code: HKATS code}
	ReclassifyMMF bool   // book money market funds as cash

	GeminiAPIKey string
	GeminiModel  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir, err := filepath.Abs(getEnv("FUNDMATE_DATA_DIR", "out"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:        dataDir,
		LogDir:         getEnv("FUNDMATE_LOG_DIR", ""),
		LogLevel:       getEnv("FUNDMATE_LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("FUNDMATE_LOG_PRETTY", true),
		Store:          strings.ToLower(getEnv("FUNDMATE_STORE", "file")),
		DBPath:         getEnv("FUNDMATE_DB_PATH", filepath.Join(dataDir, "fundmate.db")),
		PriceSource:    strings.ToLower(getEnv("FUNDMATE_PRICE_SOURCE", "yahoo")),
		PriceURL:       getEnv("FUNDMATE_PRICE_URL", ""),
		PriceWorkers:   getEnvAsInt("FUNDMATE_PRICE_WORKERS", 3),
		PriceTimeout:   getEnvAsDuration("FUNDMATE_PRICE_TIMEOUT", 10*time.Second),
		PriceRPS:       getEnvAsFloat("FUNDMATE_PRICE_RPS", 5),
		FXURL:          getEnv("FUNDMATE_FX_URL", ""),
		Unmatched:      strings.ToLower(getEnv("FUNDMATE_UNMATCHED", "abort")),
		AllowShort:     getEnvAsBool("FUNDMATE_ALLOW_SHORT", false),
		AccountWorkers: getEnvAsInt("FUNDMATE_ACCOUNT_WORKERS", 10),
		HTTPAddr:       getEnv("FUNDMATE_HTTP_ADDR", "localhost:8080"),
		CORSOrigins:    getEnvAsList("FUNDMATE_CORS_ORIGINS"),
		Schedule:       getEnv("FUNDMATE_SCHEDULE", ""),
		TCDir:          getEnv("FUNDMATE_TC_DIR", ""),
		DefaultBroker:  getEnv("FUNDMATE_DEFAULT_BROKER", ""),
		AliasFile:      getEnv("FUNDMATE_ALIASES", ""),
		HKATSFile:      getEnv("FUNDMATE_HKATS", ""),
		ReclassifyMMF:  getEnvAsBool("FUNDMATE_RECLASSIFY_MMF", false),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration values are consistent
func (c *Config) Validate() error {
	switch c.Store {
	case "file", "sqlite":
	default:
		return fmt.Errorf("FUNDMATE_STORE: unknown store %q, want file or sqlite", c.Store)
	}
	switch c.PriceSource {
	case "yahoo", "none":
	case "http":
		if c.PriceURL == "" {
			return fmt.Errorf("FUNDMATE_PRICE_URL is required with the http price source")
		}
	default:
		return fmt.Errorf("FUNDMATE_PRICE_SOURCE: unknown price source %q, want yahoo, http or none", c.PriceSource)
	}
	switch c.Unmatched {
	case "abort", "skip":
	default:
		return fmt.Errorf("FUNDMATE_UNMATCHED: unknown policy %q, want abort or skip", c.Unmatched)
	}
	if c.PriceWorkers < 1 {
		return fmt.Errorf("FUNDMATE_PRICE_WORKERS must be positive, got %d", c.PriceWorkers)
	}
	if c.PriceTimeout <= 0 {
		return fmt.Errorf("FUNDMATE_PRICE_TIMEOUT must be positive, got %v", c.PriceTimeout)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var list []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			list = append(list, v)
		}
	}
	return list
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
