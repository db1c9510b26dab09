// Package config provides environment-aware configuration loading for the
// plan lifecycle engine and its control API.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config holds all application configuration, loaded from environment
// variables prefixed BRAIN_/AQA_ (see external-interface env var table).
type Config struct {
	Env Environment

	// Server
	Addr string

	// LLM
	LLMMode         string // "mock" or "real"
	Model           string
	LLMProvider     string
	LLMFallback     bool
	Temperature     float64
	MaxRetries      int
	LLMMinInterval  time.Duration
	OpenAIAPIKey    string
	XAIAPIKey       string
	AnthropicAPIKey string

	// Cache
	CacheEnabled      bool
	CacheDir          string
	CacheGlobal       bool
	CacheRedisAddr    string
	CacheTTLDays      int
	CacheCompress     bool
	CacheSweepInterval time.Duration

	// History
	HistoryBackend        string
	HistoryRetentionDays  int
	HistoryDSN            string
	HistoryFileTreeDir    string

	// Execution limits
	Timeout         time.Duration
	MaxSteps        int
	MaxStepRetries  int
	MaxParallelism  int

	// Storage (plan cache / version store / workspace)
	StorageBackend string
	StoragePath    string
	S3Bucket       string
	S3Prefix       string
	S3Region       string

	// Executor
	RunnerPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Database (embedded history/version-store backend)
	DatabaseDSN      string
	DBMaxConnections int
	DBIdleTimeout    time.Duration
}

// Load reads BRAIN_ENV (defaulting to "development"), optionally loads
// config/<env>.env via godotenv, then populates Config from the process
// environment.
func Load() (*Config, error) {
	envStr := strings.TrimSpace(os.Getenv("BRAIN_ENV"))
	if envStr == "" {
		envStr = string(Development)
	}
	env := Environment(envStr)
	switch env {
	case Development, Testing, Production:
	default:
		return nil, fmt.Errorf("invalid BRAIN_ENV: %s (must be development, testing, or production)", envStr)
	}

	configFile := filepath.Join("config", fmt.Sprintf("%s.env", env))
	if err := godotenv.Load(configFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Printf("warning: could not load %s: %v\n", configFile, err)
		}
	}

	cfg := &Config{Env: env}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromEnv() error {
	c.Addr = getEnv("BRAIN_ADDR", ":8080")

	c.LLMMode = getEnv("AQA_LLM_MODE", "mock")
	c.Model = getEnv("BRAIN_MODEL", "")
	c.LLMProvider = getEnv("BRAIN_LLM_PROVIDER", "")
	c.LLMFallback = getBoolEnv("BRAIN_LLM_FALLBACK", true)
	c.Temperature = getFloatEnv("BRAIN_TEMPERATURE", 0.7)
	c.MaxRetries = getIntEnv("BRAIN_MAX_RETRIES", 3)
	minInterval := getEnv("BRAIN_LLM_MIN_INTERVAL", "0s")
	d, err := time.ParseDuration(minInterval)
	if err != nil {
		return fmt.Errorf("invalid BRAIN_LLM_MIN_INTERVAL: %w", err)
	}
	c.LLMMinInterval = d
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	c.XAIAPIKey = getEnv("XAI_API_KEY", "")
	c.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", "")

	c.CacheEnabled = getBoolEnv("BRAIN_CACHE_ENABLED", true)
	c.CacheDir = getEnv("BRAIN_CACHE_DIR", ".brain_cache")
	c.CacheGlobal = getBoolEnv("BRAIN_CACHE_GLOBAL", false)
	c.CacheRedisAddr = getEnv("BRAIN_CACHE_REDIS_ADDR", "")
	c.CacheTTLDays = getIntEnv("BRAIN_CACHE_TTL_DAYS", 0)
	c.CacheCompress = getBoolEnv("BRAIN_CACHE_COMPRESS", false)
	sweep := getEnv("BRAIN_CACHE_SWEEP_INTERVAL", "1h")
	sd, err := time.ParseDuration(sweep)
	if err != nil {
		return fmt.Errorf("invalid BRAIN_CACHE_SWEEP_INTERVAL: %w", err)
	}
	c.CacheSweepInterval = sd

	c.HistoryBackend = getEnv("BRAIN_HISTORY_BACKEND", "")
	c.HistoryRetentionDays = getIntEnv("BRAIN_HISTORY_RETENTION_DAYS", 90)
	c.HistoryDSN = getEnv("BRAIN_HISTORY_DSN", "")
	c.HistoryFileTreeDir = getEnv("BRAIN_HISTORY_DIR", ".brain_history")

	timeoutStr := getEnv("BRAIN_TIMEOUT", "300s")
	td, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return fmt.Errorf("invalid BRAIN_TIMEOUT: %w", err)
	}
	c.Timeout = td
	c.MaxSteps = getIntEnv("BRAIN_MAX_STEPS", 200)
	c.MaxStepRetries = getIntEnv("BRAIN_MAX_STEP_RETRIES", 5)
	c.MaxParallelism = getIntEnv("BRAIN_MAX_PARALLELISM", 1)

	c.StorageBackend = getEnv("AQA_STORAGE_BACKEND", "")
	c.StoragePath = getEnv("AQA_STORAGE_PATH", ".brain_storage")
	c.S3Bucket = getEnv("AQA_S3_BUCKET", "")
	c.S3Prefix = getEnv("AQA_S3_PREFIX", "")
	c.S3Region = getEnv("AQA_S3_REGION", "")

	c.RunnerPath = getEnv("AQA_RUNNER_PATH", "")

	c.LogLevel = getEnv("LOG_LEVEL", "info")
	c.LogFormat = getEnv("LOG_FORMAT", "json")

	c.DatabaseDSN = getEnv("DATABASE_URL", "")
	c.DBMaxConnections = getIntEnv("BRAIN_DB_MAX_CONNECTIONS", 10)
	idleStr := getEnv("BRAIN_DB_IDLE_TIMEOUT", "5m")
	idle, err := time.ParseDuration(idleStr)
	if err != nil {
		return fmt.Errorf("invalid BRAIN_DB_IDLE_TIMEOUT: %w", err)
	}
	c.DBIdleTimeout = idle

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
