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

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// External data sources
	EDGAR   EDGARConfig
	FINRA   FINRAConfig
	Options OptionsConfig

	// Explanation service
	Explain ExplainConfig

	// Pipeline
	Pipeline PipelineConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL string

	// Connection pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// EDGARConfig holds SEC EDGAR access configuration.
// The SEC requires a descriptive User-Agent and enforces ~10 req/s fair access.
type EDGARConfig struct {
	BaseURL   string
	UserAgent string
	PageSize  int // filings per index/feed page
}

// FINRAConfig holds FINRA short-interest / ATS data configuration.
type FINRAConfig struct {
	BaseURL string
	APIKey  string
}

// OptionsConfig holds the options-flow overlay provider configuration.
type OptionsConfig struct {
	Provider string // tagged kind; see gateway.ProviderKind
	BaseURL  string
	APIKey   string
}

// ExplainConfig holds the LLM explanation collaborator configuration.
type ExplainConfig struct {
	Model   string // tagged kind; see explain.ModelKind
	BaseURL string
	APIKey  string
}

// PipelineConfig holds durable-run tuning knobs.
type PipelineConfig struct {
	QuarterBatchSize int           // quarters per unit of work before checkpoint
	PollLookback     time.Duration // submission poller initial lookback
	PollCadence      time.Duration // sleep between poller cycles
	RunnerPollEvery  time.Duration // checkpoint runner claim interval
	WeightsFile      string        // optional YAML overriding score weights
	DailyTickers     []string      // universe refreshed by the daily job
}

// Load reads configuration from environment variables.
// This is the only function that calls os.Getenv().
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8092"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
		},

		EDGAR: EDGARConfig{
			BaseURL:   getEnv("EDGAR_BASE_URL", "https://www.sec.gov"),
			UserAgent: getEnv("EDGAR_USER_AGENT", "rotograph research ops@seclens.io"),
			PageSize:  getEnvAsInt("EDGAR_PAGE_SIZE", 100),
		},

		FINRA: FINRAConfig{
			BaseURL: getEnv("FINRA_BASE_URL", "https://api.finra.org"),
			APIKey:  getEnv("FINRA_API_KEY", ""),
		},

		Options: OptionsConfig{
			Provider: getEnv("OPTIONS_PROVIDER", "none"),
			BaseURL:  getEnv("OPTIONS_BASE_URL", ""),
			APIKey:   getEnv("OPTIONS_API_KEY", ""),
		},

		Explain: ExplainConfig{
			Model:   getEnv("EXPLAIN_MODEL", "openai"),
			BaseURL: getEnv("EXPLAIN_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  getEnv("EXPLAIN_API_KEY", ""),
		},

		Pipeline: PipelineConfig{
			QuarterBatchSize: getEnvAsInt("PIPELINE_QUARTER_BATCH", 4),
			PollLookback:     getEnvAsDuration("PIPELINE_POLL_LOOKBACK", "24h"),
			PollCadence:      getEnvAsDuration("PIPELINE_POLL_CADENCE", "10m"),
			RunnerPollEvery:  getEnvAsDuration("PIPELINE_RUNNER_POLL", "2s"),
			WeightsFile:      getEnv("PIPELINE_WEIGHTS_FILE", ""),
			DailyTickers:     getEnvAsList("PIPELINE_DAILY_TICKERS"),
		},

		LogLevel:  getEnv("LOG_LEVEL", "debug"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set.
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Pipeline.QuarterBatchSize < 1 {
		return fmt.Errorf("PIPELINE_QUARTER_BATCH must be >= 1")
	}

	if c.EDGAR.PageSize < 1 {
		return fmt.Errorf("EDGAR_PAGE_SIZE must be >= 1")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations.
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
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

func getEnvAsList(key string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}

	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
