package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the pipeline
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	Env string // development, staging, production

	// Store
	Database DatabaseConfig

	// Scope profile ("2024" or "decade") and cleaning rule set override
	Scope        string
	CleanRuleset string

	// Source extracts
	Source SourceConfig

	// Outputs
	EmissionsCSV string
	ChartDir     string
	ReportXLSX   string

	// Logging
	LogLevel  string
	LogFormat string
	LogDir    string

	// Read-only API
	Port         string
	APIRateLimit float64 // requests per second, 0 disables
	APIRateBurst int

	// Optional API response cache
	Redis RedisConfig
}

// DatabaseConfig holds the DuckDB file settings
type DatabaseConfig struct {
	Path        string
	Threads     int
	MemoryLimit string
}

// RedisConfig holds the API response cache settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// SourceConfig holds remote extract settings
type SourceConfig struct {
	BaseURL       string
	CatalogURL    string
	FetchDelay    time.Duration
	FetchTimeout  time.Duration
	CacheDir      string
	KeepDownloads bool
}

var (
	validEnvs     = map[string]bool{"development": true, "staging": true, "production": true, "test": true}
	validScopes   = map[string]bool{"2024": true, "decade": true}
	validRulesets = map[string]bool{"": true, "strict": true, "legacy": true}
)

// Load reads configuration from environment variables
// ⭐ SSOT: the only caller of os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Env: getEnv("ENV", "development"),

		Database: DatabaseConfig{
			Path:        getEnv("DB_PATH", "emissions.duckdb"),
			Threads:     getEnvAsInt("DB_THREADS", 0),
			MemoryLimit: getEnv("DB_MEMORY_LIMIT", ""),
		},

		Scope:        getEnv("SCOPE", "2024"),
		CleanRuleset: getEnv("CLEAN_RULESET", ""),

		Source: SourceConfig{
			BaseURL:       getEnv("SOURCE_BASE_URL", "https://d37ci6vzurychx.cloudfront.net/trip-data"),
			CatalogURL:    getEnv("CATALOG_URL", "https://www.nyc.gov/site/tlc/about/tlc-trip-record-data.page"),
			FetchDelay:    getEnvAsDuration("FETCH_DELAY", "30s"),
			FetchTimeout:  getEnvAsDuration("FETCH_TIMEOUT", "10m"),
			CacheDir:      getEnv("CACHE_DIR", filepath.Join("data", "cache")),
			KeepDownloads: getEnvAsBool("KEEP_DOWNLOADS", false),
		},

		EmissionsCSV: getEnv("EMISSIONS_CSV", filepath.Join("data", "vehicle_emissions.csv")),
		ChartDir:     getEnv("CHART_DIR", "."),
		ReportXLSX:   getEnv("REPORT_XLSX", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogDir:    getEnv("LOG_DIR", "."),

		Port:         getEnv("PORT", "8089"),
		APIRateLimit: getEnvAsFloat("API_RATE_LIMIT", 20),
		APIRateBurst: getEnvAsInt("API_RATE_BURST", 40),

		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("REDIS_CACHE_TTL", "1h"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if !validEnvs[c.Env] {
		return fmt.Errorf("ENV must be one of: development, staging, production, test")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("DB_PATH is required")
	}

	if !validScopes[c.Scope] {
		return fmt.Errorf("SCOPE must be one of: 2024, decade (got %q)", c.Scope)
	}

	if !validRulesets[c.CleanRuleset] {
		return fmt.Errorf("CLEAN_RULESET must be empty, strict or legacy (got %q)", c.CleanRuleset)
	}

	if c.Source.FetchDelay <= 0 {
		return fmt.Errorf("FETCH_DELAY must be positive")
	}

	if c.APIRateLimit < 0 {
		return fmt.Errorf("API_RATE_LIMIT must not be negative")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
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

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
