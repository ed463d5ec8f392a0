package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overrides variables that are already set, so earlier files win.
func loadEnvFiles() {
	envFiles := []string{
		".env.local", // Local overrides (highest precedence)
		".env",       // Main environment file
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	// Also try loading from home directory
	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".defectset", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) {
	// Tracker configuration
	cfg.Tracker.BaseURL = GetString("JIRA_BASE_URL", cfg.Tracker.BaseURL)
	cfg.Tracker.RateLimit = GetFloat("JIRA_RATE_LIMIT", cfg.Tracker.RateLimit)

	// Storage configuration
	if dsn := os.Getenv("DEFECTSET_DB_DSN"); dsn != "" {
		if isPostgresDSN(dsn) {
			cfg.Storage.Type = "postgres"
			cfg.Storage.PostgresDSN = dsn
		} else {
			cfg.Storage.Type = "sqlite"
			cfg.Storage.LocalPath = dsn
		}
	}
	cfg.Storage.LocalPath = expandPath(cfg.Storage.LocalPath)

	// Paths
	cfg.Cache.Directory = expandPath(GetString("DEFECTSET_CACHE_DIR", cfg.Cache.Directory))
	cfg.Build.WorkDir = expandPath(GetString("DEFECTSET_WORK_DIR", cfg.Build.WorkDir))
	cfg.Build.OutputDir = expandPath(GetString("DEFECTSET_OUTPUT_DIR", cfg.Build.OutputDir))
	cfg.Build.Parallelism = GetInt("DEFECTSET_PARALLELISM", cfg.Build.Parallelism)

	// Logging
	cfg.Logging.Level = GetString("LOG_LEVEL", cfg.Logging.Level)
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// Helper functions for type-safe environment variable access

// GetString returns string value or default
func GetString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// GetInt returns int value or default
func GetInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetFloat returns float value or default
func GetFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
