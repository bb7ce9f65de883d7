// Package config contains everything related to configuration
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	DatabasePath    string
	ProfilesPath    string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	DegradedAfter   int
	AutoRotate      bool
}

// Default values
const (
	defaultRefreshInterval = 30 * time.Second
	defaultFetchTimeout    = 10 * time.Second
	defaultDegradedAfter   = 3
)

// Load reads configuration from .env files and environment variables.
func Load() (*Config, error) {
	// Try loading .env from multiple locations
	envPaths := getEnvPaths()
	for _, path := range envPaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{
		DatabasePath:    getEnvString("USAGEWATCH_DB_PATH", getDefaultDatabasePath()),
		ProfilesPath:    getEnvString("USAGEWATCH_PROFILES_PATH", getDefaultProfilesPath()),
		RefreshInterval: getEnvDuration("USAGEWATCH_REFRESH_INTERVAL", defaultRefreshInterval),
		FetchTimeout:    getEnvDuration("USAGEWATCH_FETCH_TIMEOUT", defaultFetchTimeout),
		DegradedAfter:   getEnvInt("USAGEWATCH_DEGRADED_AFTER", defaultDegradedAfter),
		AutoRotate:      getEnvBool("USAGEWATCH_AUTO_ROTATE", false),
	}

	if err := ValidateRefreshInterval(cfg.RefreshInterval); err != nil {
		return nil, err
	}

	// Ensure database directory exists
	if err := ensureDir(filepath.Dir(cfg.DatabasePath)); err != nil {
		return nil, err
	}

	// Ensure profiles directory exists
	if err := ensureDir(filepath.Dir(cfg.ProfilesPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

// getEnvPaths returns a list of paths to check for .env files.
func getEnvPaths() []string {
	var paths []string

	// Current directory
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}

	// Home directory locations
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "usagewatch", ".env"),
			filepath.Join(home, ".usagewatch", ".env"),
		)
	}

	return paths
}

// getDefaultDatabasePath returns the default path for the SQLite database.
func getDefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "history.db"
	}
	return filepath.Join(home, ".config", "usagewatch", "history.db")
}

// getDefaultProfilesPath returns the default path for the profiles JSON file.
func getDefaultProfilesPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "profiles.json"
	}
	return filepath.Join(home, ".config", "usagewatch", "profiles.json")
}

// getEnvString retrieves a string environment variable or returns the default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable or returns the default.
// Accepts values like "30s", "1m", "500ms".
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Try parsing as seconds if no unit specified
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns the default.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// ensureDir creates a directory and all parent directories if they don't exist.
func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0o750)
}
