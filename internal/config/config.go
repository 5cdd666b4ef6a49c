package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// HTTP server
	Port         string
	SecureCookie bool
	TemplateDir  string
	StaticDir    string

	// Storage
	DataDir       string
	SessionDBPath string

	// Bootstrap user created when the users table is empty
	AdminUser     string
	AdminPassword string

	// Logging
	LogLevel  string
	LogFormat string

	SessionCleanupInterval time.Duration
}

// UsersPath is the users table inside DataDir.
func (c *Config) UsersPath() string {
	return filepath.Join(c.DataDir, "users.csv")
}

// ExpensesPath is the expenses table inside DataDir.
func (c *Config) ExpensesPath() string {
	return filepath.Join(c.DataDir, "expenses.csv")
}

// LoadEnvFile loads a .env file for local development. A missing file is not an error.
func LoadEnvFile(paths ...string) {
	_ = godotenv.Load(paths...)
}

func Load() *Config {
	dataDir := getEnv("DATA_DIR", "./data")
	return &Config{
		Port:         getEnv("PORT", "8080"),
		SecureCookie: getEnvBool("SECURE_COOKIE", false),
		TemplateDir:  getEnv("TEMPLATE_DIR", ""),
		StaticDir:    getEnv("STATIC_DIR", ""),

		DataDir:       dataDir,
		SessionDBPath: getEnv("SESSION_DB_PATH", filepath.Join(dataDir, "sessions.db")),

		AdminUser:     getEnv("ADMIN_USER", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		SessionCleanupInterval: getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, "data directory cannot be empty")
	}
	if strings.TrimSpace(c.SessionDBPath) == "" {
		errs = append(errs, "session database path cannot be empty")
	}

	if (c.AdminUser == "") != (c.AdminPassword == "") {
		errs = append(errs, "ADMIN_USER and ADMIN_PASSWORD must be set together")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.SessionCleanupInterval < time.Second {
		errs = append(errs, fmt.Sprintf("invalid session cleanup interval %v: must be at least 1 second", c.SessionCleanupInterval))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
