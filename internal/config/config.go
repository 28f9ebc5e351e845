package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string

	// Database
	SQLiteDBPath        string
	SQLiteRunMigrations bool

	// AMQP (empty URL disables publishing)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Processor
	ProcessorInterval   time.Duration
	MaxPerRun           int
	RolloverMaxAttempts int
	UserIDs             []string

	// Upcoming query
	UpcomingDefaultDays int

	// RunsPerMinute limits on-demand runs per tenant and client IP
	RunsPerMinute int

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8081"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		SQLiteDBPath:        getEnv("SQLITE_DB_PATH", "./data/recurra.db"),
		SQLiteRunMigrations: getEnvBool("SQLITE_RUN_MIGRATIONS", true),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "recurra"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_entries"),

		ProcessorInterval:   getEnvDuration("RECURRING_PROCESSOR_INTERVAL", time.Hour),
		MaxPerRun:           getEnvInt("MAX_PER_RUN", 100),
		RolloverMaxAttempts: getEnvInt("ROLLOVER_MAX_ATTEMPTS", 10),
		UserIDs:             getEnvList("USER_IDS", nil),

		UpcomingDefaultDays: getEnvInt("UPCOMING_DEFAULT_DAYS", 7),
		RunsPerMinute:       getEnvInt("RUNS_PER_MINUTE", 10),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate SQLite configuration
	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		// Check if directory exists or can be created
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate processor configuration
	if c.ProcessorInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid processor interval %v: must be at least 1 second", c.ProcessorInterval))
	} else if c.ProcessorInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid processor interval %v: must be at most 24 hours", c.ProcessorInterval))
	}

	if c.MaxPerRun < 1 {
		errors = append(errors, fmt.Sprintf("invalid max per run %d: must be at least 1", c.MaxPerRun))
	} else if c.MaxPerRun > 10000 {
		errors = append(errors, fmt.Sprintf("invalid max per run %d: must be at most 10000", c.MaxPerRun))
	}

	if c.RolloverMaxAttempts < 1 || c.RolloverMaxAttempts > 100 {
		errors = append(errors, fmt.Sprintf("invalid rollover max attempts %d: must be between 1 and 100", c.RolloverMaxAttempts))
	}

	for _, id := range c.UserIDs {
		if strings.TrimSpace(id) == "" {
			errors = append(errors, "USER_IDS cannot contain empty entries")
			break
		}
	}

	if c.RunsPerMinute < 1 || c.RunsPerMinute > 1000 {
		errors = append(errors, fmt.Sprintf("invalid runs per minute %d: must be between 1 and 1000", c.RunsPerMinute))
	}

	if c.UpcomingDefaultDays < 0 || c.UpcomingDefaultDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid upcoming default days %d: must be between 0 and 366", c.UpcomingDefaultDays))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// ValidateWorker adds the checks only the background worker needs.
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.UserIDs) == 0 {
		return fmt.Errorf("configuration validation failed:\n- USER_IDS is required by the recurring worker")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
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

// getEnvList splits a comma separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
