// Package config loads the feed aggregator's configuration from the
// environment at startup. Configuration is treated as immutable for the
// lifetime of the process.
package config

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"
)

const (
	defaultPollIntervalSecs = 900
	minPollIntervalSecs     = 300
	maxPollIntervalSecs     = 43200
	defaultMaxItemsPerPoll  = 5
	defaultInitialItems     = 3
	defaultUserAgent        = "Go-NEB-Feedbot/1.0 (+matrix feed aggregator)"
)

// Config holds every environment-driven option recognised by the system.
// Loaded once in main() and passed down by value/pointer; never mutated
// afterwards.
type Config struct {
	// MatrixHomeserverURL is the homeserver this bot's account lives on.
	MatrixHomeserverURL string
	// MatrixUserID is the bot's full user ID (e.g. "@feedbot:example.org").
	MatrixUserID string
	// MatrixAccessToken is the chat-platform credential. Redacted whenever
	// the config is logged.
	MatrixAccessToken string
	// DatabaseType is a database/sql driver name. The feedbot binary links
	// only the "sqlite3" driver.
	DatabaseType string
	// DatabaseURL is the driver-specific DSN.
	DatabaseURL string
	LogLevel    string

	// MetricsAddr is the address the /healthz and /metrics HTTP surface
	// listens on.
	MetricsAddr string

	DefaultPollInterval int
	MinPollInterval     int
	MaxPollInterval     int
	MaxItemsPerPoll     int
	InitialItemsCount   int
	UserAgent           string
}

// FromEnv loads Config from the process environment, applying the defaults
// documented in spec.md §6.
func FromEnv() (Config, error) {
	token := os.Getenv("MATRIX_ACCESS_TOKEN")
	if token == "" {
		return Config{}, fmt.Errorf("config: MATRIX_ACCESS_TOKEN environment variable is required")
	}
	homeserverURL := os.Getenv("MATRIX_HOMESERVER_URL")
	if homeserverURL == "" {
		return Config{}, fmt.Errorf("config: MATRIX_HOMESERVER_URL environment variable is required")
	}
	userID := os.Getenv("MATRIX_USER_ID")
	if userID == "" {
		return Config{}, fmt.Errorf("config: MATRIX_USER_ID environment variable is required")
	}

	c := Config{
		MatrixHomeserverURL: homeserverURL,
		MatrixUserID:        userID,
		MatrixAccessToken:   token,
		DatabaseType:        getenvDefault("DATABASE_TYPE", "sqlite3"),
		DatabaseURL:         getenvDefault("DATABASE_URL", "feedbot.db"),
		LogLevel:            getenvDefault("LOG_LEVEL", "info"),
		MetricsAddr:         getenvDefault("METRICS_ADDR", ":8080"),
		UserAgent:           getenvDefault("USER_AGENT", defaultUserAgent),
	}

	var err error
	if c.DefaultPollInterval, err = getenvInt("DEFAULT_POLL_INTERVAL", defaultPollIntervalSecs); err != nil {
		return Config{}, err
	}
	if c.MinPollInterval, err = getenvInt("MIN_POLL_INTERVAL", minPollIntervalSecs); err != nil {
		return Config{}, err
	}
	if c.MaxPollInterval, err = getenvInt("MAX_POLL_INTERVAL", maxPollIntervalSecs); err != nil {
		return Config{}, err
	}
	if c.MaxItemsPerPoll, err = getenvInt("MAX_ITEMS_PER_POLL", defaultMaxItemsPerPoll); err != nil {
		return Config{}, err
	}
	if c.InitialItemsCount, err = getenvInt("INITIAL_ITEMS_COUNT", defaultInitialItems); err != nil {
		return Config{}, err
	}

	if c.MinPollInterval <= 0 || c.MaxPollInterval < c.MinPollInterval {
		return Config{}, fmt.Errorf("config: MIN_POLL_INTERVAL/MAX_POLL_INTERVAL out of range")
	}
	return c, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}

// LogFields returns a logrus.Fields summary of the configuration with the
// credential redacted, suitable for the startup log line.
func (c Config) LogFields() log.Fields {
	return log.Fields{
		"matrix_homeserver_url": c.MatrixHomeserverURL,
		"matrix_user_id":        c.MatrixUserID,
		"database_type":         c.DatabaseType,
		"log_level":             c.LogLevel,
		"metrics_addr":          c.MetricsAddr,
		"default_poll_interval": c.DefaultPollInterval,
		"min_poll_interval":     c.MinPollInterval,
		"max_poll_interval":     c.MaxPollInterval,
		"max_items_per_poll":    c.MaxItemsPerPoll,
		"initial_items_count":   c.InitialItemsCount,
		"user_agent":            c.UserAgent,
		"matrix_access_token":   redact(c.MatrixAccessToken),
	}
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "<redacted>"
}
