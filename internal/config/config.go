// Package config provides configuration management for the scraper.
// The primary configuration is a JSON file passed as a CLI argument; a few
// ambient settings (log level, auth database) come from environment
// variables, optionally loaded from a .env file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AddressPort is an address/port pair for a network endpoint.
type AddressPort struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
}

// String returns the pair formatted as "address:port".
func (a AddressPort) String() string {
	return fmt.Sprintf("%s:%d", a.Address, a.Port)
}

// SearchQuery describes one advanced search specification for the tracker.
type SearchQuery struct {
	// Levels holds course level filters: "g" (graduate), "u" (upper
	// division) or "l" (lower division). Unknown tokens are ignored.
	Levels []string `json:"levels"`
	// Departments holds department codes (e.g. "CSE"). Empty means all.
	Departments []string `json:"departments"`
}

// TermDatum describes a single term the scraper should track.
type TermDatum struct {
	// Term is the 4-character term code. The first two characters must be
	// FA, WI, SP, S1 or S2; the last two are the 2-digit year.
	Term string `json:"term"`
	// Cooldown is the delay between individual course requests, in seconds.
	Cooldown float64 `json:"cooldown"`
	// SearchQuery lists the course searches the tracker runs each cycle.
	SearchQuery []SearchQuery `json:"searchQuery"`
	// SaveDataToFile controls whether observations are written to CSV.
	SaveDataToFile bool `json:"saveDataToFile"`
}

// Config is the parsed configuration file, plus environment overrides.
type Config struct {
	ConfigName      string      `json:"configName"`
	APIBaseEndpoint AddressPort `json:"apiBaseEndpoint"`
	CookieServer    AddressPort `json:"cookieServer"`
	WrapperData     []TermDatum `json:"wrapperData"`
	Verbose         bool        `json:"verbose"`

	// Environment-sourced settings (not part of the JSON file).
	LogLevel        string        `json:"-"`
	AuthEnabled     bool          `json:"-"`
	AuthDBPath      string        `json:"-"`
	SentryDSN       string        `json:"-"`
	DataDir         string        `json:"-"`
	ShutdownTimeout time.Duration `json:"-"`
}

var validTermPrefixes = []string{"FA", "WI", "SP", "S1", "S2"}

// Load reads and validates the configuration file at the given path.
// Environment variables are read afterwards (a .env file is honored when
// present) and fill in the ambient settings.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}
	cfg.AuthEnabled = getBoolEnv("AUTH_ENABLED", false)
	cfg.AuthDBPath = getEnv("AUTH_DB", "auth.db")
	cfg.SentryDSN = getEnv("SENTRY_DSN", "")
	cfg.DataDir = getEnv("DATA_DIR", ".")
	cfg.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the parsed configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.APIBaseEndpoint.Address == "" {
		errs = append(errs, errors.New("apiBaseEndpoint.address is required"))
	}
	if c.APIBaseEndpoint.Port <= 0 || c.APIBaseEndpoint.Port > 65535 {
		errs = append(errs, fmt.Errorf("apiBaseEndpoint.port is out of range: %d", c.APIBaseEndpoint.Port))
	}
	if c.CookieServer.Address == "" {
		errs = append(errs, errors.New("cookieServer.address is required"))
	}
	if c.CookieServer.Port <= 0 || c.CookieServer.Port > 65535 {
		errs = append(errs, fmt.Errorf("cookieServer.port is out of range: %d", c.CookieServer.Port))
	}
	if len(c.WrapperData) == 0 {
		errs = append(errs, errors.New("wrapperData must list at least one term"))
	}

	seen := make(map[string]bool, len(c.WrapperData))
	for _, datum := range c.WrapperData {
		if !ValidTerm(datum.Term) {
			errs = append(errs, fmt.Errorf("invalid term code: %q", datum.Term))
		}
		if seen[datum.Term] {
			errs = append(errs, fmt.Errorf("duplicate term: %q", datum.Term))
		}
		seen[datum.Term] = true
		if datum.Cooldown < 0 {
			errs = append(errs, fmt.Errorf("term %s: cooldown cannot be negative", datum.Term))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ValidTerm reports whether the given string is a well-formed term code
// (e.g. "FA22", "S120").
func ValidTerm(term string) bool {
	if len(term) != 4 {
		return false
	}
	prefix := strings.ToUpper(term[:2])
	ok := false
	for _, p := range validTermPrefixes {
		if prefix == p {
			ok = true
			break
		}
	}
	if !ok {
		return false
	}
	for _, r := range term[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return defaultValue
	}
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
