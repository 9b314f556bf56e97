// ABOUTME: Configuration loading and parsing for parley
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Chat    ChatConfig    `yaml:"chat"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the chat gateway endpoint configuration
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
}

// AuthConfig holds session token configuration
type AuthConfig struct {
	// TokenPath points at a file holding the bearer token. The PARLEY_TOKEN
	// environment variable takes precedence when set.
	TokenPath string `yaml:"token_path"`
	Locale    string `yaml:"locale"`
}

// ChatConfig holds conversation engine tuning
type ChatConfig struct {
	PageSize int `yaml:"page_size"`

	TypingQuiet   time.Duration `yaml:"-"`
	PulseInterval time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	TypingQuietRaw   string `yaml:"typing_quiet"`
	PulseIntervalRaw string `yaml:"pulse_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ResolvePath returns the config file path: the PARLEY_CONFIG environment
// variable when set, otherwise parley/config.yaml under the XDG config home.
func ResolvePath() string {
	if p := os.Getenv("PARLEY_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "parley", "config.yaml")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Chat.PageSize < 0 {
		return fmt.Errorf("chat.page_size must not be negative")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.TypingQuietRaw != "" {
		cfg.Chat.TypingQuiet, err = time.ParseDuration(cfg.Chat.TypingQuietRaw)
		if err != nil {
			return fmt.Errorf("parsing typing_quiet %q: %w", cfg.Chat.TypingQuietRaw, err)
		}
	}

	if cfg.Chat.PulseIntervalRaw != "" {
		cfg.Chat.PulseInterval, err = time.ParseDuration(cfg.Chat.PulseIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing pulse_interval %q: %w", cfg.Chat.PulseIntervalRaw, err)
		}
	}

	return nil
}
