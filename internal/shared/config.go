package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Database DatabaseConfig `toml:"database"`
	Client   ClientConfig   `toml:"client"`
	Log      LogConfig      `toml:"log"`
	Stub     StubConfig     `toml:"stub"`
}

// APIConfig contains settings for the recommendation backend.
type APIConfig struct {
	BaseURL      string   `toml:"base_url"`
	Timeout      Duration `toml:"timeout"`
	RateLimit    float64  `toml:"rate_limit"`
	Burst        int      `toml:"burst"`
	LegacyUserID int      `toml:"legacy_user_id"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ClientConfig tunes client-side behavior: debounce window, page size and rating bounds.
type ClientConfig struct {
	SearchDebounce    Duration `toml:"search_debounce"`
	PageLimit         int      `toml:"page_limit"`
	ScoreMin          float64  `toml:"score_min"`
	ScoreMax          float64  `toml:"score_max"`
	ScoreStep         float64  `toml:"score_step"`
	MinPasswordLength int      `toml:"min_password_length"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// StubConfig configures the local stub backend.
type StubConfig struct {
	Addr     string   `toml:"addr"`
	Secret   string   `toml:"secret"`
	TokenTTL Duration `toml:"token_ttl"`
}

// Duration is a [time.Duration] that decodes from TOML strings such as "300ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required")
	}
	if c.Client.ScoreStep <= 0 {
		problems = append(problems, "client.score_step must be positive")
	}
	if c.Client.ScoreMin >= c.Client.ScoreMax {
		problems = append(problems, "client.score_min must be below client.score_max")
	}
	if c.Client.PageLimit <= 0 {
		problems = append(problems, "client.page_limit must be positive")
	}
	if c.Client.SearchDebounce.Duration < 0 {
		problems = append(problems, "client.search_debounce must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
