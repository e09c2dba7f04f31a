package shared

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	API      APIConfig      `toml:"api"`
	Push     PushConfig     `toml:"push"`
	Session  SessionConfig  `toml:"session"`
	Database DatabaseConfig `toml:"database"`
}

// APIConfig contains REST endpoint settings.
type APIConfig struct {
	BaseURL string `toml:"base_url"`
	WebURL  string `toml:"web_url"`
	// RequestTimeout bounds each REST call. Zero leaves the transport default in place.
	RequestTimeout time.Duration `toml:"request_timeout"`
	RateLimit      float64       `toml:"rate_limit"` // requests per second, 0 disables
}

// PushConfig contains live update (STOMP over WebSocket) settings.
type PushConfig struct {
	URL                  string        `toml:"url"`
	ReconnectDelay       time.Duration `toml:"reconnect_delay"`
	MaxReconnectDelay    time.Duration `toml:"max_reconnect_delay"`
	MaxReconnectAttempts int           `toml:"max_reconnect_attempts"`
}

// SessionConfig contains token storage settings.
type SessionConfig struct {
	CookieDomain  string        `toml:"cookie_domain"`
	CookiePath    string        `toml:"cookie_path"`
	CookieMaxAge  int           `toml:"cookie_max_age"`
	CookieFile    string        `toml:"cookie_file"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// SecureOrigin reports whether the API is served over https, which decides the cookie Secure attribute.
func (c APIConfig) SecureOrigin() bool {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "https")
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
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
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ExpandPath replaces a leading "~" with the user's home directory.
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
