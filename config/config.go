package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Volumewatch   VolumewatchConfig   `yaml:"volumewatch"`
	Backend       BackendConfig       `yaml:"backend"`
	Stream        StreamConfig        `yaml:"stream"`
	View          ViewConfig          `yaml:"view"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type VolumewatchConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// BackendConfig describes the analyzer service this client mirrors.
type BackendConfig struct {
	BaseURL              string          `yaml:"base_url"`
	Timeout              time.Duration   `yaml:"timeout"`
	RateLimit            RateLimitConfig `yaml:"rate_limit"`
	StatsRefreshInterval time.Duration   `yaml:"stats_refresh_interval"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type StreamConfig struct {
	ReconnectDelay   time.Duration `yaml:"reconnect_delay"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxMessageSize   int64         `yaml:"max_message_size"`
}

// ViewConfig bounds the mirrored state kept in memory.
type ViewConfig struct {
	TickHistory  int `yaml:"tick_history"`
	AlertHistory int `yaml:"alert_history"`
}

type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	ResourceHistory int           `yaml:"resource_history"`
}

type NotificationsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Stream: StreamConfig{
			ReconnectDelay:   5 * time.Second,
			HandshakeTimeout: 45 * time.Second,
			MaxMessageSize:   1 << 20,
		},
		View: ViewConfig{
			TickHistory:  50,
			AlertHistory: 100,
		},
		Notifications: NotificationsConfig{Enabled: true},
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override backend location from environment variables if available
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		config.Backend.BaseURL = strings.TrimSpace(v)
	}

	config.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(config.Backend.BaseURL), "/")

	if config.Backend.Timeout <= 0 {
		config.Backend.Timeout = 10 * time.Second
	}
	if config.Backend.StatsRefreshInterval <= 0 {
		config.Backend.StatsRefreshInterval = 30 * time.Second
	}
	if config.Backend.RateLimit.RequestsPerSecond <= 0 {
		config.Backend.RateLimit.RequestsPerSecond = 10
	}
	if config.Backend.RateLimit.BurstSize <= 0 {
		config.Backend.RateLimit.BurstSize = config.Backend.RateLimit.RequestsPerSecond
	}
	if config.Stream.ReconnectDelay <= 0 {
		config.Stream.ReconnectDelay = 5 * time.Second
	}
	if config.View.TickHistory <= 0 {
		config.View.TickHistory = 50
	}
	if config.View.AlertHistory <= 0 {
		config.View.AlertHistory = 100
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Volumewatch.Name == "" {
		return fmt.Errorf("volumewatch.name is required")
	}

	if cfg.Volumewatch.Version == "" {
		return fmt.Errorf("volumewatch.version is required")
	}

	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}

	parsed, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil {
		return fmt.Errorf("backend.base_url '%s' is invalid: %w", cfg.Backend.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("backend.base_url must use http or https, got '%s'", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("backend.base_url '%s' has no host", cfg.Backend.BaseURL)
	}

	return nil
}

// WebSocketURL derives the push channel endpoint from the backend base URL.
// A secure backend implies a secure channel.
func (b BackendConfig) WebSocketURL() string {
	parsed, err := url.Parse(b.BaseURL)
	if err != nil {
		return ""
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/ws"
	parsed.RawQuery = ""
	return parsed.String()
}
