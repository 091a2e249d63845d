package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
		User     string `yaml:"user" validate:"required"`
		Password string `yaml:"password" validate:"required"`
		Name     string `yaml:"database" validate:"required"`
	} `yaml:"database"`

	Broker struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
		User     string `yaml:"user" validate:"required"`
		Password string `yaml:"password" validate:"required"`
	} `yaml:"broker"`

	WebSocket struct {
		Port int `yaml:"port" validate:"omitempty,min=1,max=65535"`
	} `yaml:"websocket"`

	Tracking struct {
		HeartbeatIntervalMs  int     `yaml:"heartbeat_interval_ms" validate:"omitempty,min=100"`
		HandshakeTimeoutMs   int     `yaml:"handshake_timeout_ms" validate:"omitempty,min=100"`
		ReconnectBaseDelayMs int     `yaml:"reconnect_base_delay_ms" validate:"omitempty,min=10"`
		ReconnectMaxDelayMs  int     `yaml:"reconnect_max_delay_ms" validate:"omitempty,min=10"`
		PollIntervalMs       int     `yaml:"poll_interval_ms" validate:"omitempty,min=100"`
		SilenceThresholdMs   int     `yaml:"silence_threshold_ms" validate:"omitempty,min=100"`
		InterpolationMinMs   int     `yaml:"interpolation_min_ms" validate:"omitempty,min=10"`
		InterpolationMaxMs   int     `yaml:"interpolation_max_ms" validate:"omitempty,min=10"`
		InterpolationTickMs  int     `yaml:"interpolation_tick_ms" validate:"omitempty,min=5"`
		FallbackSpeedKmh     float64 `yaml:"fallback_speed_kmh" validate:"omitempty,gt=0"`
		SessionIdleTimeoutMs int     `yaml:"session_idle_timeout_ms" validate:"omitempty,min=1000"`
	} `yaml:"tracking"`
}

// LoadFromFile loads config from a YAML file, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets safe defaults for optional fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// Broker
	if cfg.Broker.Host == "" {
		cfg.Broker.Host = "localhost"
	}
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = 5672
	}

	// WebSocket
	if cfg.WebSocket.Port == 0 {
		cfg.WebSocket.Port = 8080
	}

	// Tracking
	t := &cfg.Tracking
	if t.HeartbeatIntervalMs == 0 {
		t.HeartbeatIntervalMs = 10_000
	}
	if t.HandshakeTimeoutMs == 0 {
		t.HandshakeTimeoutMs = 10_000
	}
	if t.ReconnectBaseDelayMs == 0 {
		t.ReconnectBaseDelayMs = 1_000
	}
	if t.ReconnectMaxDelayMs == 0 {
		t.ReconnectMaxDelayMs = 30_000
	}
	if t.PollIntervalMs == 0 {
		t.PollIntervalMs = 40_000
	}
	if t.SilenceThresholdMs == 0 {
		t.SilenceThresholdMs = 60_000
	}
	if t.InterpolationMinMs == 0 {
		t.InterpolationMinMs = 2_000
	}
	if t.InterpolationMaxMs == 0 {
		t.InterpolationMaxMs = 8_000
	}
	if t.InterpolationTickMs == 0 {
		t.InterpolationTickMs = 50
	}
	if t.FallbackSpeedKmh == 0 {
		t.FallbackSpeedKmh = 25
	}
	if t.SessionIdleTimeoutMs == 0 {
		t.SessionIdleTimeoutMs = 600_000
	}
}

// validate checks cross-field constraints the struct tags cannot express.
func (c *Config) validate() error {
	var problems []string

	t := c.Tracking
	if t.ReconnectMaxDelayMs < t.ReconnectBaseDelayMs {
		problems = append(problems, "tracking.reconnect_max_delay_ms must be >= tracking.reconnect_base_delay_ms")
	}
	if t.InterpolationMaxMs < t.InterpolationMinMs {
		problems = append(problems, "tracking.interpolation_max_ms must be >= tracking.interpolation_min_ms")
	}
	if t.InterpolationTickMs > t.InterpolationMinMs {
		problems = append(problems, "tracking.interpolation_tick_ms must be <= tracking.interpolation_min_ms")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// ----- Duration accessors -----

func (c *Config) HeartbeatInterval() time.Duration  { return ms(c.Tracking.HeartbeatIntervalMs) }
func (c *Config) HandshakeTimeout() time.Duration   { return ms(c.Tracking.HandshakeTimeoutMs) }
func (c *Config) ReconnectBaseDelay() time.Duration { return ms(c.Tracking.ReconnectBaseDelayMs) }
func (c *Config) ReconnectMaxDelay() time.Duration  { return ms(c.Tracking.ReconnectMaxDelayMs) }
func (c *Config) PollInterval() time.Duration       { return ms(c.Tracking.PollIntervalMs) }
func (c *Config) SilenceThreshold() time.Duration   { return ms(c.Tracking.SilenceThresholdMs) }
func (c *Config) InterpolationMin() time.Duration   { return ms(c.Tracking.InterpolationMinMs) }
func (c *Config) InterpolationMax() time.Duration   { return ms(c.Tracking.InterpolationMaxMs) }
func (c *Config) InterpolationTick() time.Duration  { return ms(c.Tracking.InterpolationTickMs) }
func (c *Config) SessionIdleTimeout() time.Duration { return ms(c.Tracking.SessionIdleTimeoutMs) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
