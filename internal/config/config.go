package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all agent configuration, loaded from YAML with env overrides
type Config struct {
	Env string `yaml:"env" env:"AGENT_ENV" env-default:"production"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
	} `yaml:"log"`

	Server struct {
		BaseURL string `yaml:"base_url" env:"SERVER_BASE_URL" env-default:"http://localhost:5600"`
		Timeout int    `yaml:"timeout" env:"SERVER_TIMEOUT" env-default:"10"`
	} `yaml:"server"`

	Device struct {
		ID string `yaml:"id" env:"DEVICE_ID"`
	} `yaml:"device"`

	Tracking struct {
		// Seconds between active-window reports
		PollIntervalWindow int `yaml:"poll_interval_window" env:"POLL_INTERVAL_WINDOW" env-default:"1"`
		// Seconds between idle-counter polls
		PollIntervalIdle int `yaml:"poll_interval_idle" env:"POLL_INTERVAL_IDLE" env-default:"5"`
		// Seconds of no input after which the user counts as idle
		IdleTimeout int `yaml:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"180"`
		// Seconds between retries of queued heartbeats
		FlushInterval int `yaml:"flush_interval" env:"FLUSH_INTERVAL" env-default:"60"`
	} `yaml:"tracking"`

	Tray struct {
		Enabled bool `yaml:"enabled" env:"TRAY_ENABLED" env-default:"false"`
	} `yaml:"tray"`

	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"activity-agent.db"`
}

// LoadConfig reads configuration from the given YAML file, falling back to
// env/defaults when the file does not exist
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Tracking.PollIntervalWindow <= 0 {
		return fmt.Errorf("poll_interval_window must be positive, got %d", c.Tracking.PollIntervalWindow)
	}
	if c.Tracking.PollIntervalIdle <= 0 {
		return fmt.Errorf("poll_interval_idle must be positive, got %d", c.Tracking.PollIntervalIdle)
	}
	if c.Tracking.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %d", c.Tracking.IdleTimeout)
	}
	return nil
}

// PollIntervalWindow returns the window report interval as a duration
func (c *Config) PollIntervalWindow() time.Duration {
	return time.Duration(c.Tracking.PollIntervalWindow) * time.Second
}

// PollIntervalIdle returns the idle poll interval as a duration
func (c *Config) PollIntervalIdle() time.Duration {
	return time.Duration(c.Tracking.PollIntervalIdle) * time.Second
}

// IdleTimeout returns the idle threshold as a duration
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Tracking.IdleTimeout) * time.Second
}

// FlushInterval returns the queue flush interval as a duration
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Tracking.FlushInterval) * time.Second
}
