package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Stream transports
const (
	TransportSSE       = "sse"
	TransportWebSocket = "ws"
	TransportNATS      = "nats"
)

type Config struct {
	API struct {
		URL            string `yaml:"url"`
		RequestTimeout int    `yaml:"request_timeout_sec"`
	} `yaml:"api"`

	Stream struct {
		URL                string `yaml:"url"`
		Transport          string `yaml:"transport"`
		ReconnectInitialMS int    `yaml:"reconnect_initial_ms"`
		ReconnectMaxMS     int    `yaml:"reconnect_max_ms"`
	} `yaml:"stream"`

	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`

	Round struct {
		TickIntervalMS int `yaml:"tick_interval_ms"`
	} `yaml:"round"`

	Identity struct {
		File string `yaml:"file"`
	} `yaml:"identity"`

	Status struct {
		Port string `yaml:"port"`
	} `yaml:"status"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in configuration
func Default() *Config {
	var c Config
	c.API.URL = "http://localhost:3001"
	c.API.RequestTimeout = 30
	c.Stream.Transport = TransportSSE
	c.Stream.ReconnectInitialMS = 500
	c.Stream.ReconnectMaxMS = 30000
	c.NATS.URL = "nats://127.0.0.1:4222"
	c.NATS.SubjectPrefix = "room"
	c.Round.TickIntervalMS = 1000
	c.Log.Level = "info"
	c.Log.Format = "console"
	return &c
}

// Load builds the configuration from defaults, then the YAML file at path (if it exists),
// then environment variables.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		if err := loadConfigFile(path, config); err != nil {
			return nil, err
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func applyEnv(c *Config) {
	c.API.URL = getEnv("API_URL", c.API.URL)
	c.API.RequestTimeout = getEnvAsInt("REQUEST_TIMEOUT_SEC", c.API.RequestTimeout)
	c.Stream.URL = getEnv("STREAM_URL", c.Stream.URL)
	c.Stream.Transport = strings.ToLower(getEnv("STREAM_TRANSPORT", c.Stream.Transport))
	c.Stream.ReconnectInitialMS = getEnvAsInt("RECONNECT_INITIAL_MS", c.Stream.ReconnectInitialMS)
	c.Stream.ReconnectMaxMS = getEnvAsInt("RECONNECT_MAX_MS", c.Stream.ReconnectMaxMS)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.SubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.NATS.SubjectPrefix)
	c.Round.TickIntervalMS = getEnvAsInt("TICK_INTERVAL_MS", c.Round.TickIntervalMS)
	c.Identity.File = getEnv("IDENTITY_FILE", c.Identity.File)
	c.Status.Port = getEnv("STATUS_PORT", c.Status.Port)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
}

// Validate checks values that would otherwise fail later in confusing ways
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("api url is required")
	}
	switch c.Stream.Transport {
	case TransportSSE, TransportWebSocket, TransportNATS:
	default:
		return fmt.Errorf("unknown stream transport %q", c.Stream.Transport)
	}
	if c.Round.TickIntervalMS <= 0 {
		return fmt.Errorf("tick interval must be positive, got %d", c.Round.TickIntervalMS)
	}
	if c.Stream.ReconnectInitialMS <= 0 || c.Stream.ReconnectMaxMS < c.Stream.ReconnectInitialMS {
		return fmt.Errorf("invalid reconnect window %d..%d ms", c.Stream.ReconnectInitialMS, c.Stream.ReconnectMaxMS)
	}
	return nil
}

// StreamURL is the push stream base URL. It defaults to the API URL.
func (c *Config) StreamURL() string {
	if c.Stream.URL != "" {
		return c.Stream.URL
	}
	return c.API.URL
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Round.TickIntervalMS) * time.Millisecond
}

func (c *Config) ReconnectInitial() time.Duration {
	return time.Duration(c.Stream.ReconnectInitialMS) * time.Millisecond
}

func (c *Config) ReconnectMax() time.Duration {
	return time.Duration(c.Stream.ReconnectMaxMS) * time.Millisecond
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
