package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"livesession/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Session struct {
		BaseURL     string        `yaml:"base_url"`
		Path        string        `yaml:"path"`
		MaxMessages int           `yaml:"max_messages"` // 0 = keep the whole transcript
		AuthTimeout time.Duration `yaml:"auth_timeout"` // 0 = wait for the server indefinitely
		AutoConnect bool          `yaml:"auto_connect"`
	} `yaml:"session"`

	Transport struct {
		HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
		WriteTimeout        time.Duration `yaml:"write_timeout"`
		MaxMessageSizeBytes int64         `yaml:"max_message_size_bytes"`
		ReadBufferSize      int           `yaml:"read_buffer_size"`
		WriteBufferSize     int           `yaml:"write_buffer_size"`
	} `yaml:"transport"`

	Heartbeat struct {
		Interval       time.Duration `yaml:"interval"`
		MaxMissedPongs int           `yaml:"max_missed_pongs"` // 0 = rely on transport close only
	} `yaml:"heartbeat"`

	Reconnect struct {
		Enabled      bool          `yaml:"enabled"`
		InitialDelay time.Duration `yaml:"initial_delay"`
		MaxDelay     time.Duration `yaml:"max_delay"`
		Multiplier   float64       `yaml:"multiplier"`
		Jitter       bool          `yaml:"jitter"`
		MaxAttempts  int           `yaml:"max_attempts"` // 0 = unlimited
	} `yaml:"reconnect"`

	Auth struct {
		Token          string        `yaml:"token"`
		TokenURL       string        `yaml:"token_url"`
		RefreshToken   string        `yaml:"refresh_token"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		ExpiryLeeway   time.Duration `yaml:"expiry_leeway"`
	} `yaml:"auth"`

	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Monitoring struct {
		PrometheusEnabled   bool          `yaml:"prometheus_enabled"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled       bool   `yaml:"enabled"`
		Address       string `yaml:"address"`
		Password      string `yaml:"password"`
		DB            int    `yaml:"db"`
		PoolSize      int    `yaml:"pool_size"`
		ChannelPrefix string `yaml:"channel_prefix"`
		QueueSize     int    `yaml:"queue_size"`
	} `yaml:"redis"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		MaxConcurrent     int     `yaml:"max_concurrent"` // 0 = no concurrency limit
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Session
	if c.Session.BaseURL == "" {
		return fmt.Errorf("session.base_url must not be empty")
	}
	if _, err := c.EndpointURL(); err != nil {
		return err
	}
	if c.Session.MaxMessages < 0 {
		return fmt.Errorf("session.max_messages must be >= 0")
	}
	if c.Session.AuthTimeout < 0 {
		return fmt.Errorf("session.auth_timeout must be >= 0")
	}

	// Transport
	if c.Transport.HandshakeTimeout <= 0 {
		return fmt.Errorf("transport.handshake_timeout must be > 0")
	}
	if c.Transport.WriteTimeout <= 0 {
		return fmt.Errorf("transport.write_timeout must be > 0")
	}
	if c.Transport.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("transport.max_message_size_bytes must be >= 0")
	}

	// Heartbeat
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be > 0")
	}
	if c.Heartbeat.MaxMissedPongs < 0 {
		return fmt.Errorf("heartbeat.max_missed_pongs must be >= 0")
	}

	// Reconnect
	if c.Reconnect.Enabled {
		if c.Reconnect.InitialDelay <= 0 {
			return fmt.Errorf("reconnect.initial_delay must be > 0 when reconnect.enabled=true")
		}
		if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
			return fmt.Errorf("reconnect.max_delay must be >= reconnect.initial_delay")
		}
		if c.Reconnect.Multiplier < 1 {
			return fmt.Errorf("reconnect.multiplier must be >= 1")
		}
	}
	if c.Reconnect.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts must be >= 0")
	}

	// Auth
	if c.Auth.TokenURL != "" {
		if err := validation.ValidateURL(c.Auth.TokenURL); err != nil {
			return fmt.Errorf("auth.token_url: %w", err)
		}
	}
	if c.Auth.TokenURL != "" && c.Auth.RefreshToken == "" {
		return fmt.Errorf("auth.refresh_token must not be empty when auth.token_url is set")
	}
	if c.Auth.RequestTimeout <= 0 {
		return fmt.Errorf("auth.request_timeout must be > 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Address == "" {
			return fmt.Errorf("server.address must not be empty when server.enabled=true")
		}
		if c.Server.ReadTimeout <= 0 {
			return fmt.Errorf("server.read_timeout must be > 0")
		}
		if c.Server.WriteTimeout <= 0 {
			return fmt.Errorf("server.write_timeout must be > 0")
		}
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Monitoring
	if c.Monitoring.HealthCheckInterval <= 0 {
		return fmt.Errorf("monitoring.health_check_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.QueueSize <= 0 {
			return fmt.Errorf("redis.queue_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// EndpointURL joins session.base_url and session.path into the WebSocket
// endpoint, mapping http(s) schemes to ws(s).
func (c *Config) EndpointURL() (string, error) {
	u, err := url.Parse(c.Session.BaseURL)
	if err != nil {
		return "", fmt.Errorf("session.base_url is not a valid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("session.base_url has unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("session.base_url must include a host")
	}

	if c.Session.Path != "" {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(c.Session.Path, "/")
	}
	return u.String(), nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Session.BaseURL = "ws://localhost:8080"
	cfg.Session.Path = "/ws/live"
	cfg.Session.MaxMessages = 500
	cfg.Session.AuthTimeout = 0
	cfg.Session.AutoConnect = true

	cfg.Transport.HandshakeTimeout = 10 * time.Second
	cfg.Transport.WriteTimeout = 10 * time.Second
	cfg.Transport.MaxMessageSizeBytes = 512 * 1024
	cfg.Transport.ReadBufferSize = 4096
	cfg.Transport.WriteBufferSize = 4096

	cfg.Heartbeat.Interval = 30 * time.Second
	cfg.Heartbeat.MaxMissedPongs = 2

	cfg.Reconnect.Enabled = true
	cfg.Reconnect.InitialDelay = time.Second
	cfg.Reconnect.MaxDelay = 30 * time.Second
	cfg.Reconnect.Multiplier = 2.0
	cfg.Reconnect.Jitter = true
	cfg.Reconnect.MaxAttempts = 0

	cfg.Auth.RequestTimeout = 10 * time.Second
	cfg.Auth.ExpiryLeeway = 30 * time.Second

	cfg.Server.Enabled = true
	cfg.Server.Address = "127.0.0.1:8090"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.HealthCheckInterval = 15 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.ChannelPrefix = "livesession"
	cfg.Redis.QueueSize = 256

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "livesession"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.RequestsPerSecond = 20
	cfg.RateLimiting.Burst = 40
	cfg.RateLimiting.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LIVESESSION_BASE_URL"); v != "" {
		c.Session.BaseURL = v
	}
	if v := os.Getenv("LIVESESSION_PATH"); v != "" {
		c.Session.Path = v
	}
	if v := os.Getenv("LIVESESSION_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if v := os.Getenv("LIVESESSION_REFRESH_TOKEN"); v != "" {
		c.Auth.RefreshToken = v
	}
	if v := os.Getenv("LIVESESSION_TOKEN_URL"); v != "" {
		c.Auth.TokenURL = v
	}
	if v := os.Getenv("LIVESESSION_SERVER_ADDRESS"); v != "" {
		c.Server.Address = v
	}
	if v := os.Getenv("LIVESESSION_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LIVESESSION_REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LIVESESSION_TRACING_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = enabled
		}
	}
}
