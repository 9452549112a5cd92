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

// Config is the root configuration structure for Seestar Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device       DeviceConfig       `yaml:"device"`
	Client       ClientConfig       `yaml:"client"`
	Poller       PollerConfig       `yaml:"poller"`
	Commands     CommandsConfig     `yaml:"commands"`
	Capabilities CapabilitiesConfig `yaml:"capabilities"`
	Events       EventsConfig       `yaml:"events"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	API          APIConfig          `yaml:"api"`
	WebSocket    WebSocketConfig    `yaml:"websocket"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// DeviceConfig identifies the telescope's HTTP control endpoint.
type DeviceConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	DeviceNumber int    `yaml:"device_number"`
	ClientID     string `yaml:"client_id"`

	// RequestTimeout bounds a single HTTP exchange with the device.
	// Default: 10s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Simulate replaces the network transport with an in-process simulated
	// device. Intended for development and demos without hardware.
	Simulate bool `yaml:"simulate"`
}

// ClientConfig tunes retry, caching and pacing of device requests.
type ClientConfig struct {
	// MaxAttempts is the total number of tries per call, including the first.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the delay before the first retry; it doubles per retry.
	// Default: 250ms
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMax caps a single retry delay.
	// Default: 2s
	BackoffMax time.Duration `yaml:"backoff_max"`

	// BackoffJitter is the randomisation factor applied to each delay (0-1).
	// Default: 0.2
	BackoffJitter float64 `yaml:"backoff_jitter"`

	// CacheTTL is how long an idempotent query response may be served from cache.
	// Default: 500ms
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// RequestsPerSecond paces requests to the device. 0 disables pacing.
	// Default: 20
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// PollerConfig controls the state polling loop.
type PollerConfig struct {
	// Interval between poll cycles.
	// Default: 1s
	Interval time.Duration `yaml:"interval"`

	// FailureThreshold is the number of consecutive unreachable or transient
	// cycles before the device is reported disconnected.
	// Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// CycleTimeout bounds one complete poll cycle including retries.
	// Default: 15s
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
}

// CommandsConfig holds reconciliation deadlines and tolerances.
type CommandsConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	GotoTimeout    time.Duration `yaml:"goto_timeout"`
	FocusTimeout   time.Duration `yaml:"focus_timeout"`
	FilterTimeout  time.Duration `yaml:"filter_timeout"`

	// AutoFocusTimeout covers a complete auto-focus run.
	AutoFocusTimeout time.Duration `yaml:"autofocus_timeout"`

	// ExposureMargin is added to an exposure's duration to form its deadline.
	ExposureMargin time.Duration `yaml:"exposure_margin"`

	// GotoEpsilon is the positional tolerance for goto completion, applied to
	// RA in hours and Dec in degrees.
	GotoEpsilon float64 `yaml:"goto_epsilon"`
}

// CapabilitiesConfig describes what the attached hardware accepts.
type CapabilitiesConfig struct {
	FocuserMax  int      `yaml:"focuser_max"`
	FilterNames []string `yaml:"filter_names"`
	ExposureMin float64  `yaml:"exposure_min"`
	ExposureMax float64  `yaml:"exposure_max"`
	GainMin     int      `yaml:"gain_min"`
	GainMax     int      `yaml:"gain_max"`
}

// EventsConfig contains event fan-out settings.
type EventsConfig struct {
	// QueueSize is the per-subscriber bound before coalescing kicks in.
	// Default: 4
	QueueSize int `yaml:"queue_size"`
}

// DatabaseConfig contains SQLite database settings for the command audit trail.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`

	// TopicPrefix roots every relay topic. Default: seestar
	TopicPrefix string `yaml:"topic_prefix"`

	// HealthInterval is how often the relay republishes its health report.
	HealthInterval time.Duration `yaml:"health_interval"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for operational metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SEESTAR_SECTION_KEY
// For example: SEESTAR_DEVICE_HOST, SEESTAR_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load, but falls back to defaults (plus
// environment overrides) when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg = Default()
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a Seestar S50 on its
// own access point.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			Host:           "localhost",
			Port:           5555,
			DeviceNumber:   1,
			ClientID:       "1",
			RequestTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			MaxAttempts:       3,
			BackoffBase:       250 * time.Millisecond,
			BackoffMax:        2 * time.Second,
			BackoffJitter:     0.2,
			CacheTTL:          500 * time.Millisecond,
			RequestsPerSecond: 20,
		},
		Poller: PollerConfig{
			Interval:         time.Second,
			FailureThreshold: 3,
			CycleTimeout:     15 * time.Second,
		},
		Commands: CommandsConfig{
			DefaultTimeout:   30 * time.Second,
			GotoTimeout:      3 * time.Minute,
			FocusTimeout:     time.Minute,
			FilterTimeout:    30 * time.Second,
			AutoFocusTimeout: 5 * time.Minute,
			ExposureMargin:   30 * time.Second,
			GotoEpsilon:      0.01,
		},
		Capabilities: CapabilitiesConfig{
			FocuserMax:  100000,
			FilterNames: []string{"Clear", "LP"},
			ExposureMin: 0.001,
			ExposureMax: 3600,
			GainMin:     0,
			GainMax:     100,
		},
		Events: EventsConfig{
			QueueSize: 4,
		},
		Database: DatabaseConfig{
			Path:        "./data/seestar.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "seestar-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix:    "seestar",
			HealthInterval: 30 * time.Second,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Org:           "seestar",
			Bucket:        "seestar",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SEESTAR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Device
	if v := os.Getenv("SEESTAR_DEVICE_HOST"); v != "" {
		cfg.Device.Host = v
	}
	if v := os.Getenv("SEESTAR_DEVICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Device.Port = port
		}
	}
	if v := os.Getenv("SEESTAR_DEVICE_SIMULATE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Device.Simulate = b
		}
	}

	// Database
	if v := os.Getenv("SEESTAR_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("SEESTAR_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SEESTAR_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SEESTAR_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("SEESTAR_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("SEESTAR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SEESTAR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device
	if c.Device.Host == "" && !c.Device.Simulate {
		errs = append(errs, "device.host is required")
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		errs = append(errs, "device.port must be between 1 and 65535")
	}
	if c.Device.RequestTimeout <= 0 {
		errs = append(errs, "device.request_timeout must be positive")
	}

	// Client
	if c.Client.MaxAttempts < 1 {
		errs = append(errs, "client.max_attempts must be at least 1")
	}
	if c.Client.BackoffBase <= 0 {
		errs = append(errs, "client.backoff_base must be positive")
	}
	if c.Client.BackoffMax < c.Client.BackoffBase {
		errs = append(errs, "client.backoff_max must not be below client.backoff_base")
	}
	if c.Client.BackoffJitter < 0 || c.Client.BackoffJitter > 1 {
		errs = append(errs, "client.backoff_jitter must be between 0 and 1")
	}
	if c.Client.CacheTTL < 0 {
		errs = append(errs, "client.cache_ttl must not be negative")
	}
	if c.Client.RequestsPerSecond < 0 {
		errs = append(errs, "client.requests_per_second must not be negative")
	}

	// Poller
	if c.Poller.Interval <= 0 {
		errs = append(errs, "poller.interval must be positive")
	}
	if c.Poller.FailureThreshold < 1 {
		errs = append(errs, "poller.failure_threshold must be at least 1")
	}

	// Commands
	if c.Commands.GotoEpsilon <= 0 {
		errs = append(errs, "commands.goto_epsilon must be positive")
	}
	if c.Commands.DefaultTimeout <= 0 {
		errs = append(errs, "commands.default_timeout must be positive")
	}

	// Capabilities
	if c.Capabilities.FocuserMax < 1 {
		errs = append(errs, "capabilities.focuser_max must be positive")
	}
	if len(c.Capabilities.FilterNames) == 0 {
		errs = append(errs, "capabilities.filter_names must list at least one filter")
	}
	if c.Capabilities.ExposureMin <= 0 || c.Capabilities.ExposureMax < c.Capabilities.ExposureMin {
		errs = append(errs, "capabilities exposure range is invalid")
	}
	if c.Capabilities.GainMax < c.Capabilities.GainMin {
		errs = append(errs, "capabilities gain range is invalid")
	}

	// Events
	if c.Events.QueueSize < 1 {
		errs = append(errs, "events.queue_size must be at least 1")
	}

	// Database
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
