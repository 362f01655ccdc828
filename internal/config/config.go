package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration of vclient.
type Config struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Logging  LoggingConfig  `yaml:"logging"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Items    []ItemConfig   `yaml:"items"`
}

// DaemonConfig describes how to reach vcontrold.
type DaemonConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Prompt         string        `yaml:"prompt"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig bounds catalog discovery retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker settings for publishing polled values.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
// An empty ClientID is replaced by a generated one.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// ItemConfig is one value polled from the daemon.
type ItemConfig struct {
	// Name identifies the item towards the sinks.
	Name string `yaml:"name"`
	// Command is the catalog command read for the item.
	Command string        `yaml:"command"`
	Refresh time.Duration `yaml:"refresh"`
}

// Load builds the configuration from defaults, the YAML file at path,
// environment variables and overrides, in that order, and validates it.
// An empty path skips the file.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Port:           3002,
			Prompt:         "vctrld>",
			ConnectTimeout: 5 * time.Second,
			RequestTimeout: 5 * time.Second,
			Retry: RetryConfig{
				MaxAttempts: 5,
				InitialWait: time.Second,
				MaxWait:     30 * time.Second,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host: "localhost",
				Port: 1883,
			},
			QoS:         1,
			TopicPrefix: "vcontrold",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VCLIENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Daemon
	if v := os.Getenv("VCLIENT_HOST"); v != "" {
		cfg.Daemon.Host = v
	}
	if v := os.Getenv("VCLIENT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VCLIENT_PORT: %w", err)
		}
		cfg.Daemon.Port = port
	}

	// MQTT
	if v := os.Getenv("VCLIENT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VCLIENT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VCLIENT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("VCLIENT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	return nil
}

// Validate checks the configuration for errors.
// All problems are reported at once.
func (c *Config) Validate() error {
	var errs []string

	// Daemon
	if c.Daemon.Host == "" {
		errs = append(errs, "daemon.host is required (set --host or VCLIENT_HOST)")
	}
	if c.Daemon.Port < 1 || c.Daemon.Port > 65535 {
		errs = append(errs, "daemon.port must be between 1 and 65535")
	}
	if c.Daemon.Prompt == "" || strings.ContainsAny(c.Daemon.Prompt, "\r\n") {
		errs = append(errs, "daemon.prompt must be a non-empty single line")
	}
	if c.Daemon.ConnectTimeout <= 0 {
		errs = append(errs, "daemon.connect_timeout must be positive")
	}
	if c.Daemon.RequestTimeout <= 0 {
		errs = append(errs, "daemon.request_timeout must be positive")
	}
	if c.Daemon.Retry.MaxAttempts < 1 {
		errs = append(errs, "daemon.retry.max_attempts must be at least 1")
	}
	if c.Daemon.Retry.InitialWait < 0 || c.Daemon.Retry.MaxWait < c.Daemon.Retry.InitialWait {
		errs = append(errs, "daemon.retry waits must satisfy 0 <= initial_wait <= max_wait")
	}
	if c.Daemon.Retry.MaxAttempts > 1 && c.Daemon.Retry.InitialWait == 0 {
		errs = append(errs, "daemon.retry.initial_wait must be positive when max_attempts > 1")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
		}
	}

	// InfluxDB
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	// Items
	seen := make(map[string]bool, len(c.Items))
	for i, item := range c.Items {
		switch {
		case item.Name == "":
			errs = append(errs, fmt.Sprintf("items[%d].name is required", i))
		case seen[item.Name]:
			errs = append(errs, fmt.Sprintf("items[%d].name %q is duplicated", i, item.Name))
		}
		seen[item.Name] = true
		if item.Command == "" {
			errs = append(errs, fmt.Sprintf("items[%d].command is required", i))
		}
		if item.Refresh <= 0 {
			errs = append(errs, fmt.Sprintf("items[%d].refresh must be positive", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
