package config

import (
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Hue             HueConfig       `yaml:"hue"`
	Lifx            LifxConfig      `yaml:"lifx"`
	Database        DatabaseConfig  `yaml:"database"`
	Log             LogConfig       `yaml:"log"`
	Discovery       DiscoveryConfig `yaml:"discovery"`
	Scheduler       SchedulerConfig `yaml:"scheduler"`
	Groups          GroupsConfig    `yaml:"groups"`
	EventBus        EventBusConfig  `yaml:"eventbus"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// HueConfig contains Hue protocol settings
type HueConfig struct {
	Timeout    Duration `yaml:"timeout"`     // HTTP timeout for bridge API requests
	DeviceType string   `yaml:"device_type"` // Device type used when pairing a bridge
}

// LifxConfig contains LIFX protocol settings
type LifxConfig struct {
	Timeout Duration `yaml:"timeout"` // Per-device timeout for LAN requests
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"` // JSON output instead of the console writer
}

// GetLevel returns the configured level with default
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// DiscoveryConfig contains discovery sweep settings
type DiscoveryConfig struct {
	OnStartup bool     `yaml:"on_startup"` // Run a sweep when the daemon starts
	Timeout   Duration `yaml:"timeout"`    // Overall sweep timeout
}

// SchedulerConfig contains schedule engine settings
type SchedulerConfig struct {
	Disabled bool `yaml:"disabled"` // The minute tick runs unless disabled
}

// GroupsConfig contains group fan-out settings
type GroupsConfig struct {
	RateLimitRPS float64 `yaml:"rate_limit_rps"` // Paces member writes during fan-out
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./unilight.sqlite"
	}

	if cfg.Hue.Timeout == 0 {
		cfg.Hue.Timeout = Duration(5 * time.Second)
	}
	if cfg.Hue.DeviceType == "" {
		cfg.Hue.DeviceType = "unilightd"
	}
	if cfg.Lifx.Timeout == 0 {
		cfg.Lifx.Timeout = Duration(5 * time.Second)
	}

	if cfg.Discovery.Timeout == 0 {
		cfg.Discovery.Timeout = Duration(30 * time.Second)
	}

	if cfg.Groups.RateLimitRPS == 0 {
		cfg.Groups.RateLimitRPS = 10.0 // 10 requests per second
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}

// ExpandEnvString expands a single string with environment variables
func ExpandEnvString(s string) string {
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		return expandEnvVars(s)
	}
	return s
}
