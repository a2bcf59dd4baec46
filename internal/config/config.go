// Package config loads agentnode's configuration from a YAML file, merges
// environment overrides under the P2P_ prefix, and validates the bounds
// spec.md §6 assigns to each option before the daemon starts.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Readiness mirrors the optional readiness surface of §6.
type Readiness struct {
	FileEnabled bool   `mapstructure:"file_enabled" json:"file_enabled" yaml:"file_enabled"`
	FilePath    string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`
	PortEnabled bool   `mapstructure:"port_enabled" json:"port_enabled" yaml:"port_enabled"`
	Port        int    `mapstructure:"port" json:"port" yaml:"port"`
}

// Shutdown mirrors the graceful-shutdown deadline of §6.
type Shutdown struct {
	ShutdownTimeoutSecs int `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Config is the unified configuration for an agentnode instance.
type Config struct {
	ListenPort              int       `mapstructure:"listen_port" json:"listen_port" yaml:"listen_port"`
	MaxPeers                int       `mapstructure:"max_peers" json:"max_peers" yaml:"max_peers"`
	MaxMemoryMB             int       `mapstructure:"max_memory_mb" json:"max_memory_mb" yaml:"max_memory_mb"`
	HealthCheckIntervalSecs int       `mapstructure:"health_check_interval_secs" json:"health_check_interval_secs" yaml:"health_check_interval_secs"`
	StoragePath             string    `mapstructure:"storage_path" json:"storage_path" yaml:"storage_path"`
	RemoteStorageURL        string    `mapstructure:"remote_storage_url" json:"remote_storage_url" yaml:"remote_storage_url"`
	BootstrapNodes          []string  `mapstructure:"bootstrap_nodes" json:"bootstrap_nodes" yaml:"bootstrap_nodes"`
	LogLevel                string    `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	DiscoveryTag            string    `mapstructure:"discovery_tag" json:"discovery_tag" yaml:"discovery_tag"`
	Readiness               Readiness `mapstructure:"readiness" json:"readiness" yaml:"readiness"`
	Shutdown                Shutdown  `mapstructure:"shutdown" json:"shutdown" yaml:"shutdown"`
}

// Defaults returns a Config populated with the teacher-style sane defaults,
// used to seed viper before any file or env override is applied.
func Defaults() Config {
	return Config{
		ListenPort:              4001,
		MaxPeers:                64,
		MaxMemoryMB:             1024,
		HealthCheckIntervalSecs: 30,
		StoragePath:             "./data",
		LogLevel:                "info",
		DiscoveryTag:            "agentnode",
		Readiness: Readiness{
			FileEnabled: true,
			FilePath:    ".ready",
			PortEnabled: false,
			Port:        8181,
		},
		Shutdown: Shutdown{ShutdownTimeoutSecs: 30},
	}
}

// Load reads a YAML configuration file at path (if it exists), merges
// environment overrides prefixed P2P_, and validates the result. An empty
// path loads defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of .env is not an error

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("P2P")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("listen_port", d.ListenPort)
	v.SetDefault("max_peers", d.MaxPeers)
	v.SetDefault("max_memory_mb", d.MaxMemoryMB)
	v.SetDefault("health_check_interval_secs", d.HealthCheckIntervalSecs)
	v.SetDefault("storage_path", d.StoragePath)
	v.SetDefault("remote_storage_url", d.RemoteStorageURL)
	v.SetDefault("bootstrap_nodes", d.BootstrapNodes)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("discovery_tag", d.DiscoveryTag)
	v.SetDefault("readiness.file_enabled", d.Readiness.FileEnabled)
	v.SetDefault("readiness.file_path", d.Readiness.FilePath)
	v.SetDefault("readiness.port_enabled", d.Readiness.PortEnabled)
	v.SetDefault("readiness.port", d.Readiness.Port)
	v.SetDefault("shutdown.shutdown_timeout", d.Shutdown.ShutdownTimeoutSecs)
}

// Validate enforces the numeric bounds spec.md §6 assigns to each option.
func Validate(c *Config) error {
	if c.ListenPort < 1024 || c.ListenPort > 65535 {
		return fmt.Errorf("config: listen_port %d out of range [1024,65535]", c.ListenPort)
	}
	if c.MaxPeers < 1 || c.MaxPeers > 256 {
		return fmt.Errorf("config: max_peers %d out of range [1,256]", c.MaxPeers)
	}
	if c.MaxMemoryMB < 128 || c.MaxMemoryMB > 16384 {
		return fmt.Errorf("config: max_memory_mb %d out of range [128,16384]", c.MaxMemoryMB)
	}
	if c.HealthCheckIntervalSecs <= 0 {
		return fmt.Errorf("config: health_check_interval_secs must be positive, got %d", c.HealthCheckIntervalSecs)
	}
	if c.StoragePath == "" {
		return fmt.Errorf("config: storage_path must not be empty")
	}
	if c.Readiness.PortEnabled && (c.Readiness.Port < 1 || c.Readiness.Port > 65535) {
		return fmt.Errorf("config: readiness.port %d out of range [1,65535]", c.Readiness.Port)
	}
	if c.Shutdown.ShutdownTimeoutSecs <= 0 {
		return fmt.Errorf("config: shutdown.shutdown_timeout must be positive, got %d", c.Shutdown.ShutdownTimeoutSecs)
	}
	return nil
}
