// Package config handles configuration loading, validation, and management
// for kvpedit.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"kvpedit/internal/logging"
	"kvpedit/internal/store"
)

// Version is the current configuration schema version.
const Version = 1

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KVPEDIT_"

// Config holds the complete application configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Service locates the segmentation and phoneticization service.
	Service ServiceConfig `toml:"service" json:"service" yaml:"service"`

	// Pipeline tunes the live update pipeline.
	Pipeline PipelineConfig `toml:"pipeline" json:"pipeline" yaml:"pipeline"`

	// Storage configures preference persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// Metrics configures the optional metrics endpoint.
	Metrics MetricsConfig `toml:"metrics" json:"metrics" yaml:"metrics"`
}

// ServiceConfig locates the remote service.
type ServiceConfig struct {
	// URL is the base URL; endpoint paths are appended to it.
	URL string `toml:"url" json:"url" yaml:"url"`

	// TimeoutSec bounds each request. Zero means no timeout.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// PipelineConfig tunes the pipeline.
type PipelineConfig struct {
	// DebounceMs is the quiet period before a service request is issued.
	DebounceMs int `toml:"debounce_ms" json:"debounce_ms" yaml:"debounce_ms"`
}

// StorageConfig configures preference persistence.
type StorageConfig struct {
	// Type is "sqlite", "memory" or "none".
	Type string `toml:"type" json:"type" yaml:"type"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// BusyTimeoutMs is the SQLite busy timeout.
	BusyTimeoutMs int `toml:"busy_timeout_ms" json:"busy_timeout_ms" yaml:"busy_timeout_ms"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is text or json.
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is stdout, stderr, file, both or discard.
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file used by the file and both outputs.
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB triggers rotation.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`

	// MaxBackups is the number of rotated files kept.
	MaxBackups int `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// MetricsConfig configures the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" json:"listen" yaml:"listen"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: Version,
		Service: ServiceConfig{
			URL: "http://127.0.0.1:5000",
		},
		Pipeline: PipelineConfig{
			DebounceMs: 120,
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			Path:          filepath.Join(DataDir(), "prefs.db"),
			BusyTimeoutMs: 5000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   filepath.Join(PlatformLogDir(), "kvpedit.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "127.0.0.1:9464",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// DataDir returns the data directory, honouring KVPEDIT_DATA_DIR.
func DataDir() string {
	if dir := os.Getenv(EnvPrefix + "DATA_DIR"); dir != "" {
		return dir
	}
	return PlatformDataDir()
}

// Load reads configuration from path, or from ConfigPath when path is empty.
// A missing file yields the defaults. Environment overrides are applied and
// the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// ApplyEnvOverrides applies KVPEDIT_* environment variables. Unparseable
// numeric values are ignored.
func (c *Config) ApplyEnvOverrides() {
	str := func(name string, dst *string) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("SERVICE_URL", &c.Service.URL)
	num("SERVICE_TIMEOUT_SEC", &c.Service.TimeoutSec)
	num("DEBOUNCE_MS", &c.Pipeline.DebounceMs)
	str("STORAGE_TYPE", &c.Storage.Type)
	str("STORAGE_PATH", &c.Storage.Path)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_PATH", &c.Logging.FilePath)
	str("METRICS_LISTEN", &c.Metrics.Listen)
	if v := os.Getenv(EnvPrefix + "METRICS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Metrics.Enabled = b
		}
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// QuietPeriod returns the pipeline debounce as a duration.
func (c *Config) QuietPeriod() time.Duration {
	return time.Duration(c.Pipeline.DebounceMs) * time.Millisecond
}

// ServiceTimeout returns the per-request timeout, zero for none.
func (c *Config) ServiceTimeout() time.Duration {
	return time.Duration(c.Service.TimeoutSec) * time.Second
}

// LoggingConfig converts the logging section for logging.New.
func (c *Config) LoggingConfig() *logging.Config {
	lc := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.Logging.Level); err == nil {
		lc.Level = level
	}
	lc.Format = logging.ParseFormat(c.Logging.Format)
	lc.Output = c.Logging.Output
	lc.FilePath = c.Logging.FilePath
	lc.MaxSize = int64(c.Logging.MaxSizeMB)
	lc.MaxBackups = c.Logging.MaxBackups
	return lc
}

// StoreOptions converts the storage section for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Type:          c.Storage.Type,
		Path:          c.Storage.Path,
		BusyTimeoutMs: c.Storage.BusyTimeoutMs,
	}
}

// Save writes the configuration as TOML, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("encode TOML: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadOrCreate loads path, writing a default configuration file first when
// none exists. The boolean reports whether the file was created.
func LoadOrCreate(path string) (*Config, bool, error) {
	if path == "" {
		path = ConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := Save(cfg, path); err != nil {
			return nil, false, fmt.Errorf("create default config: %w", err)
		}
		cfg.ApplyEnvOverrides()
		return cfg, true, cfg.Validate()
	}
	cfg, err := Load(path)
	return cfg, false, err
}
