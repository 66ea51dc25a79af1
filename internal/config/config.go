package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tejusbharadwaj/univers/internal/models"
)

// EnvPrefix prefixes environment overrides, e.g. UNIVERS_SERVER_PORT.
const EnvPrefix = "UNIVERS"

// Config holds all configuration for our application
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	API       APIConfig        `mapstructure:"api"`
	Export    ExportConfig     `mapstructure:"export"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Projects  []ProjectConfig  `mapstructure:"projects"`
	Schedules []ScheduleConfig `mapstructure:"schedules"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	RateLimit      float64  `mapstructure:"rate_limit"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// APIConfig tunes the Poseidon client.
type APIConfig struct {
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// ExportConfig tunes the export pipeline.
type ExportConfig struct {
	MaxPointsPerCall int           `mapstructure:"max_points_per_call"`
	MaxChunkSpan     time.Duration `mapstructure:"max_chunk_span"`
	MaxRange         time.Duration `mapstructure:"max_range"`
	Concurrency      int           `mapstructure:"concurrency"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
	Timezone         string        `mapstructure:"timezone"`
	OutputDir        string        `mapstructure:"output_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ScheduleConfig describes a recurring export of a trailing window.
type ScheduleConfig struct {
	Name            string        `mapstructure:"name"`
	Project         string        `mapstructure:"project"`
	Models          []string      `mapstructure:"models"`
	IntervalMinutes int           `mapstructure:"interval_minutes"`
	Cron            string        `mapstructure:"cron"`
	Lookback        time.Duration `mapstructure:"lookback"`
	OutputDir       string        `mapstructure:"output_dir"`
	Gzip            bool          `mapstructure:"gzip"`
}

// Location resolves the export timezone, defaulting to UTC.
func (c ExportConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid export timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from file and environment variables.
//
// A .env file next to the config file is loaded first (existing variables win),
// then ${VAR} references in the file are expanded and UNIVERS_* variables
// override individual keys.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	raw, err := parse(data)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.MergeConfigMap(raw); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var config Config
	// defaults are static and always decode
	_ = v.Unmarshal(&config)
	return &config
}

// parse decodes the YAML document with environment variables expanded.
func parse(data []byte) (map[string]interface{}, error) {
	// First unmarshal into a map to reject malformed documents before expansion
	var rawConfig map[string]interface{}
	if err := yaml.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal raw config: %w", err)
	}

	data, err := yaml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal raw config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var config map[string]interface{}
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return config, nil
}

// Validate checks structural settings. Project credentials are validated when
// a project is selected, so one incomplete project does not block the others.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("project #%d: missing name", i+1)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate project: %s", p.Name)
		}
		seen[p.Name] = true
	}

	if c.Export.MaxPointsPerCall < 1 {
		return fmt.Errorf("export.max_points_per_call must be positive")
	}
	if c.Export.Concurrency < 1 {
		return fmt.Errorf("export.concurrency must be positive")
	}
	if c.Export.MaxAttempts < 1 {
		return fmt.Errorf("export.max_attempts must be positive")
	}
	if _, err := c.Export.Location(); err != nil {
		return err
	}

	for _, s := range c.Schedules {
		if s.Name == "" || s.Cron == "" {
			return fmt.Errorf("schedule %q: name and cron are required", s.Name)
		}
		if !seen[s.Project] {
			return fmt.Errorf("schedule %q: unknown project %q", s.Name, s.Project)
		}
		if s.Lookback <= 0 {
			return fmt.Errorf("schedule %q: lookback must be positive", s.Name)
		}
		if !models.IsSupportedInterval(s.IntervalMinutes) {
			return fmt.Errorf("schedule %q: unsupported interval_minutes %d (supported: %v)",
				s.Name, s.IntervalMinutes, models.SupportedIntervals)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_limit_burst", 10)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.rate_limit", 10.0)
	v.SetDefault("api.rate_limit_burst", 5)

	v.SetDefault("export.max_points_per_call", 5000)
	v.SetDefault("export.max_chunk_span", 24*time.Hour)
	v.SetDefault("export.max_range", 2*365*24*time.Hour)
	v.SetDefault("export.concurrency", 1)
	v.SetDefault("export.max_attempts", 3)
	v.SetDefault("export.initial_backoff", time.Second)
	v.SetDefault("export.max_backoff", 10*time.Second)
	v.SetDefault("export.timezone", "UTC")
	v.SetDefault("export.output_dir", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
