package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shizukutanaka/axetune/internal/device"
	"github.com/shizukutanaka/axetune/internal/logging"
	"github.com/shizukutanaka/axetune/internal/tuning"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, e.g. AXETUNE_DEVICE_ADDRESS
const EnvPrefix = "AXETUNE"

// DefaultFile is read when no config path is given and it exists
const DefaultFile = "axetune.yaml"

// Config is the complete, immutable run configuration
type Config struct {
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Logging  LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Device   DeviceConfig  `mapstructure:"device" yaml:"device"`
	Sweep    SweepConfig   `mapstructure:"sweep" yaml:"sweep"`
	Output   OutputConfig  `mapstructure:"output" yaml:"output"`
}

// LoggingConfig configures log output
type LoggingConfig struct {
	File        string `mapstructure:"file" yaml:"file"`
	Development bool   `mapstructure:"development" yaml:"development"`
	MaxSizeMB   int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DeviceConfig configures the AxeOS connection
type DeviceConfig struct {
	Address           string        `mapstructure:"address" yaml:"address"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	VerifySetting     bool          `mapstructure:"verify_setting" yaml:"verify_setting"`
	AutoFanSpeed      bool          `mapstructure:"auto_fan_speed" yaml:"auto_fan_speed"`
	FlipScreen        bool          `mapstructure:"flip_screen" yaml:"flip_screen"`
	InvertFanPolarity bool          `mapstructure:"invert_fan_polarity" yaml:"invert_fan_polarity"`
}

// RangeConfig is a frequency ladder
type RangeConfig struct {
	Start int `mapstructure:"start" yaml:"start"`
	End   int `mapstructure:"end" yaml:"end"`
	Step  int `mapstructure:"step" yaml:"step"`
}

// VoltageConfig is a voltage ladder with a hard ceiling
type VoltageConfig struct {
	Start int `mapstructure:"start" yaml:"start"`
	Max   int `mapstructure:"max" yaml:"max"`
	Step  int `mapstructure:"step" yaml:"step"`
}

// WindowConfig is a measurement window
type WindowConfig struct {
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// ConfirmConfig is the drop confirmation window
type ConfirmConfig struct {
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
}

// SweepConfig holds the tuning parameters
type SweepConfig struct {
	Frequency              RangeConfig   `mapstructure:"frequency" yaml:"frequency"`
	Voltage                VoltageConfig `mapstructure:"voltage" yaml:"voltage"`
	SettleTime             time.Duration `mapstructure:"settle_time" yaml:"settle_time"`
	Measure                WindowConfig  `mapstructure:"measure" yaml:"measure"`
	Confirm                ConfirmConfig `mapstructure:"confirm" yaml:"confirm"`
	TempLimit              float64       `mapstructure:"temp_limit" yaml:"temp_limit"`
	HashrateTolerance      float64       `mapstructure:"hashrate_tolerance" yaml:"hashrate_tolerance"`
	CoefVariationThreshold float64       `mapstructure:"coef_variation_threshold" yaml:"coef_variation_threshold"`
}

// OutputConfig names the run artifacts
type OutputConfig struct {
	ResultsCSV      string `mapstructure:"results_csv" yaml:"results_csv"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
}

// Load reads the configuration from path, the environment and any bound flags.
// flags maps config keys to command-line flags; only flags that were set override.
func Load(path string, flags map[string]*pflag.Flag) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key, flag := range flags {
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults registers every key with the stock Bitaxe Gamma sweep values
func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("logging.file", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("device.address", "")
	v.SetDefault("device.timeout", "10s")
	v.SetDefault("device.requests_per_second", 5)
	v.SetDefault("device.verify_setting", false)
	v.SetDefault("device.auto_fan_speed", true)
	v.SetDefault("device.flip_screen", true)
	v.SetDefault("device.invert_fan_polarity", true)

	v.SetDefault("sweep.frequency.start", 525)
	v.SetDefault("sweep.frequency.end", 875)
	v.SetDefault("sweep.frequency.step", 5)
	v.SetDefault("sweep.voltage.start", 1150)
	v.SetDefault("sweep.voltage.max", 1250)
	v.SetDefault("sweep.voltage.step", 10)
	v.SetDefault("sweep.settle_time", "180s")
	v.SetDefault("sweep.measure.duration", "180s")
	v.SetDefault("sweep.measure.interval", "1s")
	v.SetDefault("sweep.confirm.duration", "60s")
	v.SetDefault("sweep.confirm.interval", "1s")
	v.SetDefault("sweep.confirm.attempts", 2)
	v.SetDefault("sweep.temp_limit", 60)
	v.SetDefault("sweep.hashrate_tolerance", 0.90)
	v.SetDefault("sweep.coef_variation_threshold", 0.12)

	v.SetDefault("output.results_csv", "bitaxe_tuning_results.csv")
	v.SetDefault("output.metrics_textfile", "")
}

// Validate checks everything but the device address
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	if c.Device.Timeout <= 0 {
		return errors.New("device.timeout must be positive")
	}
	if c.Device.RequestsPerSecond < 0 {
		return errors.New("device.requests_per_second cannot be negative")
	}
	if c.Output.ResultsCSV == "" {
		return errors.New("output.results_csv is required")
	}

	return c.TuningParams().Validate()
}

// RequireDevice checks that a device address is configured
func (c *Config) RequireDevice() error {
	if strings.TrimSpace(c.Device.Address) == "" {
		return errors.New("device.address is required (set it in the config file, AXETUNE_DEVICE_ADDRESS or --ip)")
	}
	return nil
}

// TuningParams returns the sweep parameters
func (c *Config) TuningParams() tuning.Params {
	s := c.Sweep
	return tuning.Params{
		Frequency:          tuning.Ladder{Start: s.Frequency.Start, End: s.Frequency.End, Step: s.Frequency.Step},
		Voltage:            tuning.Ladder{Start: s.Voltage.Start, End: s.Voltage.Max, Step: s.Voltage.Step},
		SettleTime:         s.SettleTime,
		MeasureDuration:    s.Measure.Duration,
		MeasureInterval:    s.Measure.Interval,
		ConfirmDuration:    s.Confirm.Duration,
		ConfirmInterval:    s.Confirm.Interval,
		ConfirmAttempts:    s.Confirm.Attempts,
		TempLimit:          s.TempLimit,
		HashrateTolerance:  s.HashrateTolerance,
		CoefficientCeiling: s.CoefVariationThreshold,
		VerifySetting:      c.Device.VerifySetting,
	}
}

// DeviceClientConfig returns the device client settings
func (c *Config) DeviceClientConfig() device.Config {
	return device.Config{
		Address:           c.Device.Address,
		Timeout:           c.Device.Timeout,
		RequestsPerSecond: c.Device.RequestsPerSecond,
		AutoFanSpeed:      c.Device.AutoFanSpeed,
		FlipScreen:        c.Device.FlipScreen,
		InvertFanPolarity: c.Device.InvertFanPolarity,
	}
}

// LoggerConfig returns the logger settings
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:       c.LogLevel,
		File:        c.Logging.File,
		Development: c.Logging.Development,
		MaxSizeMB:   c.Logging.MaxSizeMB,
		MaxBackups:  c.Logging.MaxBackups,
		MaxAgeDays:  c.Logging.MaxAgeDays,
		Compress:    c.Logging.Compress,
	}
}

// YAML renders the configuration as a config file
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration to path
func Save(c *Config, path string) error {
	data, err := c.YAML()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
