// Package config provides configuration management for the trade journal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"tradejournal/internal/errors"
	"tradejournal/internal/money"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig       `mapstructure:"database"`
	Logging    LoggingConfig        `mapstructure:"logging"`
	Arithmetic ArithmeticConfig     `mapstructure:"arithmetic"`
	Import     ImportConfig         `mapstructure:"import"`
	Audit      AuditConfig          `mapstructure:"audit"`
	UI         UIConfig             `mapstructure:"ui"`
	Fees       map[string]FeeConfig `mapstructure:"fees"`

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// DatabaseConfig holds the journal database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// ArithmeticConfig controls decimal precision for computation and display.
type ArithmeticConfig struct {
	Scale           int32  `mapstructure:"scale"`
	Rounding        string `mapstructure:"rounding"`
	DisplayPlaces   int32  `mapstructure:"display_places"`
	DisplayRounding string `mapstructure:"display_rounding"`
}

// ImportConfig holds bulk import settings.
type ImportConfig struct {
	Workers         int    `mapstructure:"workers"`
	MergeDuplicates bool   `mapstructure:"merge_duplicates"`
	DateFormat      string `mapstructure:"date_format"`
}

// AuditConfig holds the mutation audit trail settings.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
	Timezone     string `mapstructure:"timezone"`
	// Numbering is "indian" (1,00,000) or "international" (100,000).
	Numbering string `mapstructure:"numbering"`
}

// FeeConfig is the fee schedule of one broker. Values are decimal strings.
type FeeConfig struct {
	PerFill string `mapstructure:"per_fill"`
	PerUnit string `mapstructure:"per_unit"`
	Percent string `mapstructure:"percent"`
	Minimum string `mapstructure:"minimum"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trade-journal"
	}
	return filepath.Join(home, ".config", "trade-journal")
}

// ConfigPath returns the path of config.toml inside configDir.
func ConfigPath(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and then loaded.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "journal.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join("logs", "journal.log"))
	v.SetDefault("logging.max_size", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	v.SetDefault("arithmetic.scale", money.DefaultScale)
	v.SetDefault("arithmetic.rounding", string(money.HalfUp))
	v.SetDefault("arithmetic.display_places", 2)
	v.SetDefault("arithmetic.display_rounding", string(money.HalfUp))

	v.SetDefault("import.workers", 4)
	v.SetDefault("import.merge_duplicates", true)
	v.SetDefault("import.date_format", "2006-01-02 15:04:05")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", "audit")

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")
	v.SetDefault("ui.timezone", "UTC")
	v.SetDefault("ui.numbering", "indian")
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOURNAL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JOURNAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// resolvePaths makes relative paths relative to the config directory.
func (c *Config) resolvePaths() {
	abs := func(p string) string {
		if p == "" || p == ":memory:" || filepath.IsAbs(p) || c.Dir == "" {
			return p
		}
		return filepath.Join(c.Dir, p)
	}
	c.Database.Path = abs(c.Database.Path)
	c.Logging.FilePath = abs(c.Logging.FilePath)
	c.Audit.Dir = abs(c.Audit.Dir)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigInvalid, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must be set")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Logging.Level)
	}

	if c.Arithmetic.Scale < 0 {
		return fmt.Errorf("arithmetic.scale must be non-negative")
	}
	if c.Arithmetic.DisplayPlaces < 0 || c.Arithmetic.DisplayPlaces > c.Arithmetic.Scale {
		return fmt.Errorf("arithmetic.display_places must be between 0 and scale (%d)", c.Arithmetic.Scale)
	}
	if _, err := money.ParseRoundingMode(c.Arithmetic.Rounding); err != nil {
		return fmt.Errorf("arithmetic.rounding: %w", err)
	}
	if _, err := money.ParseRoundingMode(c.Arithmetic.DisplayRounding); err != nil {
		return fmt.Errorf("arithmetic.display_rounding: %w", err)
	}

	if _, err := time.LoadLocation(c.UI.Timezone); err != nil {
		return fmt.Errorf("ui.timezone: %w", err)
	}
	switch c.UI.Numbering {
	case "", "indian", "international":
	default:
		return fmt.Errorf("invalid ui.numbering: %s (must be indian or international)", c.UI.Numbering)
	}

	if c.Import.Workers < 1 {
		return fmt.Errorf("import.workers must be at least 1")
	}

	for broker, fee := range c.Fees {
		for field, raw := range map[string]string{
			"per_fill": fee.PerFill,
			"per_unit": fee.PerUnit,
			"percent":  fee.Percent,
			"minimum":  fee.Minimum,
		} {
			if raw == "" {
				continue
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return fmt.Errorf("fees.%s.%s: invalid decimal %q", broker, field, raw)
			}
			if d.IsNegative() {
				return fmt.Errorf("fees.%s.%s must be non-negative", broker, field)
			}
		}
	}

	return nil
}

// ArithmeticContext returns the decimal context used for computation.
func (c *Config) ArithmeticContext() money.Context {
	mode, _ := money.ParseRoundingMode(c.Arithmetic.Rounding)
	return money.Context{Scale: c.Arithmetic.Scale, Mode: mode}
}

// Presentation returns the decimal formatting used for display.
func (c *Config) Presentation() money.Presentation {
	mode, _ := money.ParseRoundingMode(c.Arithmetic.DisplayRounding)
	return money.Presentation{Places: c.Arithmetic.DisplayPlaces, Mode: mode}
}
