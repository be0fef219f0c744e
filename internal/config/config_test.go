package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/errors"
	"tradejournal/internal/money"
)

func TestLoad_CreatesTemplate(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.Database.Path)
	assert.Equal(t, filepath.Join(dir, "audit"), cfg.Audit.Dir)
	assert.Equal(t, int32(20), cfg.Arithmetic.Scale)
	assert.Equal(t, 4, cfg.Import.Workers)
	assert.True(t, cfg.Import.MergeDuplicates)
	assert.Equal(t, money.DefaultContext(), cfg.ArithmeticContext())
	assert.Equal(t, money.DefaultPresentation(), cfg.Presentation())
}

func TestLoad_ReadsFeesAndOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `
[database]
path = "/tmp/other.db"

[arithmetic]
scale = 8
rounding = "half_even"
display_places = 4
display_rounding = "down"

[fees.zerodha]
per_fill = "20"
percent = "0.03"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644))
	t.Setenv("JOURNAL_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, money.Context{Scale: 8, Mode: money.HalfEven}, cfg.ArithmeticContext())
	assert.Equal(t, money.Presentation{Places: 4, Mode: money.Down}, cfg.Presentation())
	require.Contains(t, cfg.Fees, "zerodha")
	assert.Equal(t, "20", cfg.Fees["zerodha"].PerFill)
	assert.Equal(t, "0.03", cfg.Fees["zerodha"].Percent)
}

func TestLoad_DBPathFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("JOURNAL_DB_PATH", "/var/lib/journal.db")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/journal.db", cfg.Database.Path)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Path: "journal.db"},
			Arithmetic: ArithmeticConfig{Scale: 20, Rounding: "half_up", DisplayPlaces: 2, DisplayRounding: "half_up"},
			Import:     ImportConfig{Workers: 1},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no database", func(c *Config) { c.Database.Path = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad rounding", func(c *Config) { c.Arithmetic.Rounding = "nearest" }},
		{"bad display rounding", func(c *Config) { c.Arithmetic.DisplayRounding = "x" }},
		{"display above scale", func(c *Config) { c.Arithmetic.DisplayPlaces = 30 }},
		{"no workers", func(c *Config) { c.Import.Workers = 0 }},
		{"unknown timezone", func(c *Config) { c.UI.Timezone = "Mars/Olympus" }},
		{"unknown numbering", func(c *Config) { c.UI.Numbering = "roman" }},
		{"negative fee", func(c *Config) {
			c.Fees = map[string]FeeConfig{"zerodha": {PerFill: "-1"}}
		}},
		{"non-decimal fee", func(c *Config) {
			c.Fees = map[string]FeeConfig{"zerodha": {Percent: "abc"}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), errors.ErrConfigInvalid)
		})
	}
}
