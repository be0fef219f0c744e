package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Journal Configuration
# Relative paths are resolved against this directory.

[database]
# SQLite database file
path = "journal.db"

[logging]
# Log level: debug, info, warn, error
level = "info"
console = false
file = true
file_path = "logs/journal.log"
# Rotation: size in MB, number of backups, age in days
max_size = 50
max_backups = 5
max_age = 30

[arithmetic]
# Fractional digits kept when averaging prices
scale = 20
# Rounding: half_up, half_even, down, up, ceiling, floor
rounding = "half_up"
# Decimal places and rounding used when printing values
display_places = 2
display_rounding = "half_up"

[import]
# Scopes replayed in parallel
workers = 4
# Merge fills with the same broker, ticker, side, price and time
merge_duplicates = true
# Layout of timestamps in CSV files (Go reference time)
date_format = "2006-01-02 15:04:05"

[audit]
# Append every applied mutation to a JSON lines audit trail
enabled = true
dir = "audit"

[ui]
color_enabled = true
date_format = "02-Jan-2006"
time_format = "15:04:05"
# Zone used when printing timestamps, e.g. "Asia/Kolkata"
timezone = "UTC"
# Digit grouping: indian (1,00,000) or international (100,000)
numbering = "indian"

# Fee schedules per broker. A fill is charged
#   max(minimum, per_fill + per_unit * quantity + percent/100 * notional)
# [fees.zerodha]
# per_fill = "20"
# per_unit = "0"
# percent = "0.03"
# minimum = "0"
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}
