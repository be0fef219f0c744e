package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/config"
	"tradejournal/internal/money"
)

// Formatter renders journal values for display.
type Formatter struct {
	money      money.Presentation
	indian     bool
	loc        *time.Location
	dateFormat string
	timeFormat string
}

// NewFormatter builds a formatter from the [arithmetic] and [ui] settings.
func NewFormatter(cfg *config.Config) (*Formatter, error) {
	loc, err := time.LoadLocation(cfg.UI.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.UI.Timezone, err)
	}
	f := &Formatter{
		money:      cfg.Presentation(),
		indian:     cfg.UI.Numbering != "international",
		loc:        loc,
		dateFormat: cfg.UI.DateFormat,
		timeFormat: cfg.UI.TimeFormat,
	}
	if f.dateFormat == "" {
		f.dateFormat = "02-Jan-2006"
	}
	if f.timeFormat == "" {
		f.timeFormat = "15:04:05"
	}
	return f, nil
}

// Amount formats a decimal with grouped digits and the configured places.
func (f *Formatter) Amount(d decimal.Decimal) string {
	s := f.money.Format(d)
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	if f.indian {
		intPart = formatIndianNumber(intPart)
	} else {
		intPart = formatInternationalNumber(intPart)
	}

	result := intPart + fracPart
	if negative && strings.Trim(result, "0.,") != "" {
		result = "-" + result
	}
	return result
}

// NullAmount formats a nullable decimal, "-" when unset.
func (f *Formatter) NullAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return f.Amount(d.Decimal)
}

// Signed formats P&L with an explicit sign.
func (f *Formatter) Signed(d decimal.Decimal) string {
	formatted := f.Amount(d)
	if f.money.Round(d).IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// Quantity formats a quantity without forcing fractional digits.
func (f *Formatter) Quantity(d decimal.Decimal) string {
	s := d.String()
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i:]
	}
	if f.indian {
		intPart = formatIndianNumber(intPart)
	} else {
		intPart = formatInternationalNumber(intPart)
	}
	if negative {
		return "-" + intPart + fracPart
	}
	return intPart + fracPart
}

// Time formats the time of day.
func (f *Formatter) Time(t time.Time) string {
	return t.In(f.loc).Format(f.timeFormat)
}

// Date formats a date.
func (f *Formatter) Date(t time.Time) string {
	return t.In(f.loc).Format(f.dateFormat)
}

// DateTime formats a date and time.
func (f *Formatter) DateTime(t time.Time) string {
	return t.In(f.loc).Format(f.dateFormat + " " + f.timeFormat)
}

// NullDateTime formats an optional timestamp.
func (f *Formatter) NullDateTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return f.DateTime(*t)
}

// formatIndianNumber formats an integer string in Indian numbering system.
// Indian system: 1,00,00,000 (1 crore) vs Western: 10,000,000
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right (hundreds)
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2 (thousands, lakhs, crores)
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

func formatInternationalNumber(s string) string {
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// shortID keeps the first block of a trade UUID for table output.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return TruncateString(id, 8)
}
