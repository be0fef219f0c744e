// Package fees provides per-broker fee schedules for executions.
package fees

import (
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"tradejournal/internal/config"
	"tradejournal/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Model computes the fee charged for one execution.
type Model interface {
	// Fee returns the full fee of the execution.
	Fee(e models.Execution) decimal.Decimal
	// Proportional reports whether a fill split across two trades should
	// charge each trade its quantity share of the fee. A flat per-fill fee
	// is charged in full to every trade the fill belongs to.
	Proportional() bool
}

// Func adapts a plain function to a proportional Model.
type Func func(models.Execution) decimal.Decimal

// Fee calls f.
func (f Func) Fee(e models.Execution) decimal.Decimal { return f(e) }

// Proportional returns true.
func (f Func) Proportional() bool { return true }

// Zero charges nothing.
var Zero Model = Func(func(models.Execution) decimal.Decimal { return decimal.Zero })

// Schedule charges max(Minimum, PerFill + PerUnit*qty + Percent/100*notional).
type Schedule struct {
	PerFill decimal.Decimal
	PerUnit decimal.Decimal
	Percent decimal.Decimal
	Minimum decimal.Decimal
}

// Fee implements Model.
func (s Schedule) Fee(e models.Execution) decimal.Decimal {
	fee := s.PerFill.
		Add(s.PerUnit.Mul(e.Quantity)).
		Add(s.Percent.Mul(e.Notional()).Div(hundred))
	if fee.LessThan(s.Minimum) {
		return s.Minimum
	}
	return fee
}

// Proportional is false only for a pure flat per-fill charge.
func (s Schedule) Proportional() bool {
	return !(s.PerUnit.IsZero() && s.Percent.IsZero() && s.Minimum.IsZero())
}

// ScheduleFromConfig parses a broker fee section.
func ScheduleFromConfig(fc config.FeeConfig) (Schedule, error) {
	var s Schedule
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"per_fill", fc.PerFill, &s.PerFill},
		{"per_unit", fc.PerUnit, &s.PerUnit},
		{"percent", fc.Percent, &s.Percent},
		{"minimum", fc.Minimum, &s.Minimum},
	} {
		if strings.TrimSpace(f.raw) == "" {
			*f.dst = decimal.Zero
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return s, nil
}

// Registry maps brokers to fee models. Brokers without a model are charged
// the fallback, which defaults to Zero.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]Model
	fallback Model
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model), fallback: Zero}
}

// NewRegistryFromConfig builds a registry from the [fees.<broker>] sections.
func NewRegistryFromConfig(sections map[string]config.FeeConfig) (*Registry, error) {
	r := NewRegistry()
	for broker, fc := range sections {
		s, err := ScheduleFromConfig(fc)
		if err != nil {
			return nil, fmt.Errorf("fees for %s: %w", broker, err)
		}
		r.Register(broker, s)
	}
	return r, nil
}

// Register sets the model of a broker. Broker names are case-insensitive.
func (r *Registry) Register(broker string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[strings.ToLower(broker)] = m
}

// SetFallback sets the model used for unknown brokers.
func (r *Registry) SetFallback(m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = m
}

// For returns the model of a broker.
func (r *Registry) For(broker string) Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.models[strings.ToLower(broker)]; ok {
		return m
	}
	return r.fallback
}
