package zscore

import (
	"fmt"
	"math"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/stats"
)

const (
	DefaultMinObs  = 261
	DefaultPostfix = "_ZN"
)

// Config is the resolved normalizer policy.
type Config struct {
	Neutral    stats.Level
	Sequential bool
	MinObs     int
	// Thresh is the winsorization bound in standard deviations; nil disables clipping.
	Thresh    *float64
	PanWeight float64
	Postfix   string

	neutralName string
}

type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Neutral:    stats.Zero,
		Sequential: true,
		MinObs:     DefaultMinObs,
		PanWeight:  1,
		Postfix:    DefaultPostfix,
	}
}

// WithNeutral sets the neutral level by name: mean, median or zero.
func WithNeutral(name string) Option {
	return func(c *Config) { c.neutralName = name }
}

func WithLevel(l stats.Level) Option {
	return func(c *Config) {
		c.Neutral = l
		c.neutralName = ""
	}
}

func WithSequential(sequential bool) Option {
	return func(c *Config) { c.Sequential = sequential }
}

func WithMinObs(n int) Option {
	return func(c *Config) { c.MinObs = n }
}

func WithThresh(t float64) Option {
	return func(c *Config) { c.Thresh = &t }
}

// WithoutThresh disables winsorization, overriding an earlier WithThresh.
func WithoutThresh() Option {
	return func(c *Config) { c.Thresh = nil }
}

func WithPanWeight(w float64) Option {
	return func(c *Config) { c.PanWeight = w }
}

func WithPostfix(p string) Option {
	return func(c *Config) { c.Postfix = p }
}

// Validate checks every knob; it runs before any computation.
func (c *Config) Validate() error {
	if c.neutralName != "" {
		l, err := stats.ParseLevel(c.neutralName)
		if err != nil {
			return err
		}
		c.Neutral = l
		c.neutralName = ""
	}
	if !c.Neutral.Valid() {
		return fmt.Errorf("%w: unknown neutral level %d", models.ErrConfig, int(c.Neutral))
	}
	if c.MinObs < 0 {
		return fmt.Errorf("%w: min_obs must be >= 0, got %d", models.ErrConfig, c.MinObs)
	}
	if c.Thresh != nil && (math.IsNaN(*c.Thresh) || *c.Thresh < 1) {
		return fmt.Errorf("%w: thresh must be >= 1, got %v", models.ErrConfig, *c.Thresh)
	}
	if math.IsNaN(c.PanWeight) || c.PanWeight < 0 || c.PanWeight > 1 {
		return fmt.Errorf("%w: pan_weight must be within [0, 1], got %v", models.ErrConfig, c.PanWeight)
	}
	return nil
}

func (c Config) spec() stats.Spec {
	mode := stats.Static
	if c.Sequential {
		mode = stats.Sequential
	}
	return stats.Spec{Level: c.Neutral, Mode: mode}
}
