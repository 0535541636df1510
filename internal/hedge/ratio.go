package hedge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/panel"
	"MacroPanel/pkg/util"
)

const (
	DefaultMinObs  = 24
	DefaultPostfix = "_HR"
)

// Frequency is the re-estimation calendar.
type Frequency int

const (
	Weekly Frequency = iota + 1
	Monthly
	Quarterly
)

func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(s) {
	case "w", "weekly":
		return Weekly, nil
	case "", "m", "monthly":
		return Monthly, nil
	case "q", "quarterly":
		return Quarterly, nil
	default:
		return 0, fmt.Errorf("%w: unknown re-estimation frequency %q, want w, m or q", models.ErrConfig, s)
	}
}

func (f Frequency) String() string {
	switch f {
	case Weekly:
		return "w"
	case Monthly:
		return "m"
	case Quarterly:
		return "q"
	default:
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
}

// bounds returns the first and last calendar day of the period holding d.
// Weeks run Monday to Sunday.
func (f Frequency) bounds(d time.Time) (time.Time, time.Time) {
	d = util.Day(d)
	switch f {
	case Weekly:
		start := d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
		return start, start.AddDate(0, 0, 6)
	case Quarterly:
		qm := time.Month((int(d.Month())-1)/3*3 + 1)
		start := time.Date(d.Year(), qm, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1)
	default:
		start := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, -1)
	}
}

// Config selects the hedged returns and the benchmark they are regressed on.
type Config struct {
	// Category is the return category of the hedged cross-sections.
	Category      string
	CrossSections []string
	// Benchmark is the ticker CID_XCAT of the hedge return; the category may
	// itself contain underscores.
	Benchmark string
	Window    models.DateRange
	Blacklist models.Blacklist
	Frequency Frequency
	// MinObs is the aligned sample size needed before the first estimate.
	MinObs int
	// Lookback limits each regression to the latest aligned observations; zero
	// uses the whole history up to the re-estimation date.
	Lookback int
	// InSample records a ratio on the days of its own estimation period instead
	// of the period that follows.
	InSample bool
	Postfix  string
}

// Estimate is one regression of a cross-section's return on the benchmark
// return, using aligned observations up to and including Estimated.
type Estimate struct {
	CrossSection string
	Estimated    time.Time
	Intercept    float64
	Coefficient  float64
	Observations int
}

type Result struct {
	Benchmark string
	Estimates []Estimate
	// Ratios holds the coefficient on every business day it applies to.
	Ratios models.Panel
}

func (c *Config) validate() (benchCid, benchXcat string, err error) {
	if c.Category == "" {
		return "", "", fmt.Errorf("%w: hedged return category is required", models.ErrConfig)
	}
	benchCid, benchXcat, ok := strings.Cut(c.Benchmark, "_")
	if !ok || benchCid == "" || benchXcat == "" {
		return "", "", fmt.Errorf("%w: benchmark %q must be a ticker of the form CID_XCAT", models.ErrConfig, c.Benchmark)
	}
	if c.Frequency == 0 {
		c.Frequency = Monthly
	}
	if c.Frequency < Weekly || c.Frequency > Quarterly {
		return "", "", fmt.Errorf("%w: unknown re-estimation frequency %d", models.ErrConfig, int(c.Frequency))
	}
	if c.MinObs < 2 {
		return "", "", fmt.Errorf("%w: min_obs must be at least 2, got %d", models.ErrConfig, c.MinObs)
	}
	if c.Lookback < 0 || (c.Lookback > 0 && c.Lookback < c.MinObs) {
		return "", "", fmt.Errorf("%w: lookback %d must be zero or at least min_obs %d", models.ErrConfig, c.Lookback, c.MinObs)
	}
	if c.Postfix == "" {
		c.Postfix = DefaultPostfix
	}
	return benchCid, benchXcat, nil
}

// Ratios estimates hedge ratios of every hedged cross-section against the
// benchmark. When the hedged category is the benchmark's own category, the
// benchmark cross-section is left out.
func Ratios(ctx context.Context, p models.Panel, cfg Config) (*Result, error) {
	benchCid, benchXcat, err := cfg.validate()
	if err != nil {
		return nil, err
	}

	bench, err := panel.Reduce(p, panel.Filter{
		Categories:    []string{benchXcat},
		CrossSections: []string{benchCid},
		Window:        cfg.Window,
		Blacklist:     cfg.Blacklist,
		DropMissing:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("benchmark %s: %w", cfg.Benchmark, err)
	}
	benchByDay := make(map[time.Time]float64, len(bench))
	for _, o := range bench {
		benchByDay[util.Day(o.Date)] = o.Value
	}

	hedged, err := panel.Reduce(p, panel.Filter{
		Categories:    []string{cfg.Category},
		CrossSections: cfg.CrossSections,
		Window:        cfg.Window,
		Blacklist:     cfg.Blacklist,
		DropMissing:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("hedged returns %s: %w", cfg.Category, err)
	}
	hedged.Sort()

	res := &Result{Benchmark: cfg.Benchmark}
	for _, series := range bySection(hedged) {
		cid := series[0].CrossSection
		if cid == benchCid && cfg.Category == benchXcat {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var dates []time.Time
		var x, y []float64
		for _, o := range series {
			d := util.Day(o.Date)
			b, ok := benchByDay[d]
			if !ok {
				continue
			}
			dates = append(dates, d)
			x = append(x, b)
			y = append(y, o.Value)
		}

		ests := estimate(cid, dates, x, y, cfg)
		res.Estimates = append(res.Estimates, ests...)
		res.Ratios = append(res.Ratios, expand(ests, cfg)...)
	}
	if len(res.Estimates) == 0 {
		return nil, fmt.Errorf("%w: no cross-section of %s has %d observations aligned with %s",
			models.ErrDataShape, cfg.Category, cfg.MinObs, cfg.Benchmark)
	}
	return res, nil
}

func bySection(p models.Panel) []models.Panel {
	var out []models.Panel
	for i := 0; i < len(p); {
		j := i
		for j < len(p) && p[j].CrossSection == p[i].CrossSection {
			j++
		}
		out = append(out, p[i:j])
		i = j
	}
	return out
}

// estimate runs one regression at the last aligned date of every period.
func estimate(cid string, dates []time.Time, x, y []float64, cfg Config) []Estimate {
	var out []Estimate
	for i := range dates {
		_, end := cfg.Frequency.bounds(dates[i])
		if i+1 < len(dates) && !dates[i+1].After(end) {
			continue
		}
		n := i + 1
		if n < cfg.MinObs {
			continue
		}
		from := 0
		if cfg.Lookback > 0 && n > cfg.Lookback {
			from = n - cfg.Lookback
		}
		alpha, beta := stat.LinearRegression(x[from:n], y[from:n], nil, false)
		if math.IsNaN(beta) || math.IsInf(beta, 0) {
			continue
		}
		out = append(out, Estimate{
			CrossSection: cid,
			Estimated:    dates[i],
			Intercept:    alpha,
			Coefficient:  beta,
			Observations: n - from,
		})
	}
	return out
}

// expand spreads estimates over business days. Out of sample, an estimate
// holds from the end of its period until the end of the next estimated
// period, or for one period when it is the latest.
func expand(ests []Estimate, cfg Config) models.Panel {
	category := cfg.Category + cfg.Postfix
	var out models.Panel
	for k, e := range ests {
		start, end := cfg.Frequency.bounds(e.Estimated)
		switch {
		case cfg.InSample:
			if k > 0 {
				_, prevEnd := cfg.Frequency.bounds(ests[k-1].Estimated)
				start = prevEnd.AddDate(0, 0, 1)
			}
		case k+1 < len(ests):
			start = end.AddDate(0, 0, 1)
			_, end = cfg.Frequency.bounds(ests[k+1].Estimated)
		default:
			start = end.AddDate(0, 0, 1)
			_, end = cfg.Frequency.bounds(start)
		}
		for _, d := range util.BusinessDays(start, end) {
			out = append(out, models.Observation{
				CrossSection: e.CrossSection,
				Category:     category,
				Date:         d,
				Value:        e.Coefficient,
			})
		}
	}
	return out
}
