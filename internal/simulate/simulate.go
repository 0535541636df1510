package simulate

import (
	"fmt"
	"math/rand/v2"
	"time"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

// CrossSection shifts and scales every category it carries.
type CrossSection struct {
	ID      string
	Start   time.Time
	End     time.Time
	MeanAdd float64
	SDMult  float64
}

// Category describes the base AR(1) process of a series.
type Category struct {
	ID    string
	Start time.Time
	End   time.Time
	Mean  float64
	SD    float64
	AR    float64
}

type Config struct {
	CrossSections []CrossSection
	Categories    []Category
	Seed          uint64
}

// Panel simulates x_t = mu*(1-ar) + ar*x_{t-1} + sd*e_t on the business days
// each (cross-section, category) pair has in common. Equal seeds give equal panels.
func Panel(cfg Config) (models.Panel, error) {
	if len(cfg.CrossSections) == 0 || len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("%w: simulation needs at least one cross-section and one category", models.ErrConfig)
	}

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	var out models.Panel
	for _, cs := range cfg.CrossSections {
		for _, cat := range cfg.Categories {
			if cat.AR <= -1 || cat.AR >= 1 {
				return nil, fmt.Errorf("%w: category %s ar coefficient %v must lie in (-1, 1)", models.ErrConfig, cat.ID, cat.AR)
			}
			start, end := later(cs.Start, cat.Start), earlier(cs.End, cat.End)
			days := util.BusinessDays(start, end)
			if len(days) == 0 {
				continue
			}

			mu := cat.Mean + cs.MeanAdd
			sd := cat.SD * scale(cs.SDMult)
			x := mu + sd*rng.NormFloat64()
			for i, d := range days {
				if i > 0 {
					x = mu*(1-cat.AR) + cat.AR*x + sd*rng.NormFloat64()
				}
				out = append(out, models.Observation{CrossSection: cs.ID, Category: cat.ID, Date: d, Value: x})
			}
		}
	}
	return out, nil
}

func scale(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
