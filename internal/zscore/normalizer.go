package zscore

import (
	"context"
	"fmt"
	"math"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/panel"
	"MacroPanel/internal/stats"
)

// Normalizer turns a category's raw values into Zn-scores:
// (value - neutral) / dispersion, floored by min_obs and optionally clipped.
type Normalizer struct {
	cfg Config
}

// New resolves options and rejects invalid ones up front.
func New(opts ...Option) (*Normalizer, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{cfg: cfg}, nil
}

func (n *Normalizer) Config() Config { return n.cfg }

// ScorePanel pivots category out of p and scores it. cids narrows the
// cross-sections; empty means all.
func (n *Normalizer) ScorePanel(ctx context.Context, p models.Panel, category string, cids []string) (models.Panel, error) {
	f, err := panel.Pivot(p, category, cids)
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", category, err)
	}
	return n.Score(ctx, f)
}

// Score computes the score table of a wide frame. Every non-missing input
// value yields one output row; the score itself is NaN where the floor has
// not been reached or the statistics are undefined.
func (n *Normalizer) Score(ctx context.Context, f *panel.Frame) (models.Panel, error) {
	z, err := n.Frame(ctx, f)
	if err != nil {
		return nil, err
	}

	category := f.Category + n.cfg.Postfix
	out := make(models.Panel, 0, f.Count())
	for j, cid := range f.CrossSections {
		for t, d := range f.Dates {
			if math.IsNaN(f.At(t, j)) {
				continue
			}
			out = append(out, models.Observation{CrossSection: cid, Category: category, Date: d, Value: z.At(t, j)})
		}
	}
	return out, nil
}

// Frame returns the scores in wide form, aligned with f.
func (n *Normalizer) Frame(ctx context.Context, f *panel.Frame) (*panel.Frame, error) {
	spec := n.cfg.spec()
	w := n.cfg.PanWeight

	var pooled stats.Series
	var each []stats.Series
	var err error
	if w > 0 {
		if pooled, err = stats.Panel(f, spec); err != nil {
			return nil, err
		}
	}
	if w < 1 {
		if each, err = stats.Cross(ctx, f, spec); err != nil {
			return nil, err
		}
	}

	out, err := panel.NewFrame(f.Category+n.cfg.Postfix, f.Dates, f.CrossSections)
	if err != nil {
		return nil, err
	}

	for j := 0; j < f.Cols(); j++ {
		seen := 0
		for t := 0; t < f.Rows(); t++ {
			x := f.At(t, j)
			if math.IsNaN(x) {
				continue
			}
			seen++
			if seen <= n.cfg.MinObs {
				continue
			}

			var neutral, std float64
			switch {
			case w == 1:
				neutral, std = pooled.Neutral[t], pooled.Std[t]
			case w == 0:
				neutral, std = each[j].Neutral[t], each[j].Std[t]
			default:
				neutral = w*pooled.Neutral[t] + (1-w)*each[j].Neutral[t]
				std = w*pooled.Std[t] + (1-w)*each[j].Std[t]
			}
			out.Set(t, j, n.clip(standardize(x, neutral, std)))
		}
	}
	return out, nil
}

func standardize(x, neutral, std float64) float64 {
	if math.IsNaN(neutral) || math.IsNaN(std) || std < stats.MinDispersion {
		return math.NaN()
	}
	return (x - neutral) / std
}

func (n *Normalizer) clip(z float64) float64 {
	if n.cfg.Thresh == nil || math.IsNaN(z) {
		return z
	}
	t := *n.cfg.Thresh
	return math.Max(-t, math.Min(t, z))
}
