package composite

import (
	"fmt"
	"math"
	"sort"
	"time"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/panel"
	"MacroPanel/pkg/util"
)

// DefaultCategory names the composite when no name is given.
const DefaultCategory = "NEW"

// MissingPolicy decides what happens to a component that has no value.
type MissingPolicy int

const (
	// Reweight combines whatever components are present.
	Reweight MissingPolicy = iota
	// Drop removes a (cross-section, date) row missing any component.
	Drop
	// Fill substitutes Config.FillValue for missing components.
	Fill
)

func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "reweight":
		return Reweight, nil
	case "drop":
		return Drop, nil
	case "fill":
		return Fill, nil
	default:
		return 0, fmt.Errorf("%w: unknown nan treatment %q, want reweight, drop or fill", models.ErrConfig, s)
	}
}

// Config describes a linear combination of categories. Weights default to
// equal and are coerced to sum to one; signs default to +1 and are coerced to
// +1 or -1.
type Config struct {
	Categories    []string
	Weights       []float64
	Signs         []float64
	CrossSections []string
	Window        models.DateRange
	Blacklist     models.Blacklist
	// Complete leaves the composite missing unless every component is present.
	Complete  bool
	Missing   MissingPolicy
	FillValue float64
	Category  string
}

// Plan is a validated Config.
type Plan struct {
	cfg     Config
	weights []float64 // signed, absolute values sum to one
	warn    []string
}

// Warnings lists coercions applied to weights or signs.
func (pl *Plan) Warnings() []string { return pl.warn }

// Weights returns the signed normalized weights in category order.
func (pl *Plan) Weights() []float64 { return append([]float64(nil), pl.weights...) }

func NewPlan(cfg Config) (*Plan, error) {
	n := len(cfg.Categories)
	if n == 0 {
		return nil, fmt.Errorf("%w: composite needs at least one category", models.ErrConfig)
	}
	seen := make(map[string]bool, n)
	for _, c := range cfg.Categories {
		if c == "" || seen[c] {
			return nil, fmt.Errorf("%w: composite categories must be distinct and non-empty, got %v", models.ErrConfig, cfg.Categories)
		}
		seen[c] = true
	}
	if cfg.Weights != nil && len(cfg.Weights) != n {
		return nil, fmt.Errorf("%w: %d weights for %d categories", models.ErrConfig, len(cfg.Weights), n)
	}
	if cfg.Signs != nil && len(cfg.Signs) != n {
		return nil, fmt.Errorf("%w: %d signs for %d categories", models.ErrConfig, len(cfg.Signs), n)
	}
	if cfg.Missing == Fill && (math.IsNaN(cfg.FillValue) || math.IsInf(cfg.FillValue, 0)) {
		return nil, fmt.Errorf("%w: fill value must be finite", models.ErrConfig)
	}
	if cfg.Category == "" {
		cfg.Category = DefaultCategory
	}

	pl := &Plan{cfg: cfg, weights: make([]float64, n)}

	total := 0.0
	for i := range pl.weights {
		w := 1.0
		if cfg.Weights != nil {
			w = cfg.Weights[i]
		}
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return nil, fmt.Errorf("%w: weight of %s is %v, want a finite non-negative value", models.ErrConfig, cfg.Categories[i], w)
		}
		pl.weights[i] = w
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: composite weights sum to zero", models.ErrConfig)
	}
	if math.Abs(total-1) > 1e-9 && cfg.Weights != nil {
		pl.warn = append(pl.warn, fmt.Sprintf("weights sum to %v and were rescaled to one", total))
	}

	coerced := false
	for i := range pl.weights {
		pl.weights[i] /= total
		if cfg.Signs == nil {
			continue
		}
		s := cfg.Signs[i]
		switch {
		case math.IsNaN(s) || s == 0:
			return nil, fmt.Errorf("%w: sign of %s is %v, want 1 or -1", models.ErrConfig, cfg.Categories[i], s)
		case s < 0:
			pl.weights[i] = -pl.weights[i]
			coerced = coerced || s != -1
		default:
			coerced = coerced || s != 1
		}
	}
	if coerced {
		pl.warn = append(pl.warn, "signs were coerced to 1 or -1")
	}
	return pl, nil
}

type rowKey struct {
	cid string
	day time.Time
}

// Apply builds the composite category from p. Rows are the (cross-section,
// date) pairs where any component is observed; the output is sorted by
// cross-section then date and keeps missing composites as NaN.
func (pl *Plan) Apply(p models.Panel) (models.Panel, error) {
	cfg := pl.cfg
	reduced, err := panel.Reduce(p, panel.Filter{
		Categories:    cfg.Categories,
		CrossSections: cfg.CrossSections,
		Window:        cfg.Window,
		Blacklist:     cfg.Blacklist,
	})
	if err != nil {
		return nil, err
	}

	col := make(map[string]int, len(cfg.Categories))
	for i, c := range cfg.Categories {
		col[c] = i
	}
	rows := make(map[rowKey][]float64)
	for _, o := range reduced {
		k := rowKey{o.CrossSection, util.Day(o.Date)}
		r, ok := rows[k]
		if !ok {
			r = make([]float64, len(cfg.Categories))
			for i := range r {
				r[i] = math.NaN()
			}
			rows[k] = r
		}
		if !math.IsNaN(r[col[o.Category]]) {
			return nil, fmt.Errorf("%w: duplicate observation %s/%s on %s", models.ErrDataShape, o.CrossSection, o.Category, util.FormatDate(k.day))
		}
		r[col[o.Category]] = o.Value
	}

	keys := make([]rowKey, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cid != keys[j].cid {
			return keys[i].cid < keys[j].cid
		}
		return keys[i].day.Before(keys[j].day)
	})

	out := make(models.Panel, 0, len(keys))
	for _, k := range keys {
		v, keep := pl.combine(rows[k])
		if !keep {
			continue
		}
		out = append(out, models.Observation{CrossSection: k.cid, Category: cfg.Category, Date: k.day, Value: v})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no rows left for composite %s", models.ErrDataShape, cfg.Category)
	}
	return out, nil
}

// combine returns the composite of one row and whether the row is kept.
func (pl *Plan) combine(row []float64) (float64, bool) {
	var num, den float64
	present := 0
	for i, x := range row {
		if math.IsNaN(x) {
			switch pl.cfg.Missing {
			case Drop:
				return 0, false
			case Fill:
				x = pl.cfg.FillValue
			default:
				continue
			}
		}
		present++
		num += pl.weights[i] * x
		den += math.Abs(pl.weights[i])
	}
	if present == 0 || den == 0 {
		return math.NaN(), true
	}
	if pl.cfg.Complete && present < len(row) {
		return math.NaN(), true
	}
	return num / den, true
}

// Linear validates cfg and applies it to p.
func Linear(p models.Panel, cfg Config) (models.Panel, error) {
	pl, err := NewPlan(cfg)
	if err != nil {
		return nil, err
	}
	return pl.Apply(p)
}
