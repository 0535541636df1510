package stats

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"MacroPanel/internal/panel"
)

// MinDispersion is the smallest dispersion treated as defined; anything
// below it is reported as NaN so scores never divide by ~zero.
const MinDispersion = 1e-12

// Series holds neutral levels and dispersions aligned 1:1 with a frame's
// rows. In sequential mode entry t only depends on rows 0..t.
type Series struct {
	Neutral []float64
	Std     []float64
}

// rowFunc emits the non-missing values of row t.
type rowFunc func(t int, emit func(float64))

// Panel estimates over all cross-sections pooled together.
func Panel(f *panel.Frame, spec Spec) (Series, error) {
	if err := spec.Validate(); err != nil {
		return Series{}, err
	}
	cols := f.Cols()
	rows := func(t int, emit func(float64)) {
		for j := 0; j < cols; j++ {
			if v := f.At(t, j); !math.IsNaN(v) {
				emit(v)
			}
		}
	}
	return estimate(f.Rows(), rows, spec), nil
}

// Cross estimates every cross-section independently. Columns share no state,
// so they run concurrently and land in their own slot of the result.
func Cross(ctx context.Context, f *panel.Frame, spec Spec) ([]Series, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	out := make([]Series, f.Cols())
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for j := 0; j < f.Cols(); j++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			col := f.Column(j)
			out[j] = estimate(len(col), func(t int, emit func(float64)) {
				if v := col[t]; !math.IsNaN(v) {
					emit(v)
				}
			}, spec)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func estimate(n int, rows rowFunc, spec Spec) Series {
	s := Series{Neutral: make([]float64, n), Std: make([]float64, n)}
	if spec.Mode == Static {
		staticEstimate(n, rows, spec.Level, s)
		return s
	}

	acc := newAccumulator[spec.Level]()
	var mo moments
	for t := 0; t < n; t++ {
		rows(t, func(x float64) {
			acc.push(x)
			mo.push(x)
		})
		s.Neutral[t] = acc.level()
		s.Std[t] = dispersion(mo.rms(s.Neutral[t]))
	}
	return s
}

func staticEstimate(n int, rows rowFunc, level Level, s Series) {
	var values []float64
	for t := 0; t < n; t++ {
		rows(t, func(x float64) { values = append(values, x) })
	}

	neutral := math.NaN()
	switch {
	case len(values) == 0:
	case level == Mean:
		neutral = stat.Mean(values, nil)
	default:
		acc := newAccumulator[level]()
		for _, v := range values {
			acc.push(v)
		}
		neutral = acc.level()
	}

	var mo moments
	for _, v := range values {
		mo.push(v)
	}
	std := dispersion(mo.rms(neutral))

	for t := 0; t < n; t++ {
		s.Neutral[t] = neutral
		s.Std[t] = std
	}
}

func dispersion(v float64) float64 {
	if math.IsNaN(v) || v < MinDispersion {
		return math.NaN()
	}
	return v
}
