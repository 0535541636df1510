package weights

import (
	"fmt"
	"math"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/panel"
	"MacroPanel/pkg/util"
)

// Epsilon is the tolerance above the cap that counts as converged.
const Epsilon = 0.001

// Upper bound on redistribution passes; hitting it is reported as ErrInvariant.
const maxIterations = 10_000

// Result is a capped weight row and the number of redistribution passes used.
// Rescaled is set when the active weights had to be normalized to sum to one
// before capping, which can change a row without any redistribution pass.
type Result struct {
	Row        []float64
	Iterations int
	Rescaled   bool
}

// Changed reports whether the row differs from its input.
func (r Result) Changed() bool { return r.Rescaled || r.Iterations > 0 }

// CapRow limits every active (non-NaN) weight to at most capWeight+Epsilon,
// spreading the removed excess evenly over the active entries so they keep
// summing to one. NaN entries are copied through. A row that already
// respects the cap is returned unchanged.
func CapRow(row []float64, capWeight float64) (Result, error) {
	if math.IsNaN(capWeight) || capWeight <= 0 || capWeight > 1 {
		return Result{}, fmt.Errorf("%w: cap must be within (0, 1], got %v", models.ErrConfig, capWeight)
	}

	out := append([]float64(nil), row...)
	active := make([]int, 0, len(out))
	over := false
	for i, w := range out {
		if math.IsNaN(w) {
			continue
		}
		if w < 0 || math.IsInf(w, 0) {
			return Result{}, fmt.Errorf("%w: weight %d is %v, want a finite non-negative value", models.ErrConfig, i, w)
		}
		active = append(active, i)
		if w > capWeight+Epsilon {
			over = true
		}
	}
	if len(active) == 0 {
		return Result{Row: out}, nil
	}
	if capWeight*float64(len(active)) < 1-1e-12 {
		return Result{}, fmt.Errorf("%w: cap %v cannot hold %d active weights summing to one (need cap >= %v)",
			models.ErrConfig, capWeight, len(active), 1/float64(len(active)))
	}
	if !over {
		return Result{Row: out}, nil
	}

	rescaled := normalize(out, active)
	share := 1 / float64(len(active))

	for it := 0; it < maxIterations; it++ {
		excess := make([]int, 0, 1)
		for _, i := range active {
			if out[i] > capWeight+Epsilon {
				excess = append(excess, i)
			}
		}

		var spread float64
		switch len(excess) {
		case 0:
			return Result{Row: out, Iterations: it, Rescaled: rescaled}, nil
		case 1:
			i := excess[0]
			spread = out[i] - capWeight
			out[i] = capWeight
		default:
			for _, i := range excess {
				out[i] = capWeight
			}
			spread = 1 - sum(out, active)
		}
		for _, i := range active {
			out[i] += spread * share
		}
	}
	return Result{}, fmt.Errorf("%w: weight capping did not converge in %d passes", models.ErrInvariant, maxIterations)
}

// CapFrame caps every row of a weight frame and returns a new frame.
func CapFrame(f *panel.Frame, capWeight float64) (*panel.Frame, error) {
	out := f.Clone()
	for t := 0; t < f.Rows(); t++ {
		res, err := CapRow(f.Row(t), capWeight)
		if err != nil {
			return nil, fmt.Errorf("cap %s row %s: %w", f.Category, util.FormatDate(f.Dates[t]), err)
		}
		for j, w := range res.Row {
			out.Set(t, j, w)
		}
	}
	return out, nil
}

func sum(row []float64, idx []int) float64 {
	s := 0.0
	for _, i := range idx {
		s += row[i]
	}
	return s
}

func normalize(row []float64, idx []int) bool {
	s := sum(row, idx)
	if s <= 0 || s == 1 {
		return false
	}
	for _, i := range idx {
		row[i] /= s
	}
	return true
}
