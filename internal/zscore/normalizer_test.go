package zscore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/stats"
	"MacroPanel/pkg/util"
)

var (
	nan  = math.NaN()
	days = util.BusinessDays(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
)

func longPanel(category string, cols map[string][]float64) models.Panel {
	var p models.Panel
	for cid, values := range cols {
		for i, v := range values {
			if math.IsNaN(v) {
				continue
			}
			p = append(p, models.Observation{CrossSection: cid, Category: category, Date: days[i], Value: v})
		}
	}
	return p
}

func find(t *testing.T, p models.Panel, cid string, day int) models.Observation {
	t.Helper()
	for _, o := range p {
		if o.CrossSection == cid && o.Date.Equal(days[day]) {
			return o
		}
	}
	t.Fatalf("no row for %s on day %d", cid, day)
	return models.Observation{}
}

func TestEndToEndPanelMean(t *testing.T) {
	p := longPanel("X", map[string][]float64{
		"A": {1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		"B": {10, 9, 8, 7, 6, 5, 4, 3, 2, 1},
	})

	n, err := New(WithNeutral("mean"), WithMinObs(0), WithPanWeight(1), WithSequential(true))
	require.NoError(t, err)

	out, err := n.ScorePanel(context.Background(), p, "X", nil)
	require.NoError(t, err)
	require.Len(t, out, 20)

	a := find(t, out, "A", 4)
	assert.Equal(t, "X_ZN", a.Category)
	assert.InDelta(t, (5-5.5)/math.Sqrt(8.25), a.Value, 1e-12)

	b := find(t, out, "B", 4)
	assert.InDelta(t, (6-5.5)/math.Sqrt(8.25), b.Value, 1e-12)
}

func TestMinObsFloor(t *testing.T) {
	p := longPanel("X", map[string][]float64{
		"A": {1, 4, 2, 8, 5, 7, 3, 6},
		"B": {nan, nan, 3, nan, 9, 1, 4, 2},
	})

	n, err := New(WithNeutral("mean"), WithMinObs(3))
	require.NoError(t, err)
	out, err := n.ScorePanel(context.Background(), p, "X", nil)
	require.NoError(t, err)

	count := map[string]int{}
	for _, o := range out {
		count[o.CrossSection]++
		if count[o.CrossSection] <= 3 {
			assert.True(t, math.IsNaN(o.Value), "%s %s should be floored", o.CrossSection, util.FormatDate(o.Date))
		} else {
			assert.False(t, math.IsNaN(o.Value), "%s %s should be scored", o.CrossSection, util.FormatDate(o.Date))
		}
	}
	assert.Equal(t, 8, count["A"])
	assert.Equal(t, 5, count["B"], "missing inputs produce no rows")
}

func TestThreshClipsScores(t *testing.T) {
	values := []float64{0.1, -0.2, 0.05, 0.3, -0.1, 12, -0.15, 0.2, -9, 0.1}
	p := longPanel("X", map[string][]float64{"A": values, "B": values[:8]})

	n, err := New(WithNeutral("median"), WithMinObs(1), WithThresh(1.5))
	require.NoError(t, err)
	out, err := n.ScorePanel(context.Background(), p, "X", nil)
	require.NoError(t, err)

	clipped := 0
	for _, o := range out {
		if math.IsNaN(o.Value) {
			continue
		}
		assert.LessOrEqual(t, math.Abs(o.Value), 1.5)
		if math.Abs(o.Value) == 1.5 {
			clipped++
		}
	}
	assert.Positive(t, clipped)
	assert.Equal(t, 1.5, find(t, out, "A", 5).Value)
	assert.Equal(t, -1.5, find(t, out, "A", 8).Value)
}

func TestPanWeightBlendsStatistics(t *testing.T) {
	p := longPanel("X", map[string][]float64{
		"A": {1, 3, 2, 5, 4, 6},
		"B": {10, 12, 9, 15, 11, 13},
	})
	const w = 0.3

	n, err := New(WithNeutral("mean"), WithMinObs(0), WithPanWeight(w))
	require.NoError(t, err)
	out, err := n.ScorePanel(context.Background(), p, "X", nil)
	require.NoError(t, err)

	pure, err := New(WithNeutral("mean"), WithMinObs(0), WithPanWeight(0))
	require.NoError(t, err)
	crossOnly, err := pure.ScorePanel(context.Background(), p, "X", nil)
	require.NoError(t, err)

	// row 3: pooled sample {1,3,2,5,10,12,9,15}; A alone {1,3,2,5}
	pooledMean, pooledStd := meanRMS([]float64{1, 3, 2, 5, 10, 12, 9, 15})
	crossMean, crossStd := meanRMS([]float64{1, 3, 2, 5})
	want := (5 - (w*pooledMean + (1-w)*crossMean)) / (w*pooledStd + (1-w)*crossStd)
	assert.InDelta(t, want, find(t, out, "A", 3).Value, 1e-12)
	assert.InDelta(t, (5-crossMean)/crossStd, find(t, crossOnly, "A", 3).Value, 1e-12)
}

func meanRMS(v []float64) (float64, float64) {
	m := 0.0
	for _, x := range v {
		m += x
	}
	m /= float64(len(v))
	ss := 0.0
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return m, math.Sqrt(ss / float64(len(v)))
}

func TestStaticMode(t *testing.T) {
	p := longPanel("X", map[string][]float64{"A": {1, 2, 3}, "B": {-1, -2, -3}})

	n, err := New(WithLevel(stats.Mean), WithSequential(false), WithMinObs(0), WithPostfix("Z"))
	require.NoError(t, err)
	out, err := n.ScorePanel(context.Background(), p, "X", []string{"A"})
	require.NoError(t, err)

	// pooled over the selected cross-sections only: {1,2,3}
	require.Len(t, out, 3)
	assert.Equal(t, "XZ", out[0].Category)
	assert.InDelta(t, 1/math.Sqrt(2.0/3.0), out[2].Value, 1e-12)

	both, err := n.ScorePanel(context.Background(), p, "X", nil)
	require.NoError(t, err)
	assert.InDelta(t, 3/math.Sqrt(14.0/3.0), find(t, both, "A", 2).Value, 1e-12)
	assert.InDelta(t, -3/math.Sqrt(14.0/3.0), find(t, both, "B", 2).Value, 1e-12)
}

func TestConfigValidation(t *testing.T) {
	cases := map[string][]Option{
		"neutral":        {WithNeutral("mode")},
		"thresh":         {WithThresh(0.5)},
		"pan weight hi":  {WithPanWeight(1.5)},
		"pan weight lo":  {WithPanWeight(-0.1)},
		"pan weight nan": {WithPanWeight(math.NaN())},
		"min obs":        {WithMinObs(-1)},
		"level":          {WithLevel(stats.Level(42))},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(opts...)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}

	n, err := New()
	require.NoError(t, err)
	cfg := n.Config()
	assert.Equal(t, stats.Zero, cfg.Neutral)
	assert.Equal(t, DefaultMinObs, cfg.MinObs)
	assert.Equal(t, 1.0, cfg.PanWeight)
	assert.Nil(t, cfg.Thresh)
}

func TestMissingCategoryIsShapeError(t *testing.T) {
	n, err := New()
	require.NoError(t, err)
	_, err = n.ScorePanel(context.Background(), longPanel("X", map[string][]float64{"A": {1}}), "Y", nil)
	assert.ErrorIs(t, err, models.ErrDataShape)
}
