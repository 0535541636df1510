package composite

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/internal/domain/models"
)

var (
	d1 = time.Date(2020, 1, 6, 0, 0, 0, 0, time.UTC)
	d2 = time.Date(2020, 1, 7, 0, 0, 0, 0, time.UTC)
	d3 = time.Date(2020, 1, 8, 0, 0, 0, 0, time.UTC)
)

func obs(cid, xcat string, d time.Time, v float64) models.Observation {
	return models.Observation{CrossSection: cid, Category: xcat, Date: d, Value: v}
}

// twoCategories has AUD complete on d1, only CRY on d2 and only XR on d3.
func twoCategories() models.Panel {
	return models.Panel{
		obs("AUD", "XR", d1, 2),
		obs("AUD", "CRY", d1, 4),
		obs("AUD", "CRY", d2, 8),
		obs("AUD", "XR", d3, 6),
		obs("CAD", "XR", d1, 1),
		obs("CAD", "CRY", d1, math.NaN()),
		obs("CAD", "GDP", d1, 100),
	}
}

func values(p models.Panel) []float64 {
	out := make([]float64, len(p))
	for i, o := range p {
		out[i] = o.Value
	}
	return out
}

func TestPlanCoercesWeightsAndSigns(t *testing.T) {
	pl, err := NewPlan(Config{
		Categories: []string{"XR", "CRY"},
		Weights:    []float64{1, 3},
		Signs:      []float64{2, -0.5},
	})
	require.NoError(t, err)

	w := pl.Weights()
	assert.InDelta(t, 0.25, w[0], 1e-12)
	assert.InDelta(t, -0.75, w[1], 1e-12)
	assert.Len(t, pl.Warnings(), 2)

	pl, err = NewPlan(Config{Categories: []string{"XR", "CRY", "GDP"}})
	require.NoError(t, err)
	for _, v := range pl.Weights() {
		assert.InDelta(t, 1.0/3, v, 1e-12)
	}
	assert.Empty(t, pl.Warnings())
}

func TestPlanRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no categories", Config{}},
		{"duplicate category", Config{Categories: []string{"XR", "XR"}}},
		{"weight count", Config{Categories: []string{"XR", "CRY"}, Weights: []float64{1}}},
		{"sign count", Config{Categories: []string{"XR"}, Signs: []float64{1, 1}}},
		{"negative weight", Config{Categories: []string{"XR", "CRY"}, Weights: []float64{-1, 2}}},
		{"zero weights", Config{Categories: []string{"XR", "CRY"}, Weights: []float64{0, 0}}},
		{"zero sign", Config{Categories: []string{"XR"}, Signs: []float64{0}}},
		{"infinite fill", Config{Categories: []string{"XR"}, Missing: Fill, FillValue: math.Inf(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.cfg)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
}

func TestLinearReweightsAvailableComponents(t *testing.T) {
	out, err := Linear(twoCategories(), Config{
		Categories: []string{"XR", "CRY"},
		Weights:    []float64{1, 3},
		Category:   "MIX",
	})
	require.NoError(t, err)
	require.Len(t, out, 4)

	for _, o := range out {
		assert.Equal(t, "MIX", o.Category)
	}
	assert.Equal(t, "AUD", out[0].CrossSection)
	assert.Equal(t, d1, out[0].Date)
	// AUD: 0.25*2 + 0.75*4, then CRY alone, then XR alone; CAD keeps XR alone
	assert.InDeltaSlice(t, []float64{3.5, 8, 6, 1}, values(out), 1e-12)
	assert.Equal(t, "CAD", out[3].CrossSection)
}

func TestLinearSignsFlipComponents(t *testing.T) {
	out, err := Linear(twoCategories(), Config{
		Categories:    []string{"XR", "CRY"},
		Signs:         []float64{1, -1},
		CrossSections: []string{"AUD"},
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, DefaultCategory, out[0].Category)
	// (2 - 4) / 2, -CRY alone, XR alone
	assert.InDeltaSlice(t, []float64{-1, -8, 6}, values(out), 1e-12)
}

func TestLinearCompleteAndMissingPolicies(t *testing.T) {
	base := Config{Categories: []string{"XR", "CRY"}, Weights: []float64{1, 3}}

	complete := base
	complete.Complete = true
	out, err := Linear(twoCategories(), complete)
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.InDelta(t, 3.5, out[0].Value, 1e-12)
	assert.True(t, out[1].Missing())
	assert.True(t, out[2].Missing())
	assert.True(t, out[3].Missing())

	drop := base
	drop.Missing = Drop
	out, err = Linear(twoCategories(), drop)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, d1, out[0].Date)

	fill := base
	fill.Missing = Fill
	fill.Complete = true
	out, err = Linear(twoCategories(), fill)
	require.NoError(t, err)
	// missing components count as zero before the completeness check
	assert.InDeltaSlice(t, []float64{3.5, 6, 1.5, 0.25}, values(out), 1e-12)
}

func TestLinearWindowAndBlacklist(t *testing.T) {
	out, err := Linear(twoCategories(), Config{
		Categories: []string{"XR", "CRY"},
		Window:     models.DateRange{Start: d2},
		Blacklist:  models.Blacklist{"AUD": {Start: d3, End: d3}},
	})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, d2, out[0].Date)

	_, err = Linear(twoCategories(), Config{Categories: []string{"XR"}, CrossSections: []string{"NZD"}})
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestLinearRejectsDuplicates(t *testing.T) {
	p := append(twoCategories(), obs("AUD", "XR", d1, 9))
	_, err := Linear(p, Config{Categories: []string{"XR", "CRY"}})
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestParseMissingPolicy(t *testing.T) {
	for in, want := range map[string]MissingPolicy{"": Reweight, "reweight": Reweight, "drop": Drop, "fill": Fill} {
		got, err := ParseMissingPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseMissingPolicy("zero")
	assert.ErrorIs(t, err, models.ErrConfig)
}
