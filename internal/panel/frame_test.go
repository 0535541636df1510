package panel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

var days = util.BusinessDays(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 29, 0, 0, 0, 0, time.UTC))

func obs(cid, xcat string, day int, v float64) models.Observation {
	return models.Observation{CrossSection: cid, Category: xcat, Date: days[day], Value: v}
}

func TestPivotRoundTrip(t *testing.T) {
	p := models.Panel{
		obs("AUD", "XR", 0, 1.25), obs("AUD", "XR", 1, -0.5), obs("AUD", "XR", 3, 2.125),
		obs("CAD", "XR", 2, 0.1), obs("CAD", "XR", 3, 1e-7),
		obs("GBP", "XR", 4, 3.3333333333),
		obs("AUD", "CRY", 0, 9),
	}

	f, err := Pivot(p, "XR", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"AUD", "CAD", "GBP"}, f.CrossSections)
	assert.Equal(t, 5, f.Rows())
	assert.True(t, math.IsNaN(f.At(0, 1)), "missing entries are NaN, not zero")

	back := f.Long()
	require.Len(t, back, 6)
	want := map[string]float64{}
	for _, o := range p {
		if o.Category == "XR" {
			want[o.CrossSection+util.FormatDate(o.Date)] = o.Value
		}
	}
	for _, o := range back {
		v, ok := want[o.CrossSection+util.FormatDate(o.Date)]
		require.True(t, ok, "unexpected row %v", o)
		assert.InDelta(t, v, o.Value, 1e-9)
		assert.Equal(t, "XR", o.Category)
	}
}

func TestPivotSelectsCrossSections(t *testing.T) {
	p := models.Panel{obs("AUD", "XR", 0, 1), obs("CAD", "XR", 1, 2)}

	f, err := Pivot(p, "XR", []string{"CAD", "NZD"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CAD"}, f.CrossSections)
	assert.Equal(t, []time.Time{days[1]}, f.Dates)
}

func TestPivotShapeErrors(t *testing.T) {
	saturday := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)

	cases := map[string]models.Panel{
		"absent category": {obs("AUD", "CRY", 0, 1)},
		"weekend":         {{CrossSection: "AUD", Category: "XR", Date: saturday, Value: 1}},
		"duplicate":       {obs("AUD", "XR", 0, 1), obs("AUD", "XR", 0, 2)},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Pivot(p, "XR", nil)
			assert.ErrorIs(t, err, models.ErrDataShape)
		})
	}

	_, err := Pivot(models.Panel{obs("AUD", "XR", 0, 1)}, "XR", []string{"JPY"})
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestFrameHeadCopies(t *testing.T) {
	f, err := NewFrame("XR", days[:4], []string{"A"})
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		f.Set(i, 0, float64(i))
	}

	h := f.Head(2)
	require.Equal(t, 2, h.Rows())
	h.Set(0, 0, 100)
	assert.Equal(t, 0.0, f.At(0, 0))
	assert.Equal(t, []float64{0, 1, 2, 3}, f.Column(0))
	assert.Equal(t, 4, f.Count())

	j, ok := f.Index("A")
	assert.True(t, ok)
	assert.Equal(t, 0, j)
}

func TestNewFrameRejectsUnorderedDates(t *testing.T) {
	_, err := NewFrame("XR", []time.Time{days[2], days[1]}, []string{"A"})
	assert.ErrorIs(t, err, models.ErrDataShape)

	_, err = NewFrame("XR", nil, []string{"A"})
	assert.ErrorIs(t, err, models.ErrDataShape)
}
