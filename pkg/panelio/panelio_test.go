package panelio

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MacroPanel/internal/domain/models"
)

func samplePanel() models.Panel {
	d := func(day int) time.Time { return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC) }
	return models.Panel{
		{CrossSection: "AUD", Category: "XR", Date: d(2), Value: 0.123456789012},
		{CrossSection: "AUD", Category: "XR", Date: d(3), Value: math.NaN()},
		{CrossSection: "CAD", Category: "XR", Date: d(2), Value: -42},
	}
}

func assertSamePanel(t *testing.T, want, got models.Panel) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].CrossSection, got[i].CrossSection)
		assert.Equal(t, want[i].Category, got[i].Category)
		assert.True(t, want[i].Date.Equal(got[i].Date), "row %d date", i)
		if math.IsNaN(want[i].Value) {
			assert.True(t, math.IsNaN(got[i].Value), "row %d should be missing", i)
			continue
		}
		assert.InDelta(t, want[i].Value, got[i].Value, 1e-9)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, samplePanel()))
	assert.True(t, strings.HasPrefix(buf.String(), "cid,xcat,real_date,value"))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assertSamePanel(t, samplePanel(), got)
}

func TestReadCSVMissingColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("cid,real_date,value\nAUD,2024-01-02,1\n"))
	assert.ErrorIs(t, err, models.ErrDataShape)
}

func TestReadCSVBlankValues(t *testing.T) {
	got, err := ReadCSV(strings.NewReader("cid,xcat,real_date,value\nAUD,XR,2024-01-02,\nAUD,XR,2024-01-03,1.5\n"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, math.IsNaN(got[0].Value))
	assert.Equal(t, 1.5, got[1].Value)
}

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, samplePanel()))

	got, err := ReadXLSX(&buf)
	require.NoError(t, err)
	assertSamePanel(t, samplePanel(), got)
}
