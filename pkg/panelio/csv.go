package panelio

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

// Column names of the long panel format.
const (
	ColCrossSection = "cid"
	ColCategory     = "xcat"
	ColDate         = "real_date"
	ColValue        = "value"
)

// ReadCSV loads a long panel with columns cid, xcat, real_date, value.
// Extra columns are ignored; blank, NA and NaN values become missing.
func ReadCSV(r io.Reader) (models.Panel, error) {
	df := dataframe.ReadCSV(r,
		dataframe.WithTypes(map[string]series.Type{
			ColCrossSection: series.String,
			ColCategory:     series.String,
			ColDate:         series.String,
			ColValue:        series.Float,
		}),
		dataframe.NaNValues([]string{"", "NA", "NaN", "nan", "<nil>"}),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("read panel csv: %w", df.Err)
	}

	have := make(map[string]bool)
	for _, n := range df.Names() {
		have[n] = true
	}
	for _, col := range []string{ColCrossSection, ColCategory, ColDate, ColValue} {
		if !have[col] {
			return nil, fmt.Errorf("%w: panel csv misses column %q", models.ErrDataShape, col)
		}
	}

	cids := df.Col(ColCrossSection).Records()
	cats := df.Col(ColCategory).Records()
	dates := df.Col(ColDate).Records()
	values := df.Col(ColValue).Float()

	out := make(models.Panel, 0, df.Nrow())
	for i := 0; i < df.Nrow(); i++ {
		d, err := util.ParseDate(dates[i])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", models.ErrDataShape, i+1, err)
		}
		out = append(out, models.Observation{CrossSection: cids[i], Category: cats[i], Date: d, Value: values[i]})
	}
	return out, nil
}

// WriteCSV writes a long panel; missing values are written as NaN.
func WriteCSV(w io.Writer, p models.Panel) error {
	cids := make([]string, len(p))
	cats := make([]string, len(p))
	dates := make([]string, len(p))
	values := make([]string, len(p))
	for i, o := range p {
		cids[i], cats[i], dates[i], values[i] = o.CrossSection, o.Category, util.FormatDate(o.Date), formatValue(o.Value)
	}

	df := dataframe.New(
		series.New(cids, series.String, ColCrossSection),
		series.New(cats, series.String, ColCategory),
		series.New(dates, series.String, ColDate),
		series.New(values, series.String, ColValue),
	)
	if df.Err != nil {
		return fmt.Errorf("build panel frame: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("write panel csv: %w", err)
	}
	return nil
}

// formatValue keeps full precision; the float series would print six decimals.
func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseValue(s string) (float64, error) {
	switch strings.TrimSpace(s) {
	case "", "NA", "NaN", "nan":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("parse value %q: %w", s, err)
	}
	return v, nil
}

func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
