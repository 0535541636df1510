package panel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

// Frame is the wide view of one category: rows are ascending business days,
// columns are cross-sections, NaN marks a missing observation.
type Frame struct {
	Category      string
	Dates         []time.Time
	CrossSections []string

	data *mat.Dense
}

// NewFrame allocates an all-missing frame.
func NewFrame(category string, dates []time.Time, cids []string) (*Frame, error) {
	if len(dates) == 0 || len(cids) == 0 {
		return nil, fmt.Errorf("%w: frame for %q needs at least one date and one cross-section", models.ErrDataShape, category)
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("%w: frame dates must be strictly increasing at %s", models.ErrDataShape, util.FormatDate(dates[i]))
		}
	}

	buf := make([]float64, len(dates)*len(cids))
	for i := range buf {
		buf[i] = math.NaN()
	}
	return &Frame{
		Category:      category,
		Dates:         append([]time.Time(nil), dates...),
		CrossSections: append([]string(nil), cids...),
		data:          mat.NewDense(len(dates), len(cids), buf),
	}, nil
}

func (f *Frame) Rows() int { return len(f.Dates) }

func (f *Frame) Cols() int { return len(f.CrossSections) }

func (f *Frame) At(t, j int) float64 { return f.data.At(t, j) }

func (f *Frame) Set(t, j int, v float64) { f.data.Set(t, j, v) }

// Row returns a copy of row t.
func (f *Frame) Row(t int) []float64 { return mat.Row(nil, t, f.data) }

// Column returns a copy of column j.
func (f *Frame) Column(j int) []float64 { return mat.Col(nil, j, f.data) }

// Index returns the column of a cross-section.
func (f *Frame) Index(cid string) (int, bool) {
	for j, c := range f.CrossSections {
		if c == cid {
			return j, true
		}
	}
	return 0, false
}

// Head returns a copy limited to the first n rows, n clamped to [1, Rows].
func (f *Frame) Head(n int) *Frame {
	if n > f.Rows() {
		n = f.Rows()
	}
	if n < 1 {
		n = 1
	}
	out := &Frame{
		Category:      f.Category,
		Dates:         append([]time.Time(nil), f.Dates[:n]...),
		CrossSections: append([]string(nil), f.CrossSections...),
	}
	out.data = mat.DenseCopyOf(f.data.Slice(0, n, 0, f.Cols()))
	return out
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame { return f.Head(f.Rows()) }

// Count returns the number of non-missing entries.
func (f *Frame) Count() int {
	n := 0
	r, c := f.data.Dims()
	for t := 0; t < r; t++ {
		for j := 0; j < c; j++ {
			if !math.IsNaN(f.data.At(t, j)) {
				n++
			}
		}
	}
	return n
}

// Long converts the frame back to observations, dropping missing entries.
// Output is ordered by cross-section, then date.
func (f *Frame) Long() models.Panel {
	out := make(models.Panel, 0, f.Count())
	for j, cid := range f.CrossSections {
		for t, d := range f.Dates {
			v := f.data.At(t, j)
			if math.IsNaN(v) {
				continue
			}
			out = append(out, models.Observation{CrossSection: cid, Category: f.Category, Date: d, Value: v})
		}
	}
	return out
}

// Pivot builds the wide frame of category from a long panel. When cids is
// non-empty only those cross-sections are kept; requested cross-sections
// absent from the panel are skipped. Rows are the union of dates observed for
// the kept cross-sections.
func Pivot(p models.Panel, category string, cids []string) (*Frame, error) {
	want := make(map[string]bool, len(cids))
	for _, c := range cids {
		want[c] = true
	}

	type key struct {
		cid string
		day time.Time
	}
	values := make(map[key]float64)
	dateSet := make(map[time.Time]struct{})
	cidSet := make(map[string]struct{})
	seenCategory := false

	for _, o := range p {
		if o.Category != category {
			continue
		}
		seenCategory = true
		if len(want) > 0 && !want[o.CrossSection] {
			continue
		}
		day := util.Day(o.Date)
		if !util.IsBusinessDay(day) {
			return nil, fmt.Errorf("%w: %s/%s has a weekend date %s", models.ErrDataShape, o.CrossSection, category, util.FormatDate(day))
		}
		k := key{o.CrossSection, day}
		if _, dup := values[k]; dup {
			return nil, fmt.Errorf("%w: duplicate observation %s/%s on %s", models.ErrDataShape, o.CrossSection, category, util.FormatDate(day))
		}
		values[k] = o.Value
		dateSet[day] = struct{}{}
		cidSet[o.CrossSection] = struct{}{}
	}

	if !seenCategory {
		return nil, fmt.Errorf("%w: category %q absent from panel", models.ErrDataShape, category)
	}
	if len(cidSet) == 0 {
		return nil, fmt.Errorf("%w: none of cross-sections %v have %q data", models.ErrDataShape, cids, category)
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	columns := make([]string, 0, len(cidSet))
	for c := range cidSet {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	f, err := NewFrame(category, dates, columns)
	if err != nil {
		return nil, err
	}
	row := make(map[time.Time]int, len(dates))
	for t, d := range dates {
		row[d] = t
	}
	col := make(map[string]int, len(columns))
	for j, c := range columns {
		col[c] = j
	}
	for k, v := range values {
		f.Set(row[k.day], col[k.cid], v)
	}
	return f, nil
}
