package split

import (
	"fmt"
	"sort"
	"time"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

// Key identifies one row of a long panel.
type Key struct {
	CrossSection string
	Date         time.Time
}

// Keys extracts row keys from a panel, keeping row order.
func Keys(p models.Panel) []Key {
	out := make([]Key, len(p))
	for i, o := range p {
		out[i] = Key{CrossSection: o.CrossSection, Date: util.Day(o.Date)}
	}
	return out
}

// Fold is one train/test partition of row positions, both ascending.
type Fold struct {
	Train []int
	Test  []int
}

// Splitter partitions a panel's rows into folds.
type Splitter interface {
	Split(index []Key) ([]Fold, error)
}

// timeline groups row positions by unique date.
type timeline struct {
	dates []time.Time
	rows  [][]int
	cids  []int // distinct cross-sections per date
}

func newTimeline(index []Key) (*timeline, error) {
	if len(index) == 0 {
		return nil, fmt.Errorf("%w: cannot split an empty panel", models.ErrDataShape)
	}

	byDate := make(map[time.Time][]int)
	for i, k := range index {
		byDate[k.Date] = append(byDate[k.Date], i)
	}

	tl := &timeline{dates: make([]time.Time, 0, len(byDate))}
	for d := range byDate {
		tl.dates = append(tl.dates, d)
	}
	sort.Slice(tl.dates, func(i, j int) bool { return tl.dates[i].Before(tl.dates[j]) })

	tl.rows = make([][]int, len(tl.dates))
	tl.cids = make([]int, len(tl.dates))
	for t, d := range tl.dates {
		rows := byDate[d]
		sort.Ints(rows)
		tl.rows[t] = rows

		seen := make(map[string]struct{}, len(rows))
		for _, r := range rows {
			seen[index[r].CrossSection] = struct{}{}
		}
		tl.cids[t] = len(seen)
	}
	return tl, nil
}

func (tl *timeline) len() int { return len(tl.dates) }

// collect returns the rows dated within unique-date positions [from, to].
func (tl *timeline) collect(from, to int) []int {
	var out []int
	for t := from; t <= to; t++ {
		out = append(out, tl.rows[t]...)
	}
	sort.Ints(out)
	return out
}

// fold builds a fold with training dates [trainFrom, trainTo] and test dates (trainTo, testTo].
func (tl *timeline) fold(trainFrom, trainTo, testTo int) Fold {
	return Fold{Train: tl.collect(trainFrom, trainTo), Test: tl.collect(trainTo+1, testTo)}
}

// chunks cuts n items into k contiguous pieces whose sizes differ by at most
// one, larger pieces first. It returns [start, end] positions.
func chunks(n, k int) [][2]int {
	out := make([][2]int, 0, k)
	base, extra := n/k, n%k
	start := 0
	for i := 0; i < k; i++ {
		size := base
		if i < extra {
			size++
		}
		out = append(out, [2]int{start, start + size - 1})
		start += size
	}
	return out
}
