package panel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

// Filter narrows a panel before analysis. Empty lists and zero dates mean no restriction.
type Filter struct {
	Categories    []string
	CrossSections []string
	Window        models.DateRange
	Blacklist     models.Blacklist
	// Intersect keeps only cross-sections that carry every requested category.
	Intersect bool
	// DropMissing removes observations without a value.
	DropMissing bool
}

// Reduce applies f to p and returns a new panel; p is not modified.
func Reduce(p models.Panel, f Filter) (models.Panel, error) {
	cats := set(f.Categories)
	cids := set(f.CrossSections)

	out := make(models.Panel, 0, len(p))
	for _, o := range p {
		if len(cats) > 0 && !cats[o.Category] {
			continue
		}
		if len(cids) > 0 && !cids[o.CrossSection] {
			continue
		}
		if !f.Window.Contains(o.Date) {
			continue
		}
		if f.DropMissing && o.Missing() {
			continue
		}
		if len(f.Blacklist) > 0 && f.Blacklist.Excludes(o.CrossSection, o.Date) {
			continue
		}
		out = append(out, o)
	}

	if f.Intersect && len(f.Categories) > 1 {
		out = intersect(out, f.Categories)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no observations left after filtering (categories %v, cross-sections %v)",
			models.ErrDataShape, f.Categories, f.CrossSections)
	}
	return out, nil
}

func intersect(p models.Panel, categories []string) models.Panel {
	has := make(map[string]map[string]bool)
	for _, o := range p {
		if has[o.CrossSection] == nil {
			has[o.CrossSection] = make(map[string]bool)
		}
		has[o.CrossSection][o.Category] = true
	}

	keep := make(map[string]bool, len(has))
	for cid, cats := range has {
		all := true
		for _, c := range categories {
			if !cats[c] {
				all = false
				break
			}
		}
		keep[cid] = all
	}

	out := p[:0:0]
	for _, o := range p {
		if keep[o.CrossSection] {
			out = append(out, o)
		}
	}
	return out
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

// MakeBlacklist turns a binary category (1 = exclude) into blacklist periods.
// Each maximal run of consecutive observations equal to one becomes a period.
// A cross-section with several runs gets keys CID_1, CID_2, ... in date order.
func MakeBlacklist(p models.Panel, category string, cids []string, window models.DateRange) (models.Blacklist, error) {
	reduced, err := Reduce(p, Filter{
		Categories:    []string{category},
		CrossSections: cids,
		Window:        window,
		DropMissing:   true,
	})
	if err != nil {
		return nil, err
	}

	series := make(map[string][]models.Observation)
	for _, o := range reduced {
		if o.Value != 0 && o.Value != 1 {
			return nil, fmt.Errorf("%w: blacklist category %q must be binary, %s has %v on %s",
				models.ErrDataShape, category, o.CrossSection, o.Value, util.FormatDate(o.Date))
		}
		series[o.CrossSection] = append(series[o.CrossSection], o)
	}

	out := make(models.Blacklist)
	for cid, obs := range series {
		sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
		runs := onesRuns(obs)
		switch len(runs) {
		case 0:
		case 1:
			out[cid] = runs[0]
		default:
			for i, r := range runs {
				out[fmt.Sprintf("%s_%d", cid, i+1)] = r
			}
		}
	}
	return out, nil
}

func onesRuns(obs []models.Observation) []models.DateRange {
	var runs []models.DateRange
	var start, last time.Time
	open := false
	for _, o := range obs {
		on := !math.IsNaN(o.Value) && o.Value == 1
		switch {
		case on && !open:
			start, last, open = o.Date, o.Date, true
		case on:
			last = o.Date
		case open:
			runs = append(runs, models.DateRange{Start: start, End: last})
			open = false
		}
	}
	if open {
		runs = append(runs, models.DateRange{Start: start, End: last})
	}
	return runs
}
