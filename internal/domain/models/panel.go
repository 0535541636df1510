package models

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Observation is one value of a long-format panel. Value is NaN when missing.
type Observation struct {
	CrossSection string
	Category     string
	Date         time.Time
	Value        float64
}

// Missing reports whether the observation carries no value.
func (o Observation) Missing() bool { return math.IsNaN(o.Value) }

// Panel is a long-format collection of observations in no particular order.
type Panel []Observation

// Categories returns the sorted distinct categories.
func (p Panel) Categories() []string {
	return distinct(p, func(o Observation) string { return o.Category })
}

// CrossSections returns the sorted distinct cross-sections.
func (p Panel) CrossSections() []string {
	return distinct(p, func(o Observation) string { return o.CrossSection })
}

// Dates returns the sorted distinct dates.
func (p Panel) Dates() []time.Time {
	seen := make(map[time.Time]struct{}, len(p))
	out := make([]time.Time, 0)
	for _, o := range p {
		if _, ok := seen[o.Date]; ok {
			continue
		}
		seen[o.Date] = struct{}{}
		out = append(out, o.Date)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Sort orders the panel by category, cross-section and date in place.
func (p Panel) Sort() {
	sort.SliceStable(p, func(i, j int) bool {
		a, b := p[i], p[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.CrossSection != b.CrossSection {
			return a.CrossSection < b.CrossSection
		}
		return a.Date.Before(b.Date)
	})
}

func distinct(p Panel, key func(Observation) string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, o := range p {
		k := key(o)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DateRange is a closed interval of dates. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// Blacklist maps a cross-section to a period excluded from analysis. A
// cross-section with several periods is keyed CID_1, CID_2, ...
type Blacklist map[string]DateRange

// Excludes reports whether cid is blacklisted on date d.
func (b Blacklist) Excludes(cid string, d time.Time) bool {
	for key, r := range b {
		if BlacklistBase(key) == cid && r.Contains(d) {
			return true
		}
	}
	return false
}

// BlacklistBase strips a numeric _n suffix from a blacklist key.
func BlacklistBase(key string) string {
	i := strings.LastIndexByte(key, '_')
	if i <= 0 || i == len(key)-1 {
		return key
	}
	if _, err := strconv.Atoi(key[i+1:]); err != nil {
		return key
	}
	return key[:i]
}
