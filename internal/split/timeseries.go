package split

import (
	"fmt"

	"MacroPanel/internal/domain/models"
	"MacroPanel/pkg/util"
)

// Config selects between fixed-splits mode (NSplits) and expanding-window
// mode (TrainIntervals). Zero means unset.
type Config struct {
	NSplits        int
	TrainIntervals int
	TestSize       int
	// MinPeriods is the length of the first expanding training window in unique dates.
	MinPeriods int
	// MinCids is the number of cross-sections that must report on a date before training starts.
	MinCids int
	// MaxPeriods, when set, keeps only the most recent dates of every training window.
	MaxPeriods int
}

func (c Config) Expanding() bool { return c.TrainIntervals > 0 }

func (c Config) Validate() error {
	if c.NSplits < 0 || c.TrainIntervals < 0 {
		return fmt.Errorf("%w: n_splits and train_intervals must be positive", models.ErrConfig)
	}
	if (c.NSplits > 0) == (c.TrainIntervals > 0) {
		return fmt.Errorf("%w: exactly one of n_splits or train_intervals must be set", models.ErrConfig)
	}
	if c.TestSize <= 0 {
		return fmt.Errorf("%w: test_size must be a positive integer, got %d", models.ErrConfig, c.TestSize)
	}
	if c.MaxPeriods < 0 {
		return fmt.Errorf("%w: max_periods must be >= 0, got %d", models.ErrConfig, c.MaxPeriods)
	}
	if c.Expanding() {
		if c.MinPeriods <= 0 {
			return fmt.Errorf("%w: min_periods must be positive, got %d", models.ErrConfig, c.MinPeriods)
		}
		if c.MinCids <= 0 {
			return fmt.Errorf("%w: min_cids must be positive, got %d", models.ErrConfig, c.MinCids)
		}
	}
	return nil
}

// TimeSeriesSplit produces chronologically ordered folds: the test window
// always follows its training window.
type TimeSeriesSplit struct {
	cfg Config
}

var _ Splitter = (*TimeSeriesSplit)(nil)

func NewTimeSeriesSplit(cfg Config) (*TimeSeriesSplit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TimeSeriesSplit{cfg: cfg}, nil
}

func (s *TimeSeriesSplit) Config() Config { return s.cfg }

func (s *TimeSeriesSplit) Split(index []Key) ([]Fold, error) {
	tl, err := newTimeline(index)
	if err != nil {
		return nil, err
	}
	if s.cfg.Expanding() {
		return s.expanding(tl)
	}
	return s.fixed(tl)
}

// fixed cuts all dates except the final TestSize into NSplits chunks. Each
// chunk trains and the TestSize dates after it test, clamped to the last date.
func (s *TimeSeriesSplit) fixed(tl *timeline) ([]Fold, error) {
	n := tl.len()
	usable := n - s.cfg.TestSize
	if usable < s.cfg.NSplits {
		return nil, fmt.Errorf("%w: %d unique dates cannot hold %d splits plus a test window of %d",
			models.ErrConfig, n, s.cfg.NSplits, s.cfg.TestSize)
	}

	folds := make([]Fold, 0, s.cfg.NSplits)
	for _, c := range chunks(usable, s.cfg.NSplits) {
		from, to := c[0], c[1]
		if s.cfg.MaxPeriods > 0 && to-from+1 > s.cfg.MaxPeriods {
			from = to - s.cfg.MaxPeriods + 1
		}
		testTo := min(to+s.cfg.TestSize, n-1)
		if testTo <= to {
			continue
		}
		folds = append(folds, tl.fold(from, to, testTo))
	}
	return folds, nil
}

// expanding starts training on the first date with MinCids cross-sections,
// grows the window by TrainIntervals dates per fold and appends a residual
// fold that tests the final TestSize dates when the regular ones stop short.
func (s *TimeSeriesSplit) expanding(tl *timeline) ([]Fold, error) {
	n := tl.len()
	if s.cfg.MinPeriods > n {
		return nil, fmt.Errorf("%w: min_periods %d exceeds the %d unique dates available",
			models.ErrConfig, s.cfg.MinPeriods, n)
	}

	eligible := -1
	for t, c := range tl.cids {
		if c >= s.cfg.MinCids {
			eligible = t
			break
		}
	}
	if eligible < 0 {
		return nil, fmt.Errorf("%w: no date has %d cross-sections reporting", models.ErrDataShape, s.cfg.MinCids)
	}

	end := eligible + s.cfg.MinPeriods - 1
	if end >= n-1 {
		return nil, fmt.Errorf("%w: %d dates from %s leave no room for a test window",
			models.ErrConfig, s.cfg.MinPeriods, util.FormatDate(tl.dates[eligible]))
	}

	start := func(end int) int {
		if s.cfg.MaxPeriods > 0 {
			return max(eligible, end-s.cfg.MaxPeriods+1)
		}
		return eligible
	}

	folds := []Fold{tl.fold(start(end), end, min(end+s.cfg.TestSize, n-1))}
	for next := end + s.cfg.TrainIntervals; next+s.cfg.TestSize <= n-1; next += s.cfg.TrainIntervals {
		folds = append(folds, tl.fold(start(next), next, next+s.cfg.TestSize))
		end = next
	}

	if tail := n - s.cfg.TestSize - 1; tail > end {
		folds = append(folds, tl.fold(start(tail), tail, n-1))
	}
	return folds, nil
}
