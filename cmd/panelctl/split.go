package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"MacroPanel/internal/panel"
	"MacroPanel/internal/split"
	"MacroPanel/pkg/util"
)

type splitOptions struct {
	in             string
	xcat           string
	cids           []string
	kfold          bool
	nSplits        int
	trainIntervals int
	testSize       int
	minPeriods     int
	minCids        int
	maxPeriods     int
}

func newSplitCmd() *cobra.Command {
	o := &splitOptions{}
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Print train/test folds over a category's panel",
		Long: `Builds time-series validation folds over the non-missing rows of one
category, sorted by cross-section and date.

Examples:
  panelctl split --in panel.csv --xcat XR --n-splits 4 --test-size 5
  panelctl split --in panel.csv --xcat XR --train-intervals 5 --test-size 5 --min-periods 10 --min-cids 2
  panelctl split --in panel.csv --xcat XR --kfold --n-splits 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input panel (.csv or .xlsx)")
	f.StringVar(&o.xcat, "xcat", "", "category to split")
	f.StringSliceVar(&o.cids, "cids", nil, "cross-sections to keep (default: all)")
	f.BoolVar(&o.kfold, "kfold", false, "contiguous date folds instead of forward-looking ones")
	f.IntVar(&o.nSplits, "n-splits", 0, "number of folds in fixed-splits or k-fold mode")
	f.IntVar(&o.trainIntervals, "train-intervals", 0, "dates added to the training set per fold (expanding mode)")
	f.IntVar(&o.testSize, "test-size", 1, "dates in every test set")
	f.IntVar(&o.minPeriods, "min-periods", 500, "dates in the first expanding training set")
	f.IntVar(&o.minCids, "min-cids", 4, "cross-sections required before training starts")
	f.IntVar(&o.maxPeriods, "max-periods", 0, "keep only this many recent training dates, 0 keeps all")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("xcat")
	return cmd
}

func (o *splitOptions) splitter() (split.Splitter, error) {
	if o.kfold {
		return split.NewKFold(o.nSplits)
	}
	return split.NewTimeSeriesSplit(split.Config{
		NSplits:        o.nSplits,
		TrainIntervals: o.trainIntervals,
		TestSize:       o.testSize,
		MinPeriods:     o.minPeriods,
		MinCids:        o.minCids,
		MaxPeriods:     o.maxPeriods,
	})
}

func (o *splitOptions) run(cmd *cobra.Command) error {
	s, err := o.splitter()
	if err != nil {
		return err
	}
	p, err := readPanel(o.in)
	if err != nil {
		return err
	}
	p, err = panel.Reduce(p, panel.Filter{Categories: []string{o.xcat}, CrossSections: o.cids, DropMissing: true})
	if err != nil {
		return err
	}
	p.Sort()

	index := split.Keys(p)
	folds, err := s.Split(index)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FOLD\tTRAIN ROWS\tTRAIN FROM\tTRAIN TO\tTEST ROWS\tTEST FROM\tTEST TO")
	for i, f := range folds {
		trainFrom, trainTo := dateSpan(index, f.Train)
		testFrom, testTo := dateSpan(index, f.Test)
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%s\t%s\n", i, len(f.Train), trainFrom, trainTo, len(f.Test), testFrom, testTo)
	}
	return w.Flush()
}

func dateSpan(index []split.Key, rows []int) (string, string) {
	if len(rows) == 0 {
		return "-", "-"
	}
	lo, hi := index[rows[0]].Date, index[rows[0]].Date
	for _, r := range rows[1:] {
		if d := index[r].Date; d.Before(lo) {
			lo = d
		} else if d.After(hi) {
			hi = d
		}
	}
	return util.FormatDate(lo), util.FormatDate(hi)
}
