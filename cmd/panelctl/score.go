package main

import (
	"github.com/spf13/cobra"

	"MacroPanel/internal/panel"
	"MacroPanel/internal/zscore"
)

type scoreOptions struct {
	in, out    string
	xcats      []string
	cids       []string
	blacklist  string
	neutral    string
	sequential bool
	minObs     int
	thresh     float64
	panWeight  float64
	postfix    string
}

func newScoreCmd() *cobra.Command {
	o := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Compute Zn-scores for one or more categories",
		Long: `Scores every requested category against its neutral level and the
dispersion around it, blending panel and cross-section estimates.

Examples:
  panelctl score --in panel.csv --xcat XR --neutral mean --min-obs 0
  panelctl score --in panel.csv --xcat XR,CRY --thresh 3 --out scores.xlsx`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input panel (.csv or .xlsx)")
	f.StringVar(&o.out, "out", "", "output file (default: CSV on stdout)")
	f.StringSliceVar(&o.xcats, "xcat", nil, "categories to score")
	f.StringSliceVar(&o.cids, "cids", nil, "cross-sections to keep (default: all)")
	f.StringVar(&o.blacklist, "blacklist-xcat", "", "binary category in the input marking dates to exclude")
	f.StringVar(&o.neutral, "neutral", "zero", "neutral level: mean, median or zero")
	f.BoolVar(&o.sequential, "sequential", true, "use only past data for each date")
	f.IntVar(&o.minObs, "min-obs", 261, "valid observations per cross-section before the first score")
	f.Float64Var(&o.thresh, "thresh", 0, "winsorize scores at this absolute value, 0 disables")
	f.Float64Var(&o.panWeight, "pan-weight", 1, "weight of the panel estimates against cross-section ones")
	f.StringVar(&o.postfix, "postfix", "_ZN", "suffix of the scored category")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("xcat")
	return cmd
}

func (o *scoreOptions) run(cmd *cobra.Command) error {
	opts := []zscore.Option{
		zscore.WithNeutral(o.neutral),
		zscore.WithSequential(o.sequential),
		zscore.WithMinObs(o.minObs),
		zscore.WithPanWeight(o.panWeight),
		zscore.WithPostfix(o.postfix),
	}
	if o.thresh != 0 {
		opts = append(opts, zscore.WithThresh(o.thresh))
	}
	n, err := zscore.New(opts...)
	if err != nil {
		return err
	}

	p, err := readPanel(o.in)
	if err != nil {
		return err
	}
	bl, err := blacklistFrom(p, o.blacklist)
	if err != nil {
		return err
	}
	p, err = panel.Reduce(p, panel.Filter{Categories: o.xcats, CrossSections: o.cids, Blacklist: bl, DropMissing: true})
	if err != nil {
		return err
	}

	out := p[:0:0]
	for _, cat := range o.xcats {
		scored, err := n.ScorePanel(cmd.Context(), p, cat, o.cids)
		if err != nil {
			return err
		}
		out = append(out, scored...)
	}
	return writePanel(cmd.OutOrStdout(), o.out, out)
}
