package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/hedge"
	"MacroPanel/pkg/util"
)

type hedgeOptions struct {
	in, out    string
	xcat       string
	cids       []string
	benchmark  string
	start, end string
	blacklist  string
	refreq     string
	minObs     int
	lookback   int
	inSample   bool
	estimates  bool
}

func newHedgeCmd() *cobra.Command {
	o := &hedgeOptions{}
	cmd := &cobra.Command{
		Use:   "hedge",
		Short: "Estimate hedge ratios against a benchmark return",
		Long: `Regresses each cross-section's return on the benchmark return over aligned
dates, re-estimating at the end of every week, month or quarter. By default a
ratio applies to the period after its estimation sample.

Examples:
  panelctl hedge --in returns.csv --xcat EQXR --hedge-return USD_EQXR
  panelctl hedge --in returns.csv --xcat FXXR --hedge-return USD_EQXR --refreq q --estimates`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input panel (.csv or .xlsx)")
	f.StringVar(&o.out, "out", "", "output file for daily ratios (default: CSV on stdout)")
	f.StringVar(&o.xcat, "xcat", "", "return category to hedge")
	f.StringSliceVar(&o.cids, "cids", nil, "cross-sections to hedge (default: all)")
	f.StringVar(&o.benchmark, "hedge-return", "", "benchmark return ticker, CID_XCAT")
	f.StringVar(&o.start, "start", "", "first date used")
	f.StringVar(&o.end, "end", "", "last date used")
	f.StringVar(&o.blacklist, "blacklist-xcat", "", "binary category in the input marking dates to exclude")
	f.StringVar(&o.refreq, "refreq", "m", "re-estimation frequency: w, m or q")
	f.IntVar(&o.minObs, "min-obs", hedge.DefaultMinObs, "aligned observations needed before the first estimate")
	f.IntVar(&o.lookback, "lookback", 0, "latest aligned observations per regression, 0 uses all history")
	f.BoolVar(&o.inSample, "in-sample", false, "apply each ratio to its own estimation period")
	f.BoolVar(&o.estimates, "estimates", false, "print one row per estimate instead of daily ratios")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("xcat")
	_ = cmd.MarkFlagRequired("hedge-return")
	return cmd
}

func (o *hedgeOptions) run(cmd *cobra.Command) error {
	freq, err := hedge.ParseFrequency(o.refreq)
	if err != nil {
		return err
	}
	w, err := models.DateRangeDTO{Start: o.start, End: o.end}.ToModel()
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

	res, err := hedge.Ratios(context.Background(), p, hedge.Config{
		Category:      o.xcat,
		CrossSections: o.cids,
		Benchmark:     o.benchmark,
		Window:        w,
		Blacklist:     bl,
		Frequency:     freq,
		MinObs:        o.minObs,
		Lookback:      o.lookback,
		InSample:      o.inSample,
	})
	if err != nil {
		return err
	}
	if !o.estimates {
		return writePanel(cmd.OutOrStdout(), o.out, res.Ratios)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CID\tESTIMATED\tOBS\tINTERCEPT\tCOEFFICIENT")
	for _, e := range res.Estimates {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.6f\t%.6f\n", e.CrossSection, util.FormatDate(e.Estimated), e.Observations, e.Intercept, e.Coefficient)
	}
	return tw.Flush()
}
