package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"MacroPanel/internal/composite"
	"MacroPanel/internal/domain/models"
)

type compositeOptions struct {
	in, out        string
	xcats, cids    []string
	weights, signs []float64
	start, end     string
	blacklist      string
	complete       bool
	nanTreatment   string
	fill           float64
	newXcat        string
}

func newCompositeCmd() *cobra.Command {
	o := &compositeOptions{}
	cmd := &cobra.Command{
		Use:   "composite",
		Short: "Combine categories into a weighted, signed composite",
		Long: `Builds a new category per cross-section and date as a weighted sum of the
given categories. Weights are rescaled to sum to one and signs are coerced to
+1 or -1. Missing components are reweighted away unless --complete is set.

Examples:
  panelctl composite --in scores.csv --xcat XR_ZN,CRY_ZN --weights 2,1 --new-xcat MIX
  panelctl composite --in panel.csv --xcat GROWTH,INFL --signs 1,-1 --nan-treatment drop`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input panel (.csv or .xlsx)")
	f.StringVar(&o.out, "out", "", "output file (default: CSV on stdout)")
	f.StringSliceVar(&o.xcats, "xcat", nil, "categories to combine")
	f.Float64SliceVar(&o.weights, "weights", nil, "weight per category (default: equal)")
	f.Float64SliceVar(&o.signs, "signs", nil, "sign per category, 1 or -1 (default: all 1)")
	f.StringSliceVar(&o.cids, "cids", nil, "cross-sections to keep (default: all)")
	f.StringVar(&o.start, "start", "", "first date used")
	f.StringVar(&o.end, "end", "", "last date used")
	f.StringVar(&o.blacklist, "blacklist-xcat", "", "binary category in the input marking dates to exclude")
	f.BoolVar(&o.complete, "complete", false, "leave the composite missing unless every category is present")
	f.StringVar(&o.nanTreatment, "nan-treatment", "reweight", "missing components: reweight, drop or fill")
	f.Float64Var(&o.fill, "fill", 0, "value used for missing components with --nan-treatment fill")
	f.StringVar(&o.newXcat, "new-xcat", composite.DefaultCategory, "name of the composite category")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("xcat")
	return cmd
}

func (o *compositeOptions) run(cmd *cobra.Command) error {
	policy, err := composite.ParseMissingPolicy(o.nanTreatment)
	if err != nil {
		return err
	}
	w, err := models.DateRangeDTO{Start: o.start, End: o.end}.ToModel()
	if err != nil {
		return err
	}
	cfg := composite.Config{
		Categories:    o.xcats,
		Weights:       o.weights,
		Signs:         o.signs,
		CrossSections: o.cids,
		Window:        w,
		Complete:      o.complete,
		Missing:       policy,
		FillValue:     o.fill,
		Category:      o.newXcat,
	}
	// reject bad weights before reading the input
	if _, err := composite.NewPlan(cfg); err != nil {
		return err
	}

	p, err := readPanel(o.in)
	if err != nil {
		return err
	}
	if cfg.Blacklist, err = blacklistFrom(p, o.blacklist); err != nil {
		return err
	}
	pl, err := composite.NewPlan(cfg)
	if err != nil {
		return err
	}

	out, err := pl.Apply(p)
	if err != nil {
		return err
	}
	for _, warn := range pl.Warnings() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn)
	}
	return writePanel(cmd.OutOrStdout(), o.out, out)
}
