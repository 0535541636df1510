package main

import (
	"github.com/spf13/cobra"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/panel"
	"MacroPanel/internal/weights"
)

type capOptions struct {
	in, out string
	xcats   []string
	cap     float64
}

func newCapCmd() *cobra.Command {
	o := &capOptions{}
	cmd := &cobra.Command{
		Use:   "cap",
		Short: "Cap per-date weights at a maximum share",
		Long: `Normalizes every date's weights across cross-sections and redistributes
the excess above the cap to uncapped positions until none exceeds it.

Example:
  panelctl cap --in weights.csv --xcat W --cap 0.3 --out capped.csv`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input weights panel (.csv or .xlsx)")
	f.StringVar(&o.out, "out", "", "output file (default: CSV on stdout)")
	f.StringSliceVar(&o.xcats, "xcat", nil, "weight categories to cap (default: all)")
	f.Float64Var(&o.cap, "cap", 1, "maximum weight per cross-section, in (0, 1]")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (o *capOptions) run(cmd *cobra.Command) error {
	p, err := readPanel(o.in)
	if err != nil {
		return err
	}
	cats := o.xcats
	if len(cats) == 0 {
		cats = p.Categories()
	}

	var out models.Panel
	for _, cat := range cats {
		f, err := panel.Pivot(p, cat, nil)
		if err != nil {
			return err
		}
		capped, err := weights.CapFrame(f, o.cap)
		if err != nil {
			return err
		}
		out = append(out, capped.Long()...)
	}
	return writePanel(cmd.OutOrStdout(), o.out, out)
}
