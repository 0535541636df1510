package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"MacroPanel/internal/domain/models"
	"MacroPanel/internal/panel"
)

type blacklistOptions struct {
	in         string
	xcat       string
	cids       []string
	start, end string
}

func newBlacklistCmd() *cobra.Command {
	o := &blacklistOptions{}
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Turn a binary flag category into blacklist periods",
		Long: `Every run of consecutive observations equal to one becomes an excluded
period. The JSON output can be passed as the blacklist of a score request.

Example:
  panelctl blacklist --in flags.csv --xcat FXBLACK`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input panel (.csv or .xlsx)")
	f.StringVar(&o.xcat, "xcat", "", "binary category, 1 marks an excluded date")
	f.StringSliceVar(&o.cids, "cids", nil, "cross-sections to keep (default: all)")
	f.StringVar(&o.start, "start", "", "first date considered")
	f.StringVar(&o.end, "end", "", "last date considered")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("xcat")
	return cmd
}

func (o *blacklistOptions) run(cmd *cobra.Command) error {
	w, err := models.DateRangeDTO{Start: o.start, End: o.end}.ToModel()
	if err != nil {
		return err
	}
	p, err := readPanel(o.in)
	if err != nil {
		return err
	}
	bl, err := panel.MakeBlacklist(p, o.xcat, o.cids, w)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(models.BlacklistToDTO(bl))
}

// blacklistFrom derives blacklist periods from a flag category of p; an empty
// category yields no blacklist.
func blacklistFrom(p models.Panel, xcat string) (models.Blacklist, error) {
	if xcat == "" {
		return nil, nil
	}
	return panel.MakeBlacklist(p, xcat, nil, models.DateRange{})
}
