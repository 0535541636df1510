package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "panelctl",
		Short: "Score, split, cap and combine macro panels from the command line",
		Long: `panelctl runs the panel engine on local CSV or XLSX files in long format
(cid, xcat, real_date, value) without the service, its stores or its queue.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.AddCommand(
		newScoreCmd(),
		newSplitCmd(),
		newCapCmd(),
		newSimulateCmd(),
		newBlacklistCmd(),
		newCompositeCmd(),
		newHedgeCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
