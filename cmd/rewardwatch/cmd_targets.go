package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"rewardwatch/internal/cdp"
)

// targetsCmd 列出 DevTools 目标
var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "列出 DevTools 端点上的可附加目标",
	RunE: func(cmd *cobra.Command, args []string) error {
		targets, err := cdp.ListTargets(cmd.Context(), cfg.DevTools.URL)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tTITLE\tURL")
		for _, t := range targets {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Type, t.Title, t.URL)
		}
		return tw.Flush()
	},
}
