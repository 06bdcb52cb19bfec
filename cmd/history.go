package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func historyCommand(a *app) *cobra.Command {
	var (
		regionID string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the stored assessments of a region",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.openHistory()
			if store == nil {
				return fmt.Errorf("history database %s is not available", a.settings.HistoryDSN)
			}
			defer store.Close()

			records, err := store.RegionHistory(cmd.Context(), regionID, limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				color.Yellow("No history for %s", regionID)
				return nil
			}

			color.Green("History of %s:", regionID)
			for _, r := range records {
				fmt.Printf("%s  rank %3d  %-8s area %8.2f ha  severity %7.3f  impact %8.3f  run %s\n",
					r.RecordedAt.Format("2006-01-02 15:04"), r.Rank, r.Risk, r.AreaHa, r.Severity, r.Impact, r.RunID)
			}

			trend, err := store.Trend(cmd.Context(), regionID)
			if err != nil {
				return err
			}
			if trend.Previous != nil {
				fmt.Printf("\nSince the previous run: area %+.2f ha, impact %+.3f\n", trend.AreaChange, trend.ImpactChange)
				if trend.Escalated {
					color.Red("Risk escalated from %s to %s", trend.Previous.Risk, trend.Latest.Risk)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&regionID, "region", "", "region id, e.g. MINE_0003")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	cmd.MarkFlagRequired("region")
	return cmd
}
