package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/forest-guardian/mine-impact-monitor/internal/delivery"
	"github.com/forest-guardian/mine-impact-monitor/internal/final"
	"github.com/spf13/cobra"
)

func rankCommand(a *app) *cobra.Command {
	var metricsPath, outDir string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Classify and rank a metrics table (region_id,area_ha,severity)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = a.settings.OutputDir()
			}
			tablePath := final.TablePath(outDir)

			ranked, err := delivery.RankMetrics(metricsPath, tablePath, a.settings.Thresholds)
			if err != nil {
				return err
			}

			for _, r := range ranked {
				fmt.Printf("%3d. %s  %-8s impact %8.3f  %s\n", r.Rank, r.RegionID, r.Risk, r.Impact, r.Alert)
			}
			color.Green("\nFinal table saved to %s", tablePath)

			if a.notifier.AlertURL != "" {
				if err := a.notifier.SendAlertSummary(cmd.Context(), ranked); err != nil {
					color.Red("Failed to send notification: %s", err.Error())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsPath, "metrics", "", "CSV with region_id, area_ha and severity columns")
	cmd.Flags().StringVar(&outDir, "out", "", "output folder (default ROOT_PATH/outputs)")
	cmd.MarkFlagRequired("metrics")
	return cmd
}
