package main

import (
	"github.com/fatih/color"
	"github.com/forest-guardian/mine-impact-monitor/internal/logging"
	"github.com/forest-guardian/mine-impact-monitor/internal/notification"
	"github.com/forest-guardian/mine-impact-monitor/internal/properties"
	"github.com/spf13/cobra"
)

type app struct {
	settings *properties.Settings
	notifier *notification.Discord

	profile string
	quiet   bool
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mine-monitor",
		Short:         "Vegetation loss monitoring around mining sites from Sentinel-2 imagery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.profile, "profile", "", "YAML detection profile overriding thresholds")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "hide the banner and progress bar")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		settings, err := properties.Load()
		if err != nil {
			color.Red("Invalid configuration: %s", err.Error())
			return err
		}
		if a.profile != "" {
			if err := settings.ApplyProfile(a.profile); err != nil {
				color.Red("Invalid profile: %s", err.Error())
				return err
			}
		}
		logging.Setup(settings.LogLevel)

		a.settings = settings
		a.notifier.AlertURL = settings.DiscordAlertURL
		a.notifier.ErrorURL = settings.DiscordErrorURL

		if !a.quiet {
			printBanner()
		}
		return nil
	}

	rootCmd.AddCommand(
		assessCommand(a),
		regionsCommand(a),
		rankCommand(a),
		historyCommand(a),
	)
	return rootCmd
}
