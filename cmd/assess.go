package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/forest-guardian/mine-impact-monitor/internal/cache"
	"github.com/forest-guardian/mine-impact-monitor/internal/copernicus"
	"github.com/forest-guardian/mine-impact-monitor/internal/delivery"
	"github.com/forest-guardian/mine-impact-monitor/internal/delta"
	"github.com/forest-guardian/mine-impact-monitor/internal/history"
	"github.com/forest-guardian/mine-impact-monitor/internal/imagery"
	"github.com/forest-guardian/mine-impact-monitor/internal/metrics"
	"github.com/forest-guardian/mine-impact-monitor/internal/properties"
	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const (
	sourceLocal      = "local"
	sourceCopernicus = "copernicus"
)

type assessFlags struct {
	regions  regionFlags
	source   string
	start    string
	end      string
	maxCloud float64
	baseline string
	workers  int
	outDir   string
	maps     bool
	geotiff  bool
	notify   bool
	history  bool
}

func assessCommand(a *app) *cobra.Command {
	var flags assessFlags

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Detect persistent vegetation loss around every region and rank the impact",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, a.settings); err != nil {
				return err
			}
			return a.assess(cmd, &flags)
		},
	}

	flags.regions.register(cmd)
	cmd.Flags().StringVar(&flags.source, "source", sourceLocal, "image source: local or copernicus")
	cmd.Flags().StringVar(&flags.start, "start", "", "first acquisition date YYYY-MM-DD")
	cmd.Flags().StringVar(&flags.end, "end", "", "last acquisition date YYYY-MM-DD")
	cmd.Flags().Float64Var(&flags.maxCloud, "max-cloud", 0, "skip scenes above this cloud percentage (0 disables)")
	cmd.Flags().StringVar(&flags.baseline, "baseline", "", "baseline mode: global or seasonal")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "regions assessed in parallel")
	cmd.Flags().StringVar(&flags.outDir, "out", "", "output folder (default ROOT_PATH/outputs)")
	cmd.Flags().BoolVar(&flags.maps, "maps", false, "render an NDVI change map per region")
	cmd.Flags().BoolVar(&flags.geotiff, "geotiff", false, "store change maps as GeoTIFF as well")
	cmd.Flags().BoolVar(&flags.notify, "notify", false, "post HIGH and MODERATE regions to Discord")
	cmd.Flags().BoolVar(&flags.history, "history", true, "record the run in the history database")
	return cmd
}

// apply overrides the loaded settings with the flags given on the command
// line.
func (f *assessFlags) apply(cmd *cobra.Command, s *properties.Settings) error {
	changed := cmd.Flags().Changed
	if changed("start") {
		date, err := properties.ParseDate(f.start)
		if err != nil {
			return err
		}
		s.StartDate = date
	}
	if changed("end") {
		date, err := properties.ParseDate(f.end)
		if err != nil {
			return err
		}
		s.EndDate = date
	}
	if changed("max-cloud") {
		s.MaxCloud = f.maxCloud
	}
	if changed("baseline") {
		s.Detection.BaselineMode = delta.BaselineMode(f.baseline)
	}
	if changed("workers") {
		s.Workers = f.workers
	}
	if f.source != sourceLocal && f.source != sourceCopernicus {
		return fmt.Errorf("unknown image source %q", f.source)
	}
	return s.Validate()
}

func (a *app) imageSource(source string) (imagery.Source, error) {
	s := a.settings
	if source == sourceLocal {
		return imagery.NewLocalSource(s.ImagesDir()), nil
	}

	client, err := copernicus.NewClient(s.Copernicus)
	if err != nil {
		return nil, err
	}
	maxAge := time.Duration(s.SceneCacheDays) * 24 * time.Hour
	sceneCache := cache.NewFileCache[imagery.SceneRecord](filepath.Join(s.CacheDir(), "scenes"), maxAge)
	if removed, err := sceneCache.Prune(); err != nil {
		slog.Warn("failed to prune scene cache", "error", err)
	} else if removed > 0 {
		slog.Debug("pruned scene cache", "removed", removed)
	}
	src := imagery.NewCopernicusSource(client, s.ImagesDir(), sceneCache)
	src.RevisitDays = s.RevisitDays
	return src, nil
}

func (a *app) openHistory() *history.Store {
	s := a.settings
	if s.HistoryDriver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(s.HistoryDSN), 0755); err != nil {
			slog.Warn("history disabled", "error", err)
			return nil
		}
	}
	store, err := history.Open(s.HistoryDriver, s.HistoryDSN)
	if err != nil {
		slog.Warn("history disabled", "driver", s.HistoryDriver, "error", err)
		return nil
	}
	return store
}

func (a *app) assess(cmd *cobra.Command, flags *assessFlags) error {
	ctx := cmd.Context()
	s := a.settings

	provider, err := a.provider(cmd, &flags.regions)
	if err != nil {
		return err
	}
	src, err := a.imageSource(flags.source)
	if err != nil {
		return err
	}

	regions, rejected, err := delivery.LoadRegions(ctx, provider)
	if err != nil {
		return err
	}

	var runMetrics *metrics.RunMetrics
	if s.PushgatewayURL != "" {
		runMetrics, err = metrics.NewRunMetrics(prometheus.NewRegistry())
		if err != nil {
			return err
		}
	}

	assessor := &delivery.Assessor{
		Source:     src,
		Query:      s.Query(),
		Detection:  s.Detection,
		Thresholds: s.Thresholds,
		Workers:    s.Workers,
		Quiet:      a.quiet,
		Metrics:    runMetrics,
	}
	color.Cyan("Assessing %d regions from %s to %s (%s baseline)",
		len(regions), s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"), s.Detection.BaselineMode)

	summary, err := assessor.Run(ctx, regions)
	if err != nil {
		return err
	}
	summary.RecordRejected(rejected, runMetrics)

	outDir := flags.outDir
	if outDir == "" {
		outDir = s.OutputDir()
	}
	publisher := &delivery.Publisher{
		OutputDir:      outDir,
		GeoTIFF:        flags.geotiff,
		Metrics:        runMetrics,
		PushgatewayURL: s.PushgatewayURL,
	}
	if flags.maps {
		publisher.MapsDir = filepath.Join(outDir, "maps")
	}
	if flags.notify {
		publisher.Notifier = a.notifier
	}
	if flags.history {
		if store := a.openHistory(); store != nil {
			defer store.Close()
			publisher.History = store
		}
	}

	run := history.Run{
		StartDate:    s.StartDate,
		EndDate:      s.EndDate,
		BaselineMode: string(s.Detection.BaselineMode),
	}
	published, publishErr := publisher.Publish(ctx, summary, run)

	printSummary(summary, published)
	if publishErr != nil {
		color.Red("Some outputs failed: %s", publishErr.Error())
	}
	if len(summary.Ranked) == 0 {
		return errors.New("no region could be assessed")
	}
	return nil
}

func printSummary(summary *delivery.Summary, published *delivery.Published) {
	fmt.Println()
	color.Green("Ranking:")
	for _, a := range summary.Ranked {
		line := fmt.Sprintf("%3d. %s  %-8s area %8.2f ha  severity %7.3f  impact %8.3f  %s",
			a.Rank, a.RegionID, a.Risk, a.AreaHa, a.Severity, a.Impact, a.Alert)
		switch a.Risk {
		case risk.High:
			color.Red("%s", line)
		case risk.Moderate:
			color.Yellow("%s", line)
		default:
			fmt.Println(line)
		}
	}

	for _, f := range summary.Failed {
		color.Red("failed %s: %s", f.RegionID, f.Err.Error())
	}
	for _, r := range summary.Rejected {
		color.Yellow("rejected feature %d (%s): %s", r.Index, r.Name, r.Reason)
	}

	succeeded, failed, rejected := summary.Counts()
	color.Green("\n%d assessed, %d failed, %d rejected in %s",
		succeeded, failed, rejected, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
	if published != nil {
		fmt.Println("Final table:", published.TablePath)
		fmt.Println("Region GeoJSON:", published.GeoJSONPath)
		for _, path := range published.Maps {
			fmt.Println("Map:", path)
		}
		if published.RunID != "" {
			fmt.Println("Run:", published.RunID)
		}
	}
}
