package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/forest-guardian/mine-impact-monitor/internal/final"
	"github.com/forest-guardian/mine-impact-monitor/internal/history"
	"github.com/forest-guardian/mine-impact-monitor/internal/metrics"
	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/forest-guardian/mine-impact-monitor/output"
	"golang.org/x/sync/errgroup"
)

const RegionsGeoJSONFileName = "mine_regions.geojson"

type AlertNotifier interface {
	SendAlertSummary(ctx context.Context, ranked []risk.Assessment) error
}

type HistoryRecorder interface {
	SaveRun(ctx context.Context, run history.Run, ranked []risk.Assessment) (string, error)
}

// Publisher writes the outcome of a run to every configured sink. Sinks left
// nil or empty are skipped.
type Publisher struct {
	OutputDir string
	MapsDir   string

	// GeoTIFF adds a change raster next to every PNG map.
	GeoTIFF bool

	History  HistoryRecorder
	Notifier AlertNotifier

	Metrics        *metrics.RunMetrics
	PushgatewayURL string
}

type Published struct {
	TablePath   string
	RegionsPath string
	GeoJSONPath string
	Maps        []string
	RunID       string
}

// Publish fans the summary out to the sinks concurrently and waits for all of
// them. Every sink runs even when another fails; the errors are joined. run
// carries the query window of the run for the history store.
func (p *Publisher) Publish(ctx context.Context, summary *Summary, run history.Run) (*Published, error) {
	published := &Published{
		TablePath:   final.TablePath(p.OutputDir),
		RegionsPath: filepath.Join(p.OutputDir, final.RegionsFileName),
		GeoJSONPath: filepath.Join(p.OutputDir, RegionsGeoJSONFileName),
	}

	var (
		g    errgroup.Group
		errs = make([]error, 7)
	)

	g.Go(func() error {
		if len(summary.Ranked) == 0 {
			errs[0] = fmt.Errorf("no region was assessed, final table not written")
			return nil
		}
		errs[0] = final.SaveTable(published.TablePath, summary.Ranked)
		return nil
	})

	g.Go(func() error {
		errs[1] = final.SaveRegions(published.RegionsPath, RegionRows(summary.Regions))
		return nil
	})

	g.Go(func() error {
		errs[2] = output.CreateRegionsGeoJSON(published.GeoJSONPath, summary.Regions, summary.Ranked)
		return nil
	})

	if p.MapsDir != "" {
		g.Go(func() error {
			published.Maps, errs[3] = p.writeMaps(summary)
			return nil
		})
	}

	if p.History != nil {
		g.Go(func() error {
			run.StartedAt = summary.StartedAt
			run.FinishedAt = summary.FinishedAt
			run.Regions, run.Failed, run.Rejected = summary.Counts()
			id, err := p.History.SaveRun(ctx, run, summary.Ranked)
			published.RunID = id
			errs[4] = err
			return nil
		})
	}

	if p.Notifier != nil {
		g.Go(func() error {
			errs[5] = p.Notifier.SendAlertSummary(ctx, summary.Ranked)
			return nil
		})
	}

	if p.Metrics != nil && p.PushgatewayURL != "" {
		g.Go(func() error {
			errs[6] = p.Metrics.Push(ctx, p.PushgatewayURL, nil)
			return nil
		})
	}

	_ = g.Wait()
	return published, errors.Join(errs...)
}

// writeMaps renders the change map of every assessed region in rank order.
// Regions whose series cannot be split into two periods are skipped.
func (p *Publisher) writeMaps(summary *Summary) ([]string, error) {
	var (
		paths []string
		errs  []error
	)
	for _, a := range summary.Ranked {
		result, ok := summary.Results[a.RegionID]
		if !ok {
			continue
		}
		change, err := result.ChangeMap()
		if err != nil {
			slog.Warn("skipping change map", "region", a.RegionID, "error", err)
			continue
		}

		path := filepath.Join(p.MapsDir, a.RegionID+"_ndvi_change.png")
		title := fmt.Sprintf("%s %s", a.RegionID, a.Risk)
		if err := output.CreateChangeMap(path, result.Grid, change, result.Mask.Mask, title); err != nil {
			errs = append(errs, fmt.Errorf("region %s: %w", a.RegionID, err))
			continue
		}
		paths = append(paths, path)

		if p.GeoTIFF {
			tifPath := filepath.Join(p.MapsDir, a.RegionID+"_ndvi_change.tif")
			if err := output.CreateChangeGeoTIFF(tifPath, result); err != nil {
				errs = append(errs, fmt.Errorf("region %s: %w", a.RegionID, err))
				continue
			}
			paths = append(paths, tifPath)
		}
	}
	return paths, errors.Join(errs...)
}
