package delta

import (
	"context"
	"fmt"
	"slices"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

type Result struct {
	RegionID  string
	Grid      sentinel.Grid
	Metrics   Metrics
	Mask      PersistentMask
	Indexes   []sentinel.IndexImage
	Anomalies []Anomaly
}

// AnalyzeRegion runs masking, index, baseline, anomaly, persistence and
// aggregation over the image series of one region. The stages are run in
// order and the context is checked between them.
func AnalyzeRegion(ctx context.Context, regionID string, images []sentinel.Image, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if len(images) == 0 {
		return Result{}, fmt.Errorf("region %s: %w", regionID, ErrEmptySeries)
	}

	series := slices.Clone(images)
	slices.SortStableFunc(series, func(a, b sentinel.Image) int {
		return a.Date.Compare(b.Date)
	})

	grid := series[0].Grid
	indexes := make([]sentinel.IndexImage, 0, len(series))
	for _, img := range series {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if !img.Grid.Equal(grid) {
			return Result{}, fmt.Errorf("region %s: %w: %s on %s, expected %s", regionID, ErrGridMismatch, img.Grid, img.Date.Format("2006-01-02"), grid)
		}
		if img.Season == "" {
			img.Season = cfg.seasonOf(img.Date)
		}

		masked, err := sentinel.MaskQuality(img, cfg.validClasses())
		if err != nil {
			return Result{}, fmt.Errorf("region %s: failed to mask image %s: %w", regionID, img.Date.Format("2006-01-02"), err)
		}
		index, err := sentinel.ComputeNDVI(masked)
		if err != nil {
			return Result{}, fmt.Errorf("region %s: failed to compute index %s: %w", regionID, img.Date.Format("2006-01-02"), err)
		}
		indexes = append(indexes, index)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	baselines, err := EstimateBaselines(indexes, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("region %s: failed to estimate baselines: %w", regionID, err)
	}

	anomalies := make([]Anomaly, 0, len(indexes))
	for _, index := range indexes {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		anomaly, err := DetectAnomaly(index, baselines, cfg)
		if err != nil {
			return Result{}, fmt.Errorf("region %s: failed to detect anomaly %s: %w", regionID, index.Date.Format("2006-01-02"), err)
		}
		anomalies = append(anomalies, anomaly)
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	mask, err := PersistentChange(anomalies, cfg)
	if err != nil {
		return Result{}, fmt.Errorf("region %s: %w", regionID, err)
	}

	return Result{
		RegionID:  regionID,
		Grid:      grid,
		Metrics:   Aggregate(mask, anomalies, cfg),
		Mask:      mask,
		Indexes:   indexes,
		Anomalies: anomalies,
	}, nil
}

// ChangeMap is the period change of the analysed series split at the midpoint
// between its first and last dates.
func (r Result) ChangeMap() ([]float64, error) {
	if len(r.Indexes) == 0 {
		return nil, ErrEmptySeries
	}
	first := r.Indexes[0].Date
	last := r.Indexes[len(r.Indexes)-1].Date
	return PeriodChange(r.Indexes, first.Add(last.Sub(first)/2))
}
