package delta

import (
	"fmt"
	"math"
	"slices"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

// Baselines are the reference index values per pixel. Global is set in global
// mode, BySeason holds one entry per season present in seasonal mode.
type Baselines struct {
	Mode     BaselineMode
	Grid     sentinel.Grid
	Global   []float64
	BySeason map[sentinel.Season][]float64
}

// For returns the baseline to compare an image of the given season against.
func (b Baselines) For(season sentinel.Season) ([]float64, error) {
	switch b.Mode {
	case BaselineGlobal:
		return b.Global, nil
	case BaselineSeasonal:
		switch season {
		case sentinel.SeasonWet:
			if values, ok := b.BySeason[sentinel.SeasonWet]; ok {
				return values, nil
			}
		case sentinel.SeasonDry:
			if values, ok := b.BySeason[sentinel.SeasonDry]; ok {
				return values, nil
			}
		}
		return nil, fmt.Errorf("%w %q", ErrMissingBaseline, season)
	default:
		return nil, fmt.Errorf("%w: unknown baseline mode %q", ErrInvalidConfig, b.Mode)
	}
}

// MedianIgnoringNaN returns the median of the non-NaN values, averaging the
// two middle values for an even count. No valid value gives NaN.
func MedianIgnoringNaN(values []float64) float64 {
	valid := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, v)
		}
	}
	return medianInPlace(valid)
}

func medianInPlace(valid []float64) float64 {
	n := len(valid)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(valid)
	if n%2 == 1 {
		return valid[n/2]
	}
	return (valid[n/2-1] + valid[n/2]) / 2
}

func checkGrids(series []sentinel.IndexImage) (sentinel.Grid, error) {
	if len(series) == 0 {
		return sentinel.Grid{}, ErrEmptySeries
	}
	grid := series[0].Grid
	for _, ix := range series {
		if !ix.Grid.Equal(grid) {
			return sentinel.Grid{}, fmt.Errorf("%w: %s on %s, expected %s", ErrGridMismatch, ix.Grid, ix.Date.Format("2006-01-02"), grid)
		}
		if len(ix.Values) != grid.Size() {
			return sentinel.Grid{}, fmt.Errorf("%w: %d values on %s, expected %d", ErrGridMismatch, len(ix.Values), ix.Date.Format("2006-01-02"), grid.Size())
		}
	}
	return grid, nil
}

func pixelMedians(grid sentinel.Grid, series []sentinel.IndexImage) []float64 {
	medians := make([]float64, grid.Size())
	column := make([]float64, 0, len(series))
	for i := range medians {
		column = column[:0]
		for _, ix := range series {
			if v := ix.Values[i]; !math.IsNaN(v) {
				column = append(column, v)
			}
		}
		medians[i] = medianInPlace(column)
	}
	return medians
}

// EstimateBaselines computes the per-pixel median of the series. In seasonal
// mode images are grouped by season first. Images without a season tag are
// tagged from their date.
func EstimateBaselines(series []sentinel.IndexImage, cfg Config) (Baselines, error) {
	grid, err := checkGrids(series)
	if err != nil {
		return Baselines{}, err
	}

	switch cfg.BaselineMode {
	case BaselineGlobal:
		return Baselines{
			Mode:   BaselineGlobal,
			Grid:   grid,
			Global: pixelMedians(grid, series),
		}, nil
	case BaselineSeasonal:
		groups := make(map[sentinel.Season][]sentinel.IndexImage)
		for _, ix := range series {
			season := ix.Season
			if season == "" {
				season = cfg.seasonOf(ix.Date)
			}
			groups[season] = append(groups[season], ix)
		}
		baselines := Baselines{
			Mode:     BaselineSeasonal,
			Grid:     grid,
			BySeason: make(map[sentinel.Season][]float64, len(groups)),
		}
		for season, group := range groups {
			baselines.BySeason[season] = pixelMedians(grid, group)
		}
		return baselines, nil
	default:
		return Baselines{}, fmt.Errorf("%w: unknown baseline mode %q", ErrInvalidConfig, cfg.BaselineMode)
	}
}
