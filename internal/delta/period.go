package delta

import (
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

// PeriodChange returns, per pixel, the median index of the images dated on or
// after split minus the median of the images dated before it. Both periods
// must hold at least one image.
func PeriodChange(indexes []sentinel.IndexImage, split time.Time) ([]float64, error) {
	grid, err := checkGrids(indexes)
	if err != nil {
		return nil, err
	}

	var before, after []sentinel.IndexImage
	for _, ix := range indexes {
		if ix.Date.Before(split) {
			before = append(before, ix)
		} else {
			after = append(after, ix)
		}
	}
	if len(before) == 0 || len(after) == 0 {
		return nil, fmt.Errorf("%w: split %s leaves %d images before and %d after", ErrEmptySeries, split.Format("2006-01-02"), len(before), len(after))
	}

	earlier := pixelMedians(grid, before)
	later := pixelMedians(grid, after)
	change := make([]float64, grid.Size())
	for i := range change {
		change[i] = later[i] - earlier[i]
	}
	return change, nil
}

// ValueRange returns the min and max of the non-NaN values, or NaN twice when
// there are none.
func ValueRange(values []float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}
