package delta

import (
	"fmt"
	"math"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

// Anomaly is the deviation of one index image from its baseline.
type Anomaly struct {
	Date   time.Time
	Season sentinel.Season
	Grid   sentinel.Grid
	Delta  []float64
	Flags  []bool
}

// DetectAnomaly computes index minus baseline and flags pixels whose delta is
// below the drop threshold. A NaN delta is never flagged.
func DetectAnomaly(index sentinel.IndexImage, baselines Baselines, cfg Config) (Anomaly, error) {
	if !index.Grid.Equal(baselines.Grid) {
		return Anomaly{}, fmt.Errorf("%w: index %s, baseline %s", ErrGridMismatch, index.Grid, baselines.Grid)
	}

	season := index.Season
	if season == "" {
		season = cfg.seasonOf(index.Date)
	}
	baseline, err := baselines.For(season)
	if err != nil {
		return Anomaly{}, err
	}
	if len(baseline) != len(index.Values) {
		return Anomaly{}, fmt.Errorf("%w: %d index values, %d baseline values", ErrGridMismatch, len(index.Values), len(baseline))
	}

	anomaly := Anomaly{
		Date:   index.Date,
		Season: season,
		Grid:   index.Grid,
		Delta:  make([]float64, len(index.Values)),
		Flags:  make([]bool, len(index.Values)),
	}
	for i, v := range index.Values {
		d := v - baseline[i]
		anomaly.Delta[i] = d
		anomaly.Flags[i] = !math.IsNaN(d) && d < cfg.DropThreshold
	}
	return anomaly, nil
}
