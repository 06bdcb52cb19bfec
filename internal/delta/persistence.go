package delta

import (
	"fmt"
	"math"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

// PersistentMask marks pixels flagged on at least MinPersistence dates.
// Counts holds the flag count per pixel and Valid the number of non-NaN
// deltas.
type PersistentMask struct {
	Grid   sentinel.Grid
	Counts []int
	Valid  []int
	Mask   []bool
}

func (m PersistentMask) PersistentCount() int {
	count := 0
	for _, persistent := range m.Mask {
		if persistent {
			count++
		}
	}
	return count
}

// ObservedCount returns the number of pixels with at least one valid delta.
func (m PersistentMask) ObservedCount() int {
	count := 0
	for _, v := range m.Valid {
		if v > 0 {
			count++
		}
	}
	return count
}

func PersistentChange(anomalies []Anomaly, cfg Config) (PersistentMask, error) {
	if len(anomalies) == 0 {
		return PersistentMask{}, ErrEmptySeries
	}
	grid := anomalies[0].Grid
	size := grid.Size()
	for _, a := range anomalies {
		if !a.Grid.Equal(grid) || len(a.Flags) != size || len(a.Delta) != size {
			return PersistentMask{}, fmt.Errorf("%w: anomaly on %s", ErrGridMismatch, a.Date.Format("2006-01-02"))
		}
	}

	mask := PersistentMask{
		Grid:   grid,
		Counts: make([]int, size),
		Valid:  make([]int, size),
		Mask:   make([]bool, size),
	}
	for _, a := range anomalies {
		for i := range size {
			if a.Flags[i] {
				mask.Counts[i]++
			}
			if !math.IsNaN(a.Delta[i]) {
				mask.Valid[i]++
			}
		}
	}
	for i := range size {
		mask.Mask[i] = mask.Counts[i] >= cfg.MinPersistence && mask.Valid[i] >= cfg.MinValidObservations
	}
	return mask, nil
}
