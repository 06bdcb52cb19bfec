package delta

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func testGrid(width int) sentinel.Grid {
	return sentinel.Grid{OriginX: 500000, OriginY: 9000000, Resolution: 10, Width: width, Height: 1}
}

func day(month time.Month, d int) time.Time {
	return time.Date(2023, month, d, 0, 0, 0, 0, time.UTC)
}

func indexImage(date time.Time, values ...float64) sentinel.IndexImage {
	return sentinel.IndexImage{Date: date, Grid: testGrid(len(values)), Values: values}
}

// ndviImage builds a raw image whose NDVI equals the given values. A NaN value
// is encoded as a cloudy pixel.
func ndviImage(date time.Time, values ...float64) sentinel.Image {
	red := make([]float64, len(values))
	nir := make([]float64, len(values))
	scl := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			red[i], nir[i], scl[i] = 0.2, 0.2, sentinel.SCLCloudHigh
			continue
		}
		red[i], nir[i], scl[i] = 1-v, 1+v, sentinel.SCLVegetation
	}
	return sentinel.Image{
		Date:  date,
		Grid:  testGrid(len(values)),
		Bands: map[string][]float64{sentinel.BandRed: red, sentinel.BandNIR: nir},
		SCL:   scl,
	}
}

func anomaly(date time.Time, deltas ...float64) Anomaly {
	cfg := DefaultConfig()
	flags := make([]bool, len(deltas))
	for i, d := range deltas {
		flags[i] = !math.IsNaN(d) && d < cfg.DropThreshold
	}
	return Anomaly{Date: date, Grid: testGrid(len(deltas)), Delta: deltas, Flags: flags}
}

func TestMedianIgnoringNaN(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"odd", []float64{0.3, 0.1, 0.2}, 0.2},
		{"even", []float64{0.4, 0.1, 0.2, 0.3}, 0.25},
		{"with nan", []float64{nan, 0.5, nan, 0.7}, 0.6},
		{"single", []float64{0.42}, 0.42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, MedianIgnoringNaN(tt.values), 1e-12)
		})
	}

	assert.True(t, math.IsNaN(MedianIgnoringNaN([]float64{nan, nan})))
	assert.True(t, math.IsNaN(MedianIgnoringNaN(nil)))
}

func TestEstimateBaselinesIgnoresOrder(t *testing.T) {
	series := []sentinel.IndexImage{
		indexImage(day(1, 1), 0.8, nan),
		indexImage(day(2, 1), 0.6, nan),
		indexImage(day(3, 1), 0.7, 0.1),
	}
	reversed := []sentinel.IndexImage{series[2], series[1], series[0]}

	cfg := DefaultConfig()
	a, err := EstimateBaselines(series, cfg)
	require.NoError(t, err)
	b, err := EstimateBaselines(reversed, cfg)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, a.Global[0], 1e-12)
	assert.InDelta(t, 0.1, a.Global[1], 1e-12)
	assert.Equal(t, a.Global, b.Global)
}

func TestEstimateBaselinesSeasonal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaselineMode = BaselineSeasonal

	series := []sentinel.IndexImage{
		indexImage(day(1, 10), 0.4),
		indexImage(day(2, 10), 0.5),
		indexImage(day(6, 10), 0.8),
		indexImage(day(7, 10), 0.9),
		indexImage(day(8, 10), 0.7),
	}
	baselines, err := EstimateBaselines(series, cfg)
	require.NoError(t, err)

	dry, err := baselines.For(sentinel.SeasonDry)
	require.NoError(t, err)
	wet, err := baselines.For(sentinel.SeasonWet)
	require.NoError(t, err)
	assert.InDelta(t, 0.45, dry[0], 1e-12)
	assert.InDelta(t, 0.8, wet[0], 1e-12)

	// A dry season image close to the dry baseline is not an anomaly even
	// though it is far below the wet one.
	a, err := DetectAnomaly(indexImage(day(12, 1), 0.42), baselines, cfg)
	require.NoError(t, err)
	assert.False(t, a.Flags[0])
	assert.Equal(t, sentinel.SeasonDry, a.Season)

	wetOnly, err := EstimateBaselines(series[2:], cfg)
	require.NoError(t, err)
	_, err = DetectAnomaly(indexImage(day(1, 5), 0.42), wetOnly, cfg)
	assert.ErrorIs(t, err, ErrMissingBaseline)
}

func TestEstimateBaselinesGridMismatch(t *testing.T) {
	series := []sentinel.IndexImage{
		indexImage(day(1, 1), 0.5, 0.5),
		indexImage(day(2, 1), 0.5, 0.5, 0.5),
	}
	_, err := EstimateBaselines(series, DefaultConfig())
	assert.ErrorIs(t, err, ErrGridMismatch)

	_, err = EstimateBaselines(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptySeries)
}

func TestDetectAnomaly(t *testing.T) {
	cfg := DefaultConfig()
	baselines := Baselines{Mode: BaselineGlobal, Grid: testGrid(5), Global: []float64{0.8, 0.8, 0.8, nan, 0.8}}

	a, err := DetectAnomaly(indexImage(day(3, 1), 0.5, 0.65, 0.7, 0.1, nan), baselines, cfg)
	require.NoError(t, err)

	assert.InDelta(t, -0.3, a.Delta[0], 1e-12)
	assert.Equal(t, []bool{true, false, false, false, false}, a.Flags)
	assert.True(t, math.IsNaN(a.Delta[3]))
	assert.True(t, math.IsNaN(a.Delta[4]))
}

func TestPersistentChangeNeedsEnoughFlags(t *testing.T) {
	cfg := DefaultConfig()

	// Pixel 0 is only observed twice and flagged both times.
	anomalies := []Anomaly{
		anomaly(day(1, 1), -0.5, -0.5),
		anomaly(day(2, 1), -0.5, -0.5),
		anomaly(day(3, 1), nan, -0.5),
		anomaly(day(4, 1), nan, 0.1),
	}
	mask, err := PersistentChange(anomalies, cfg)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 3}, mask.Counts)
	assert.Equal(t, []int{2, 4}, mask.Valid)
	assert.Equal(t, []bool{false, true}, mask.Mask)
}

func TestPersistentChangeMinValidObservations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinValidObservations = 5

	anomalies := []Anomaly{
		anomaly(day(1, 1), -0.5, -0.5),
		anomaly(day(2, 1), -0.5, -0.5),
		anomaly(day(3, 1), -0.5, -0.5),
		anomaly(day(4, 1), nan, 0),
		anomaly(day(5, 1), nan, 0),
	}
	mask, err := PersistentChange(anomalies, cfg)
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true}, mask.Mask)
}

func TestPersistenceIsMonotone(t *testing.T) {
	anomalies := []Anomaly{
		anomaly(day(1, 1), -0.5, -0.5, -0.5, 0),
		anomaly(day(2, 1), -0.5, -0.5, 0, 0),
		anomaly(day(3, 1), -0.5, -0.5, -0.5, 0),
		anomaly(day(4, 1), -0.5, 0, -0.5, 0),
		anomaly(day(5, 1), -0.5, -0.5, 0, -0.5),
	}

	previous := math.MaxInt
	for k := 1; k <= 6; k++ {
		cfg := DefaultConfig()
		cfg.MinPersistence = k
		mask, err := PersistentChange(anomalies, cfg)
		require.NoError(t, err)

		count := mask.PersistentCount()
		assert.LessOrEqual(t, count, previous, "min persistence %d", k)
		previous = count
	}
	assert.Equal(t, 0, previous)
}

func TestAggregate(t *testing.T) {
	cfg := DefaultConfig()
	anomalies := []Anomaly{
		anomaly(day(1, 1), 0.0, -0.3, 0),
		anomaly(day(2, 1), -0.3, -0.3, 0),
		anomaly(day(3, 1), -0.3, nan, 0),
		anomaly(day(4, 1), -0.3, -0.3, 0),
	}
	mask, err := PersistentChange(anomalies, cfg)
	require.NoError(t, err)

	metrics := Aggregate(mask, anomalies, cfg)
	assert.Equal(t, 2, metrics.PersistentPixels)
	assert.Equal(t, 3, metrics.ObservedPixels)
	assert.Equal(t, 4, metrics.Images)
	assert.InDelta(t, 0.02, metrics.AreaHa, 1e-12)
	// Pixel 0 averages -0.225 over its four dates, pixel 1 -0.3 over three.
	assert.InDelta(t, (-0.225-0.3)/2, metrics.Severity, 1e-12)
	assert.True(t, metrics.Detected)
}

func TestAggregateAreaFormula(t *testing.T) {
	cfg := DefaultConfig()
	for _, count := range []int{0, 1, 17, 2500} {
		mask := PersistentMask{Mask: make([]bool, 3000)}
		for i := range count {
			mask.Mask[i] = true
		}
		metrics := Aggregate(mask, nil, cfg)
		assert.Equal(t, float64(count)*100/10000, metrics.AreaHa)
	}
}

func TestAggregateEmptyMask(t *testing.T) {
	cfg := DefaultConfig()
	anomalies := []Anomaly{anomaly(day(1, 1), 0.1, nan)}
	mask, err := PersistentChange(anomalies, cfg)
	require.NoError(t, err)

	metrics := Aggregate(mask, anomalies, cfg)
	assert.Equal(t, 0.0, metrics.AreaHa)
	assert.Equal(t, 0.0, metrics.Severity)
	assert.False(t, metrics.Detected)
}

func TestAnalyzeRegionConstantSeries(t *testing.T) {
	var images []sentinel.Image
	for m := time.January; m <= time.June; m++ {
		images = append(images, ndviImage(day(m, 1), 0.7, 0.4, nan))
	}

	result, err := AnalyzeRegion(context.Background(), "MINE_0000", images, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Metrics.PersistentPixels)
	assert.Equal(t, 0.0, result.Metrics.AreaHa)
	assert.False(t, result.Metrics.Detected)
	assert.Equal(t, 2, result.Metrics.ObservedPixels)
}

func TestAnalyzeRegionDetectsLoss(t *testing.T) {
	// Pixel 1 drops from 0.8 to 0.3 on the last three of seven dates.
	values := []float64{0.8, 0.8, 0.8, 0.8, 0.3, 0.3, 0.3}
	var images []sentinel.Image
	for i, v := range values {
		images = append(images, ndviImage(day(time.Month(i+1), 5), 0.8, v))
	}
	// Sources may deliver out of order.
	images[0], images[6] = images[6], images[0]

	result, err := AnalyzeRegion(context.Background(), "MINE_0001", images, DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, []bool{false, true}, result.Mask.Mask)
	assert.Equal(t, 1, result.Metrics.PersistentPixels)
	assert.InDelta(t, 0.01, result.Metrics.AreaHa, 1e-12)
	assert.InDelta(t, -1.5/7, result.Metrics.Severity, 1e-9)
	assert.True(t, result.Metrics.Detected)
	assert.True(t, result.Indexes[0].Date.Before(result.Indexes[1].Date))

	change, err := result.ChangeMap()
	require.NoError(t, err)
	assert.InDelta(t, 0, change[0], 1e-9)
	assert.Less(t, change[1], -0.2)
}

func TestAnalyzeRegionErrors(t *testing.T) {
	cfg := DefaultConfig()

	_, err := AnalyzeRegion(context.Background(), "MINE_0000", nil, cfg)
	assert.ErrorIs(t, err, ErrEmptySeries)

	mismatched := []sentinel.Image{ndviImage(day(1, 1), 0.5), ndviImage(day(2, 1), 0.5, 0.5)}
	_, err = AnalyzeRegion(context.Background(), "MINE_0000", mismatched, cfg)
	assert.ErrorIs(t, err, ErrGridMismatch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = AnalyzeRegion(ctx, "MINE_0000", []sentinel.Image{ndviImage(day(1, 1), 0.5)}, cfg)
	assert.ErrorIs(t, err, context.Canceled)

	bad := cfg
	bad.BaselineMode = "yearly"
	_, err = AnalyzeRegion(context.Background(), "MINE_0000", []sentinel.Image{ndviImage(day(1, 1), 0.5)}, bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPeriodChange(t *testing.T) {
	indexes := []sentinel.IndexImage{
		indexImage(day(1, 1), 0.8, nan),
		indexImage(day(2, 1), 0.6, 0.5),
		indexImage(day(5, 1), 0.3, nan),
		indexImage(day(6, 1), 0.5, nan),
	}
	change, err := PeriodChange(indexes, day(4, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.4-0.7, change[0], 1e-12)
	assert.True(t, math.IsNaN(change[1]))

	_, err = PeriodChange(indexes, day(12, 1))
	assert.ErrorIs(t, err, ErrEmptySeries)

	lo, hi := ValueRange(change)
	assert.InDelta(t, -0.3, lo, 1e-12)
	assert.InDelta(t, -0.3, hi, 1e-12)
}
