package sentinel

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func testImage(red, nir, scl []float64) Image {
	return Image{
		Date: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Grid: Grid{Resolution: DefaultResolution, Width: len(scl), Height: 1},
		Bands: map[string][]float64{
			BandRed: red,
			BandNIR: nir,
		},
		SCL: scl,
	}
}

func TestMaskQuality(t *testing.T) {
	img := testImage(
		[]float64{0.1, 0.1, 0.1, 0.1, 0.1, 0.1},
		[]float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5},
		[]float64{4, 5, 8, 11, nan, 7},
	)

	masked, err := MaskQuality(img, DefaultValidClasses)
	require.NoError(t, err)

	red := masked.Bands[BandRed]
	assert.Equal(t, 0.1, red[0])
	assert.Equal(t, 0.1, red[1])
	assert.True(t, math.IsNaN(red[2]), "cloud pixel must be masked")
	assert.True(t, math.IsNaN(red[3]), "snow is rejected by the default set")
	assert.True(t, math.IsNaN(red[4]), "missing classification must be masked")
	assert.Equal(t, 0.1, red[5])

	assert.Equal(t, 0.1, img.Bands[BandRed][2], "input image must not be modified")

	strict, err := MaskQuality(img, StrictValidClasses)
	require.NoError(t, err)
	assert.Equal(t, 0.1, strict.Bands[BandRed][3])
}

func TestMaskQualityRejectsShortSCL(t *testing.T) {
	img := testImage([]float64{1, 1}, []float64{1, 1}, []float64{4, 4})
	img.SCL = img.SCL[:1]

	_, err := MaskQuality(img, DefaultValidClasses)
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestNormalizedDifference(t *testing.T) {
	result, err := NormalizedDifference(
		[]float64{0.5, 0.2, nan, 0, 0.3},
		[]float64{0.1, 0.2, 0.1, 0, nan},
	)
	require.NoError(t, err)

	assert.InDelta(t, 0.4/0.6, result[0], 1e-12)
	assert.Equal(t, 0.0, result[1])
	assert.True(t, math.IsNaN(result[2]))
	assert.True(t, math.IsNaN(result[3]), "zero denominator gives NaN")
	assert.True(t, math.IsNaN(result[4]))

	_, err = NormalizedDifference([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
}

func TestComputeNDVI(t *testing.T) {
	img := testImage([]float64{0.1, 0.2}, []float64{0.3, 0.2}, []float64{4, 4})

	ndvi, err := ComputeNDVI(img)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ndvi.Values[0], 1e-12)
	assert.InDelta(t, 0.0, ndvi.Values[1], 1e-12)
	assert.Equal(t, img.Date, ndvi.Date)
	assert.Equal(t, 2, ndvi.ValidCount())

	delete(img.Bands, BandNIR)
	_, err = ComputeNDVI(img)
	assert.ErrorIs(t, err, ErrMissingBand)
}

func TestCloudCoverPercent(t *testing.T) {
	img := testImage(nil, nil, []float64{0, 3, 4, 8, 9, 10, 5, 4, 6})
	assert.InDelta(t, 50.0, CloudCoverPercent(img), 1e-9)

	empty := testImage(nil, nil, []float64{0, 0})
	assert.Equal(t, 100.0, CloudCoverPercent(empty))
}

func TestSeasonOf(t *testing.T) {
	tests := []struct {
		month time.Month
		want  Season
	}{
		{time.April, SeasonDry},
		{time.May, SeasonWet},
		{time.August, SeasonWet},
		{time.October, SeasonWet},
		{time.November, SeasonDry},
		{time.January, SeasonDry},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			date := time.Date(2023, tt.month, 15, 0, 0, 0, 0, time.UTC)
			assert.Equal(t, tt.want, SeasonOf(date, time.May, time.October))
		})
	}

	wrapped := time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, SeasonWet, SeasonOf(wrapped, time.November, time.March))
}

func TestGridEqual(t *testing.T) {
	g := Grid{OriginX: 500000, OriginY: 9000000, Resolution: 10, Width: 4, Height: 3}
	assert.True(t, g.Equal(g))

	shifted := g
	shifted.OriginX += 0.001
	assert.True(t, g.Equal(shifted))

	shifted.OriginX += 5
	assert.False(t, g.Equal(shifted))

	wider := g
	wider.Width = 5
	assert.False(t, g.Equal(wider))
}
