package sentinel

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	BandRed = "B04"
	BandNIR = "B08"
	BandSCL = "SCL"

	// DefaultResolution is the Sentinel-2 10 m grid used for every region.
	DefaultResolution = 10.0
)

var ErrMissingBand = errors.New("missing band")

// Grid is the raster frame shared by every image of one region.
type Grid struct {
	OriginX    float64
	OriginY    float64
	Resolution float64
	Width      int
	Height     int
}

func (g Grid) Size() int {
	return g.Width * g.Height
}

// Equal reports whether two grids are pixel aligned. Origins are compared with
// a tolerance of a thousandth of a pixel.
func (g Grid) Equal(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height {
		return false
	}
	tol := math.Abs(g.Resolution) / 1000
	if tol == 0 {
		tol = 1e-9
	}
	return math.Abs(g.OriginX-o.OriginX) <= tol &&
		math.Abs(g.OriginY-o.OriginY) <= tol &&
		math.Abs(g.Resolution-o.Resolution) <= tol
}

func (g Grid) String() string {
	return fmt.Sprintf("%dx%d@%.1fm (%.6f, %.6f)", g.Width, g.Height, g.Resolution, g.OriginX, g.OriginY)
}

// Image is one acquisition over a region grid. Bands and SCL are row-major
// arrays of Grid.Size() values.
type Image struct {
	Date   time.Time
	Season Season
	Grid   Grid
	Bands  map[string][]float64
	SCL    []float64
}

func (img Image) Band(name string) ([]float64, error) {
	values, ok := img.Bands[name]
	if !ok {
		return nil, fmt.Errorf("%w %s on %s", ErrMissingBand, name, img.Date.Format(time.DateOnly))
	}
	if len(values) != img.Grid.Size() {
		return nil, fmt.Errorf("band %s has %d values, grid %s expects %d", name, len(values), img.Grid, img.Grid.Size())
	}
	return values, nil
}

// IndexImage holds one normalized index value per pixel. Invalid pixels are NaN.
type IndexImage struct {
	Date   time.Time
	Season Season
	Grid   Grid
	Values []float64
}

// ValidCount returns the number of non-NaN pixels.
func (ix IndexImage) ValidCount() int {
	count := 0
	for _, v := range ix.Values {
		if !math.IsNaN(v) {
			count++
		}
	}
	return count
}

// Query describes the acquisitions requested from an image source.
type Query struct {
	StartDate time.Time
	EndDate   time.Time
	MaxCloud  float64
	Bands     []string
}

// Contains reports whether date falls in the query range. A zero bound is
// open.
func (q Query) Contains(date time.Time) bool {
	return (q.StartDate.IsZero() || !date.Before(q.StartDate)) &&
		(q.EndDate.IsZero() || !date.After(q.EndDate))
}
