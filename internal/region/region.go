package region

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

const (
	DefaultPrefix       = "MINE"
	DefaultBufferMeters = 500.0
)

var ErrInvalidGeometry = errors.New("invalid geometry")

// Region is a monitored site. It is not modified after a provider builds it.
type Region struct {
	ID           string
	Name         string
	Polygon      orb.Polygon
	BufferMeters float64
	AOI          orb.Bound
}

// Rejected records an input feature that could not become a region.
type Rejected struct {
	Index  int
	Name   string
	Reason string
}

type Provider interface {
	Regions(ctx context.Context) ([]Region, []Rejected, error)
}

func FormatID(prefix string, index int) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s_%04d", prefix, index)
}

func (r Region) Centroid() (float64, float64, error) {
	centroid, area := planar.CentroidArea(r.Polygon)
	if area <= 0 {
		return 0, 0, errors.New("error getting centroid")
	}
	return centroid.Y(), centroid.X(), nil
}

// BuildAOI pads the polygon envelope by bufferMeters in Web Mercator and
// returns the result as a WGS84 bound.
func BuildAOI(polygon orb.Polygon, bufferMeters float64) (orb.Bound, error) {
	if err := Validate(polygon); err != nil {
		return orb.Bound{}, err
	}
	if bufferMeters < 0 || math.IsNaN(bufferMeters) {
		return orb.Bound{}, fmt.Errorf("buffer must not be negative, got %f", bufferMeters)
	}

	mercator := project.Polygon(polygon.Clone(), project.WGS84.ToMercator)
	padded := mercator.Bound().Pad(bufferMeters)

	return orb.Bound{
		Min: project.Point(padded.Min, project.Mercator.ToWGS84),
		Max: project.Point(padded.Max, project.Mercator.ToWGS84),
	}, nil
}

// Validate checks that the polygon has a closed outer ring with WGS84
// coordinates and a non-zero area.
func Validate(polygon orb.Polygon) error {
	if len(polygon) == 0 {
		return fmt.Errorf("%w: empty polygon", ErrInvalidGeometry)
	}
	for i, ring := range polygon {
		if len(ring) < 4 {
			return fmt.Errorf("%w: ring %d has %d points", ErrInvalidGeometry, i, len(ring))
		}
		if !ring.Closed() {
			return fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, i)
		}
		for _, p := range ring {
			lon, lat := p.Lon(), p.Lat()
			if math.IsNaN(lon) || math.IsNaN(lat) || lon < -180 || lon > 180 || lat < -90 || lat > 90 {
				return fmt.Errorf("%w: coordinate (%f, %f) out of range", ErrInvalidGeometry, lon, lat)
			}
		}
	}
	if math.Abs(planar.Area(polygon)) == 0 {
		return fmt.Errorf("%w: polygon has no area", ErrInvalidGeometry)
	}
	return nil
}

// PolygonOf extracts the polygon of a geometry. For multipolygons the part with
// the largest area is kept.
func PolygonOf(g orb.Geometry) (orb.Polygon, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		return geom, nil
	case orb.MultiPolygon:
		var (
			largest orb.Polygon
			area    float64
		)
		for _, p := range geom {
			if a := math.Abs(planar.Area(p)); largest == nil || a > area {
				largest, area = p, a
			}
		}
		if largest == nil {
			return nil, fmt.Errorf("%w: empty multipolygon", ErrInvalidGeometry)
		}
		return largest, nil
	case nil:
		return nil, fmt.Errorf("%w: missing geometry", ErrInvalidGeometry)
	default:
		return nil, fmt.Errorf("%w: unsupported geometry type %s", ErrInvalidGeometry, g.GeoJSONType())
	}
}

// New builds a region from a geometry, assigning its id from the input index.
func New(prefix string, index int, name string, g orb.Geometry, bufferMeters float64) (Region, error) {
	polygon, err := PolygonOf(g)
	if err != nil {
		return Region{}, err
	}
	aoi, err := BuildAOI(polygon, bufferMeters)
	if err != nil {
		return Region{}, err
	}
	id := FormatID(prefix, index)
	if name == "" {
		name = id
	}
	return Region{
		ID:           id,
		Name:         name,
		Polygon:      polygon,
		BufferMeters: bufferMeters,
		AOI:          aoi,
	}, nil
}

// Limit keeps the first n regions. Zero or less keeps all of them.
func Limit(regions []Region, n int) []Region {
	if n <= 0 || len(regions) <= n {
		return regions
	}
	return regions[:n]
}
