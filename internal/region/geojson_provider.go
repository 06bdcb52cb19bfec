package region

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb/geojson"
)

// GeoJSONProvider loads regions from a FeatureCollection file. Region ids
// follow feature order, so rejected features leave a gap instead of shifting
// the ids of the features after them.
type GeoJSONProvider struct {
	Path         string
	Prefix       string
	NameProperty string
	BufferMeters float64
	MaxRegions   int
}

func NewGeoJSONProvider(path, prefix string, bufferMeters float64, maxRegions int) *GeoJSONProvider {
	return &GeoJSONProvider{
		Path:         path,
		Prefix:       prefix,
		NameProperty: "name",
		BufferMeters: bufferMeters,
		MaxRegions:   maxRegions,
	}
}

func (p *GeoJSONProvider) Regions(ctx context.Context) ([]Region, []Rejected, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read regions file: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse regions file %s: %w", p.Path, err)
	}

	return p.fromFeatures(fc.Features)
}

func (p *GeoJSONProvider) fromFeatures(features []*geojson.Feature) ([]Region, []Rejected, error) {
	var (
		regions  []Region
		rejected []Rejected
	)
	for i, feature := range features {
		name := ""
		if p.NameProperty != "" {
			name = feature.Properties.MustString(p.NameProperty, "")
		}

		r, err := New(p.Prefix, i, name, feature.Geometry, p.BufferMeters)
		if err != nil {
			rejected = append(rejected, Rejected{Index: i, Name: name, Reason: err.Error()})
			continue
		}
		regions = append(regions, r)
	}

	return Limit(regions, p.MaxRegions), rejected, nil
}
