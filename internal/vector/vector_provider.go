package vector

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/utils"
	"github.com/paulmach/orb/geojson"
)

// Provider loads regions from any vector dataset GDAL can open (shapefile,
// GeoPackage, KML, GeoJSON). Coordinates must already be WGS84 lon/lat.
type Provider struct {
	Path         string
	Prefix       string
	NameField    string
	BufferMeters float64
	MaxRegions   int
}

func NewProvider(path, prefix string, bufferMeters float64, maxRegions int) *Provider {
	return &Provider{
		Path:         path,
		Prefix:       prefix,
		NameField:    "name",
		BufferMeters: bufferMeters,
		MaxRegions:   maxRegions,
	}
}

type feature struct {
	name string
	json string
	err  error
}

func (p *Provider) readFeatures() ([]feature, error) {
	var (
		features []feature
		openErr  error
	)

	utils.ExecuteWithMutex(func() {
		godal.RegisterAll()
		ds, err := godal.Open(p.Path, godal.VectorOnly())
		if err != nil {
			openErr = fmt.Errorf("failed to open vector file %s: %w", p.Path, err)
			return
		}
		defer ds.Close()

		layers := ds.Layers()
		if len(layers) == 0 {
			openErr = fmt.Errorf("no layers found in %s", p.Path)
			return
		}

		layer := layers[0]
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}

			f := feature{}
			if val, ok := feat.Fields()[p.NameField]; ok {
				f.name = val.String()
			}
			geom := feat.Geometry()
			if geom == nil || geom.Empty() {
				f.err = fmt.Errorf("%w: missing geometry", region.ErrInvalidGeometry)
			} else {
				f.json, f.err = geom.GeoJSON()
			}
			features = append(features, f)
			feat.Close()
		}
	})

	return features, openErr
}

func (p *Provider) Regions(ctx context.Context) ([]region.Region, []region.Rejected, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	features, err := p.readFeatures()
	if err != nil {
		return nil, nil, err
	}

	var (
		regions  []region.Region
		rejected []region.Rejected
	)
	for i, f := range features {
		if f.err != nil {
			rejected = append(rejected, region.Rejected{Index: i, Name: f.name, Reason: f.err.Error()})
			continue
		}

		g, err := geojson.UnmarshalGeometry([]byte(f.json))
		if err != nil {
			rejected = append(rejected, region.Rejected{Index: i, Name: f.name, Reason: err.Error()})
			continue
		}

		r, err := region.New(p.Prefix, i, f.name, g.Geometry(), p.BufferMeters)
		if err != nil {
			rejected = append(rejected, region.Rejected{Index: i, Name: f.name, Reason: err.Error()})
			continue
		}
		regions = append(regions, r)
	}

	return region.Limit(regions, p.MaxRegions), rejected, nil
}
