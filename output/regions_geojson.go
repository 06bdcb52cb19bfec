package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/paulmach/orb/geojson"
)

// CreateRegionsGeoJSON writes the regions as a FeatureCollection. Regions
// with an assessment carry its risk, metrics and rank as properties.
func CreateRegionsGeoJSON(outputPath string, regions []region.Region, ranked []risk.Assessment) error {
	byRegion := make(map[string]risk.Assessment, len(ranked))
	for _, a := range ranked {
		byRegion[a.RegionID] = a
	}

	fc := geojson.NewFeatureCollection()
	for _, r := range regions {
		feature := geojson.NewFeature(r.Polygon)
		feature.ID = r.ID
		feature.BBox = geojson.NewBBox(r.AOI)
		feature.Properties["region_id"] = r.ID
		feature.Properties["name"] = r.Name
		feature.Properties["buffer_m"] = r.BufferMeters

		if a, ok := byRegion[r.ID]; ok {
			feature.Properties["area_ha"] = a.AreaHa
			feature.Properties["severity"] = a.Severity
			feature.Properties["risk"] = string(a.Risk)
			feature.Properties["impact"] = a.Impact
			feature.Properties["alert"] = a.Alert
			feature.Properties["rank"] = a.Rank
		}
		fc.Append(feature)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("error encoding GeoJSON: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("error creating GeoJSON file: %w", err)
	}
	return nil
}
