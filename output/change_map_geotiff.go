package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest-guardian/mine-impact-monitor/internal/delta"
	"github.com/forest-guardian/mine-impact-monitor/internal/imagery"
)

// CreateChangeGeoTIFF stores the period change and the persistent change
// count of a region result as a two band GeoTIFF in WGS84.
func CreateChangeGeoTIFF(outputPath string, result delta.Result) error {
	change, err := result.ChangeMap()
	if err != nil {
		return fmt.Errorf("region %s: %w", result.RegionID, err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create map folder: %w", err)
	}

	counts := make([]float64, result.Grid.Size())
	for i, c := range result.Mask.Counts {
		counts[i] = float64(c)
	}
	return imagery.WriteGeoTIFF(outputPath, result.Grid, 4326, change, counts)
}
