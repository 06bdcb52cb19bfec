package final

import "fmt"

const RegionsFileName = "mine_regions.csv"

// RegionRow describes a region and the bounds of its analysis extent.
type RegionRow struct {
	RegionID     string  `csv:"region_id"`
	Name         string  `csv:"name"`
	BufferMeters float64 `csv:"buffer_m"`
	MinLon       float64 `csv:"min_lon"`
	MinLat       float64 `csv:"min_lat"`
	MaxLon       float64 `csv:"max_lon"`
	MaxLat       float64 `csv:"max_lat"`
}

func SaveRegions(filePath string, rows []RegionRow) error {
	if len(rows) == 0 {
		return fmt.Errorf("no regions to save")
	}
	return saveCSV(filePath, &rows)
}

func GetSavedRegions(filePath string) ([]RegionRow, error) {
	var rows []RegionRow
	if err := loadCSV(filePath, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
