package delivery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forest-guardian/mine-impact-monitor/internal/final"
	"github.com/forest-guardian/mine-impact-monitor/internal/region"
)

// LoadRegions reads the regions of a provider and logs every rejected
// feature.
func LoadRegions(ctx context.Context, provider region.Provider) ([]region.Region, []region.Rejected, error) {
	regions, rejected, err := provider.Regions(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load regions: %w", err)
	}
	for _, r := range rejected {
		slog.Warn("region rejected", "index", r.Index, "name", r.Name, "reason", r.Reason)
	}
	if len(regions) == 0 {
		return nil, rejected, ErrNoRegions
	}
	return regions, rejected, nil
}

func RegionRows(regions []region.Region) []final.RegionRow {
	rows := make([]final.RegionRow, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, final.RegionRow{
			RegionID:     r.ID,
			Name:         r.Name,
			BufferMeters: r.BufferMeters,
			MinLon:       r.AOI.Min.Lon(),
			MinLat:       r.AOI.Min.Lat(),
			MaxLon:       r.AOI.Max.Lon(),
			MaxLat:       r.AOI.Max.Lat(),
		})
	}
	return rows
}
