package region

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/serjvanilla/go-overpass"
)

const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// OverpassProvider finds mining sites as OSM landuse=quarry ways inside a
// bounding box. Ways are ordered by OSM id so the region ids are stable while
// the map data does not change.
type OverpassProvider struct {
	client       overpass.Client
	BBox         orb.Bound
	Prefix       string
	BufferMeters float64
	MaxRegions   int
}

func NewOverpassProvider(endpoint string, timeout time.Duration, bbox orb.Bound, prefix string, bufferMeters float64, maxRegions int) *OverpassProvider {
	httpClient := &http.Client{
		Timeout: timeout,
	}
	return NewOverpassProviderWithClient(endpoint, httpClient, bbox, prefix, bufferMeters, maxRegions)
}

func NewOverpassProviderWithClient(endpoint string, httpClient *http.Client, bbox orb.Bound, prefix string, bufferMeters float64, maxRegions int) *OverpassProvider {
	if endpoint == "" {
		endpoint = DefaultOverpassURL
	}
	return &OverpassProvider{
		client:       overpass.NewWithSettings(endpoint, 2, httpClient),
		BBox:         bbox,
		Prefix:       prefix,
		BufferMeters: bufferMeters,
		MaxRegions:   maxRegions,
	}
}

func quarryQuery(bbox orb.Bound) string {
	return fmt.Sprintf(`
		[out:json][timeout:90];
		(
			way["landuse"="quarry"](%f,%f,%f,%f);
		);
		out body;
		>;
		out skel qt;
	`, bbox.Min.Lat(), bbox.Min.Lon(), bbox.Max.Lat(), bbox.Max.Lon())
}

func (p *OverpassProvider) Regions(ctx context.Context) ([]Region, []Rejected, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	result, err := p.client.Query(quarryQuery(p.BBox))
	if err != nil {
		return nil, nil, fmt.Errorf("overpass query failed: %w", err)
	}

	ways := make([]*overpass.Way, 0, len(result.Ways))
	for _, way := range result.Ways {
		ways = append(ways, way)
	}
	sort.Slice(ways, func(i, j int) bool {
		return ways[i].ID < ways[j].ID
	})

	var (
		regions  []Region
		rejected []Rejected
	)
	for i, way := range ways {
		name := way.Tags["name"]
		if name == "" {
			name = fmt.Sprintf("way/%d", way.ID)
		}

		ring := make(orb.Ring, 0, len(way.Nodes))
		for _, node := range way.Nodes {
			if node == nil {
				continue
			}
			ring = append(ring, orb.Point{node.Lon, node.Lat})
		}

		r, err := New(p.Prefix, i, name, orb.Polygon{ring}, p.BufferMeters)
		if err != nil {
			rejected = append(rejected, Rejected{Index: i, Name: name, Reason: err.Error()})
			continue
		}
		regions = append(regions, r)
	}

	return Limit(regions, p.MaxRegions), rejected, nil
}

// ParseBBox reads a "south,west,north,east" bounding box.
func ParseBBox(s string) (orb.Bound, error) {
	var south, west, north, east float64
	if _, err := fmt.Sscanf(s, "%f,%f,%f,%f", &south, &west, &north, &east); err != nil {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q, expected south,west,north,east: %w", s, err)
	}
	if south > north || west > east {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q: min greater than max", s)
	}
	return orb.Bound{Min: orb.Point{west, south}, Max: orb.Point{east, north}}, nil
}
