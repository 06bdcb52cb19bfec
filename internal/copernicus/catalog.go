package copernicus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

const maxCatalogPages = 20

// Scene is one Sentinel-2 L2A acquisition day found by the catalog.
type Scene struct {
	Date       time.Time
	CloudCover float64
}

type catalogSearch struct {
	BBox        [4]float64 `json:"bbox"`
	Datetime    string     `json:"datetime"`
	Collections []string   `json:"collections"`
	Limit       int        `json:"limit"`
	Next        int        `json:"next,omitempty"`
}

type catalogContext struct {
	Next     int `json:"next"`
	Limit    int `json:"limit"`
	Returned int `json:"returned"`
}

// SearchScenes lists the acquisition days over bound between start and end
// whose catalog cloud cover does not exceed maxCloud. Several granules on the
// same day are merged, keeping the lowest cloud cover. Scenes are returned in
// ascending date order.
func (c *Client) SearchScenes(ctx context.Context, bound orb.Bound, start, end time.Time, maxCloud float64) ([]Scene, error) {
	byDay := make(map[time.Time]float64)

	search := catalogSearch{
		BBox:        [4]float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
		Datetime:    fmt.Sprintf("%s/%s", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)),
		Collections: []string{"sentinel-2-l2a"},
		Limit:       100,
	}

	for page := 0; page < maxCatalogPages; page++ {
		fc, next, err := c.searchPage(ctx, search)
		if err != nil {
			return nil, err
		}

		for _, feature := range fc.Features {
			datetime := feature.Properties.MustString("datetime", "")
			date, err := time.Parse(time.RFC3339, datetime)
			if err != nil {
				continue
			}
			cloud := feature.Properties.MustFloat64("eo:cloud_cover", 100)
			if maxCloud > 0 && cloud > maxCloud {
				continue
			}
			day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
			if current, ok := byDay[day]; !ok || cloud < current {
				byDay[day] = cloud
			}
		}

		if next == 0 {
			break
		}
		search.Next = next
	}

	scenes := make([]Scene, 0, len(byDay))
	for day, cloud := range byDay {
		scenes = append(scenes, Scene{Date: day, CloudCover: cloud})
	}
	sort.Slice(scenes, func(i, j int) bool {
		return scenes[i].Date.Before(scenes[j].Date)
	})
	return scenes, nil
}

func (c *Client) searchPage(ctx context.Context, search catalogSearch) (*geojson.FeatureCollection, int, error) {
	requestBody, err := json.Marshal(search)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal catalog search: %w", err)
	}

	body, err := withCredentials(ctx, c, "search catalog", func(httpClient *http.Client) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.catalogURL, bytes.NewReader(requestBody))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		return do(httpClient, req)
	})
	if err != nil {
		return nil, 0, err
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to parse catalog response: %w", err)
	}

	var pageContext catalogContext
	if raw, ok := fc.ExtraMembers["context"]; ok {
		data, err := json.Marshal(raw)
		if err == nil {
			_ = json.Unmarshal(data, &pageContext)
		}
	}
	return fc, pageContext.Next, nil
}
