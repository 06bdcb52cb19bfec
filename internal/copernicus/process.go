package copernicus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

const maxPixels = 2500

const evalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B04", "B08", "SCL"],
        output: {
          id: "default",
          bands: 3,
          sampleType: SampleType.FLOAT32,
        },
      }
    }

    function evaluatePixel(sample) {
      return [sample.B04, sample.B08, sample.SCL];
    }
  `

// BandOrder is the band layout of the GeoTIFFs returned by RequestImage.
var BandOrder = []string{"B04", "B08", "SCL"}

// Dimensions returns the pixel size of a bound at the given resolution in
// meters, clamped to the process API limits.
func Dimensions(bound orb.Bound, resolution float64) (int, int) {
	midLat := (bound.Min.Lat() + bound.Max.Lat()) / 2
	widthM := geo.Distance(orb.Point{bound.Min.Lon(), midLat}, orb.Point{bound.Max.Lon(), midLat})
	heightM := geo.Distance(orb.Point{bound.Min.Lon(), bound.Min.Lat()}, orb.Point{bound.Min.Lon(), bound.Max.Lat()})
	return calculatePixels(widthM, resolution), calculatePixels(heightM, resolution)
}

func calculatePixels(distance, resolution float64) int {
	pixels := int(math.Round(distance / resolution))
	if pixels < 1 {
		return 1
	}
	if pixels > maxPixels {
		return maxPixels
	}
	return pixels
}

type processRequest struct {
	Input      processInput  `json:"input"`
	Output     processOutput `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type processInput struct {
	Bounds processBounds `json:"bounds"`
	Data   []processData `json:"data"`
}

type processBounds struct {
	BBox       [4]float64        `json:"bbox"`
	Properties map[string]string `json:"properties"`
}

type processData struct {
	Type       string            `json:"type"`
	DataFilter processDataFilter `json:"dataFilter"`
}

type processDataFilter struct {
	TimeRange  timeRange `json:"timeRange"`
	Mosaicking string    `json:"mosaickingOrder"`
}

type timeRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type processOutput struct {
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Responses []processResponse `json:"responses"`
}

type processResponse struct {
	Identifier string            `json:"identifier"`
	Format     map[string]string `json:"format"`
}

func newProcessRequest(bound orb.Bound, date time.Time, width, height int) processRequest {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	return processRequest{
		Input: processInput{
			Bounds: processBounds{
				BBox:       [4]float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()},
				Properties: map[string]string{"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84"},
			},
			Data: []processData{{
				Type: "sentinel-2-l2a",
				DataFilter: processDataFilter{
					TimeRange: timeRange{
						From: day.Format(time.RFC3339),
						To:   day.Add(24*time.Hour - time.Second).Format(time.RFC3339),
					},
					Mosaicking: "leastCC",
				},
			}},
		},
		Output: processOutput{
			Width:  width,
			Height: height,
			Responses: []processResponse{{
				Identifier: "default",
				Format:     map[string]string{"type": "image/tiff"},
			}},
		},
		Evalscript: evalscript,
	}
}

// RequestImage downloads a GeoTIFF with the B04, B08 and SCL bands of the
// acquisition day over bound.
func (c *Client) RequestImage(ctx context.Context, bound orb.Bound, date time.Time, resolution float64) ([]byte, error) {
	width, height := Dimensions(bound, resolution)
	requestBody, err := json.Marshal(newProcessRequest(bound, date, width, height))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	name := fmt.Sprintf("request image %s", date.Format("2006-01-02"))
	return withCredentials(ctx, c, name, func(httpClient *http.Client) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.processURL, bytes.NewReader(requestBody))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "image/tiff")

		body, err := do(httpClient, req)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return nil, backoff.Permanent(ErrNoData)
		}
		return body, nil
	})
}
