package copernicus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokenURL   = "https://auth.test/token"
	processURL = "https://sh.test/api/v1/process"
	catalogURL = "https://sh.test/api/v1/catalog/1.0.0/search"
)

var testBound = orb.Bound{Min: orb.Point{-55.1, -4.1}, Max: orb.Point{-55.0, -4.0}}

// tokenResponder issues "tok-<client id>" access tokens.
func tokenResponder(req *http.Request) (*http.Response, error) {
	clientID, _, ok := req.BasicAuth()
	if !ok {
		_ = req.ParseForm()
		clientID = req.Form.Get("client_id")
	}
	return httpmock.NewJsonResponse(http.StatusOK, map[string]any{
		"access_token": "tok-" + clientID,
		"token_type":   "Bearer",
		"expires_in":   3600,
	})
}

func newTestClient(t *testing.T, mock *httpmock.MockTransport, ids, secrets string) *Client {
	t.Helper()
	mock.RegisterResponder(http.MethodPost, tokenURL, tokenResponder)

	client, err := NewClient(Config{
		ClientIDs:       ids,
		ClientSecrets:   secrets,
		TokenURL:        tokenURL,
		ProcessURL:      processURL,
		CatalogURL:      catalogURL,
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		HTTPClient:      &http.Client{Transport: mock},
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewClient(Config{TokenURL: tokenURL})
	assert.ErrorIs(t, err, ErrMissingCreds)

	_, err = NewClient(Config{ClientIDs: "a,b", ClientSecrets: "x", TokenURL: tokenURL})
	assert.Error(t, err)
}

func TestRequestImage(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a", "secret")

	var payload map[string]any
	mock.RegisterResponder(http.MethodPost, processURL, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "Bearer tok-a", req.Header.Get("Authorization"))
		body, _ := io.ReadAll(req.Body)
		require.NoError(t, json.Unmarshal(body, &payload))
		return httpmock.NewBytesResponse(http.StatusOK, []byte("TIFF")), nil
	})

	data, err := client.RequestImage(context.Background(), testBound, time.Date(2023, 5, 1, 10, 30, 0, 0, time.UTC), 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("TIFF"), data)

	input := payload["input"].(map[string]any)
	dataFilter := input["data"].([]any)[0].(map[string]any)["dataFilter"].(map[string]any)
	timeRange := dataFilter["timeRange"].(map[string]any)
	assert.Equal(t, "2023-05-01T00:00:00Z", timeRange["from"])
	assert.Equal(t, "2023-05-01T23:59:59Z", timeRange["to"])
	assert.Contains(t, payload["evalscript"], "sample.SCL")
}

func TestRequestImageRetries(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a", "secret")

	mock.RegisterResponder(http.MethodPost, processURL, httpmock.ResponderFromMultipleResponses([]*http.Response{
		httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"),
		httpmock.NewStringResponse(http.StatusTooManyRequests, "slow down"),
		httpmock.NewStringResponse(http.StatusOK, "TIFF"),
	}))

	data, err := client.RequestImage(context.Background(), testBound, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("TIFF"), data)
	assert.Equal(t, 3, mock.GetCallCountInfo()["POST "+processURL])
}

func TestRequestImageGivesUp(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a", "secret")
	mock.RegisterResponder(http.MethodPost, processURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	_, err := client.RequestImage(context.Background(), testBound, time.Now(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, mock.GetCallCountInfo()["POST "+processURL])
}

func TestRequestImageRotatesCredentials(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a,b", "s1,s2")

	mock.RegisterResponder(http.MethodPost, processURL, func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") == "Bearer tok-a" {
			return httpmock.NewStringResponse(http.StatusForbidden, `{"error":{"status":403}}`), nil
		}
		return httpmock.NewStringResponse(http.StatusOK, "TIFF"), nil
	})

	data, err := client.RequestImage(context.Background(), testBound, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("TIFF"), data)
	assert.Equal(t, 2, mock.GetCallCountInfo()["POST "+processURL])
}

func TestRequestImageUnauthorized(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a", "secret")
	mock.RegisterResponder(http.MethodPost, processURL, httpmock.NewStringResponder(http.StatusForbidden, "forbidden"))

	_, err := client.RequestImage(context.Background(), testBound, time.Now(), 10)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, mock.GetCallCountInfo()["POST "+processURL])
}

func TestRequestImageCancelled(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a", "secret")
	mock.RegisterResponder(http.MethodPost, processURL, httpmock.NewStringResponder(http.StatusBadGateway, "down"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.RequestImage(ctx, testBound, time.Now(), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDimensions(t *testing.T) {
	width, height := Dimensions(testBound, 10)
	// 0.1 degree is about 11.1 km at this latitude.
	assert.InDelta(t, 1109, width, 5)
	assert.InDelta(t, 1112, height, 5)

	width, height = Dimensions(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}, 10)
	assert.Equal(t, maxPixels, width)
	assert.Equal(t, maxPixels, height)
}

func TestSearchScenes(t *testing.T) {
	mock := httpmock.NewMockTransport()
	client := newTestClient(t, mock, "a", "secret")

	pages := []string{
		`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-55.05,-4.05]},"properties":{"datetime":"2023-05-06T13:50:01Z","eo:cloud_cover":30.5}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-55.05,-4.05]},"properties":{"datetime":"2023-05-06T13:50:15Z","eo:cloud_cover":12.0}},
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-55.05,-4.05]},"properties":{"datetime":"2023-05-01T13:50:01Z","eo:cloud_cover":95.0}}
		],"context":{"next":100,"limit":100,"returned":3}}`,
		`{"type":"FeatureCollection","features":[
			{"type":"Feature","geometry":{"type":"Point","coordinates":[-55.05,-4.05]},"properties":{"datetime":"2023-05-03T13:50:01Z","eo:cloud_cover":5.0}}
		],"context":{"limit":100,"returned":1}}`,
	}
	var requests []catalogSearch
	mock.RegisterResponder(http.MethodPost, catalogURL, func(req *http.Request) (*http.Response, error) {
		var search catalogSearch
		require.NoError(t, json.NewDecoder(req.Body).Decode(&search))
		requests = append(requests, search)
		return httpmock.NewStringResponse(http.StatusOK, pages[len(requests)-1]), nil
	})

	start := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	scenes, err := client.SearchScenes(context.Background(), testBound, start, start.AddDate(0, 1, 0), 60)
	require.NoError(t, err)

	require.Len(t, scenes, 2)
	assert.Equal(t, time.Date(2023, 5, 3, 0, 0, 0, 0, time.UTC), scenes[0].Date)
	assert.Equal(t, time.Date(2023, 5, 6, 0, 0, 0, 0, time.UTC), scenes[1].Date)
	assert.Equal(t, 12.0, scenes[1].CloudCover)

	require.Len(t, requests, 2)
	assert.Equal(t, 0, requests[0].Next)
	assert.Equal(t, 100, requests[1].Next)
	assert.Equal(t, []string{"sentinel-2-l2a"}, requests[0].Collections)
	assert.Equal(t, "2023-05-01T00:00:00Z/2023-06-01T00:00:00Z", requests[0].Datetime)
}
