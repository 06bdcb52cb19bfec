package metrics

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRegion(t *testing.T) {
	m, err := NewRunMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRegion(StatusSucceeded, 2*time.Second, 12)
	m.RecordRegion(StatusSucceeded, time.Second, 8)
	m.RecordRegion(StatusFailed, time.Second, 0)
	m.RecordRegion(StatusRejected, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.regionsTotal.WithLabelValues(StatusSucceeded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.regionsTotal.WithLabelValues(StatusFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.regionsTotal.WithLabelValues(StatusRejected)))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.imagesTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.regionDuration, "mine_region_duration_seconds"))
}

func TestRecordAssessments(t *testing.T) {
	m, err := NewRunMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	ranked := risk.Rank([]risk.Assessment{
		risk.Assess("MINE_0000", 120, -0.2, risk.DefaultThresholds()),
		risk.Assess("MINE_0001", 2, -0.01, risk.DefaultThresholds()),
	})
	m.RecordAssessments(ranked)

	assert.Equal(t, 120.0, testutil.ToFloat64(m.areaHa.WithLabelValues("MINE_0000")))
	assert.InDelta(t, 24.0, testutil.ToFloat64(m.impact.WithLabelValues("MINE_0000")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskInfo.WithLabelValues("MINE_0000", "HIGH")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.riskInfo.WithLabelValues("MINE_0000", "LOW")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.riskInfo.WithLabelValues("MINE_0001", "LOW")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.severity))
}

func TestDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewRunMetrics(registry)
	require.NoError(t, err)
	_, err = NewRunMetrics(registry)
	assert.Error(t, err)
}

var jobURL = regexp.MustCompile(`^http://pushgateway\.test:9091/metrics/job/mine_impact_monitor`)

func TestPush(t *testing.T) {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	defer httpmock.DeactivateAndReset()

	var body []byte
	httpmock.RegisterRegexpResponder(http.MethodPut, jobURL,
		func(req *http.Request) (*http.Response, error) {
			var err error
			body, err = io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			return httpmock.NewStringResponse(http.StatusOK, ""), nil
		})

	m, err := NewRunMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.RecordRegion(StatusSucceeded, time.Second, 3)
	m.MarkCompleted(time.Unix(1700000000, 0))

	require.NoError(t, m.Push(context.Background(), "http://pushgateway.test:9091", client))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
	assert.NotEmpty(t, body)

	httpmock.RegisterRegexpResponder(http.MethodPut, jobURL, httpmock.NewStringResponder(http.StatusInternalServerError, "down"))
	assert.Error(t, m.Push(context.Background(), "http://pushgateway.test:9091", client))
}
