// Package metrics exposes batch run metrics for a Prometheus push gateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	JobName = "mine_impact_monitor"

	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// RunMetrics contains the metrics of one assessment run.
type RunMetrics struct {
	registry *prometheus.Registry

	regionsTotal   *prometheus.CounterVec
	regionDuration prometheus.Histogram
	imagesTotal    prometheus.Counter

	areaHa   *prometheus.GaugeVec
	severity *prometheus.GaugeVec
	impact   *prometheus.GaugeVec
	riskInfo *prometheus.GaugeVec

	lastRun prometheus.Gauge
}

func NewRunMetrics(registry *prometheus.Registry) (*RunMetrics, error) {
	m := &RunMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RunMetrics) initMetrics() {
	m.regionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mine_regions_total",
			Help: "Number of regions handled by the run",
		},
		[]string{"status"},
	)

	m.regionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mine_region_duration_seconds",
			Help:    "Time taken to assess one region",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	m.imagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mine_images_total",
			Help: "Number of scenes analysed across all regions",
		},
	)

	m.areaHa = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mine_affected_area_hectares",
			Help: "Area of persistent vegetation loss per region",
		},
		[]string{"region"},
	)

	m.severity = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mine_severity",
			Help: "Mean index drop over persistent change pixels per region",
		},
		[]string{"region"},
	)

	m.impact = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mine_impact_score",
			Help: "Area times severity magnitude per region",
		},
		[]string{"region"},
	)

	m.riskInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mine_risk",
			Help: "Risk level of a region, set to 1 for the assigned level",
		},
		[]string{"region", "level"},
	)

	m.lastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mine_last_run_timestamp_seconds",
			Help: "Completion time of the last run",
		},
	)
}

// Describe implements the Collector interface
func (m *RunMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.regionsTotal.Describe(ch)
	m.regionDuration.Describe(ch)
	m.imagesTotal.Describe(ch)
	m.areaHa.Describe(ch)
	m.severity.Describe(ch)
	m.impact.Describe(ch)
	m.riskInfo.Describe(ch)
	m.lastRun.Describe(ch)
}

// Collect implements the Collector interface
func (m *RunMetrics) Collect(ch chan<- prometheus.Metric) {
	m.regionsTotal.Collect(ch)
	m.regionDuration.Collect(ch)
	m.imagesTotal.Collect(ch)
	m.areaHa.Collect(ch)
	m.severity.Collect(ch)
	m.impact.Collect(ch)
	m.riskInfo.Collect(ch)
	m.lastRun.Collect(ch)
}

func (m *RunMetrics) RecordRegion(status string, duration time.Duration, images int) {
	m.regionsTotal.WithLabelValues(status).Inc()
	if status != StatusRejected {
		m.regionDuration.Observe(duration.Seconds())
	}
	m.imagesTotal.Add(float64(images))
}

func (m *RunMetrics) RecordAssessments(ranked []risk.Assessment) {
	for _, a := range ranked {
		m.areaHa.WithLabelValues(a.RegionID).Set(a.AreaHa)
		m.severity.WithLabelValues(a.RegionID).Set(a.Severity)
		m.impact.WithLabelValues(a.RegionID).Set(a.Impact)
		for _, level := range []risk.Level{risk.High, risk.Moderate, risk.Low} {
			value := 0.0
			if a.Risk == level {
				value = 1
			}
			m.riskInfo.WithLabelValues(a.RegionID, string(level)).Set(value)
		}
	}
}

func (m *RunMetrics) MarkCompleted(at time.Time) {
	m.lastRun.Set(float64(at.Unix()))
}

// Push sends every metric of the registry to the push gateway at url,
// replacing the previous push of the job.
func (m *RunMetrics) Push(ctx context.Context, url string, client push.HTTPDoer) error {
	pusher := push.New(url, JobName).Gatherer(m.registry)
	if client != nil {
		pusher = pusher.Client(client)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
