package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/delta"
	"github.com/forest-guardian/mine-impact-monitor/internal/imagery"
	"github.com/forest-guardian/mine-impact-monitor/internal/metrics"
	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
)

var ErrNoRegions = errors.New("no regions to assess")

// Assessor runs the change detection pipeline over many regions.
type Assessor struct {
	Source     imagery.Source
	Query      sentinel.Query
	Detection  delta.Config
	Thresholds risk.Thresholds
	Workers    int
	Quiet      bool

	// Metrics is optional.
	Metrics *metrics.RunMetrics
}

type RegionFailure struct {
	RegionID string
	Err      error
}

// Summary is the outcome of a run. Ranked holds the assessments of every
// region that completed, ordered by impact.
type Summary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Regions    []region.Region
	Ranked     []risk.Assessment
	Results    map[string]delta.Result
	Failed     []RegionFailure
	Rejected   []region.Rejected
}

type regionOutcome struct {
	index      int
	result     delta.Result
	assessment risk.Assessment
}

func (a *Assessor) workers() int {
	if a.Workers > 0 {
		return a.Workers
	}
	return runtime.NumCPU()
}

// Run assesses every region. A region that fails is logged and reported in
// the summary; the others go on. Run only returns an error when there is
// nothing to assess or the configuration is invalid.
func (a *Assessor) Run(ctx context.Context, regions []region.Region) (*Summary, error) {
	if len(regions) == 0 {
		return nil, ErrNoRegions
	}
	if err := a.Detection.Validate(); err != nil {
		return nil, err
	}
	if err := a.Thresholds.Validate(); err != nil {
		return nil, err
	}

	summary := &Summary{
		StartedAt: time.Now(),
		Regions:   regions,
		Results:   make(map[string]delta.Result, len(regions)),
	}

	var progressBar *progressbar.ProgressBar
	if a.Quiet {
		progressBar = progressbar.DefaultSilent(int64(len(regions)), "Assessing regions")
	} else {
		progressBar = progressbar.Default(int64(len(regions)), "Assessing regions")
	}

	var (
		mu       sync.Mutex
		outcomes []regionOutcome
	)

	wp := workerpool.New(a.workers())
	for i, r := range regions {
		wp.Submit(func() {
			start := time.Now()
			result, err := a.assessRegion(ctx, r)

			mu.Lock()
			defer mu.Unlock()
			progressBar.Add(1)

			if err != nil {
				slog.Error("region assessment failed", "region", r.ID, "error", err)
				summary.Failed = append(summary.Failed, RegionFailure{RegionID: r.ID, Err: err})
				a.recordRegion(metrics.StatusFailed, time.Since(start), 0)
				return
			}

			assessment := risk.Assess(r.ID, result.Metrics.AreaHa, result.Metrics.Severity, a.Thresholds)
			slog.Info("region assessed",
				"region", r.ID,
				"images", result.Metrics.Images,
				"area_ha", result.Metrics.AreaHa,
				"severity", result.Metrics.Severity,
				"risk", assessment.Risk)
			outcomes = append(outcomes, regionOutcome{index: i, result: result, assessment: assessment})
			a.recordRegion(metrics.StatusSucceeded, time.Since(start), result.Metrics.Images)
		})
	}
	wp.StopWait()

	// Input order decides ties in the ranking.
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].index < outcomes[j].index })
	sort.SliceStable(summary.Failed, func(i, j int) bool { return summary.Failed[i].RegionID < summary.Failed[j].RegionID })

	assessments := make([]risk.Assessment, 0, len(outcomes))
	for _, o := range outcomes {
		assessments = append(assessments, o.assessment)
		summary.Results[o.result.RegionID] = o.result
	}
	summary.Ranked = risk.Rank(assessments)
	summary.FinishedAt = time.Now()

	if a.Metrics != nil {
		a.Metrics.RecordAssessments(summary.Ranked)
		a.Metrics.MarkCompleted(summary.FinishedAt)
	}
	return summary, nil
}

func (a *Assessor) assessRegion(ctx context.Context, r region.Region) (delta.Result, error) {
	if err := ctx.Err(); err != nil {
		return delta.Result{}, err
	}

	images, err := imagery.Collect(ctx, a.Source, r, a.Query)
	if err != nil {
		return delta.Result{}, fmt.Errorf("failed to collect images: %w", err)
	}
	slog.Debug("collected images", "region", r.ID, "images", len(images))

	return delta.AnalyzeRegion(ctx, r.ID, images, a.Detection)
}

func (a *Assessor) recordRegion(status string, duration time.Duration, images int) {
	if a.Metrics != nil {
		a.Metrics.RecordRegion(status, duration, images)
	}
}

// RecordRejected adds the features a provider could not turn into regions.
func (s *Summary) RecordRejected(rejected []region.Rejected, m *metrics.RunMetrics) {
	s.Rejected = append(s.Rejected, rejected...)
	if m == nil {
		return
	}
	for range rejected {
		m.RecordRegion(metrics.StatusRejected, 0, 0)
	}
}

func (s *Summary) Counts() (succeeded, failed, rejected int) {
	return len(s.Ranked), len(s.Failed), len(s.Rejected)
}
