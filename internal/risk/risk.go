package risk

import (
	"fmt"
	"math"
	"sort"
)

type Level string

const (
	High     Level = "HIGH"
	Moderate Level = "MODERATE"
	Low      Level = "LOW"
)

const (
	AlertImmediateInspection = "immediate inspection"
	AlertIncreasedMonitoring = "increased monitoring"
	AlertNoAction            = "no action"
)

type Thresholds struct {
	AreaHigh     float64 `yaml:"area_high"`
	AreaMed      float64 `yaml:"area_med"`
	SeverityHigh float64 `yaml:"severity_high"`
	SeverityMed  float64 `yaml:"severity_med"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		AreaHigh:     100,
		AreaMed:      25,
		SeverityHigh: -0.15,
		SeverityMed:  -0.05,
	}
}

func (t Thresholds) Validate() error {
	if t.AreaMed > t.AreaHigh {
		return fmt.Errorf("area thresholds out of order: med %.2f > high %.2f", t.AreaMed, t.AreaHigh)
	}
	if t.SeverityHigh > t.SeverityMed {
		return fmt.Errorf("severity thresholds out of order: high %.3f > med %.3f", t.SeverityHigh, t.SeverityMed)
	}
	return nil
}

// Classify assigns a risk level from the affected area in hectares and the
// severity (mean index delta, negative for loss). Comparisons are strict so a
// value on a threshold falls to the lower tier.
func Classify(areaHa, severity float64, t Thresholds) Level {
	switch {
	case areaHa > t.AreaHigh && severity < t.SeverityHigh:
		return High
	case areaHa > t.AreaMed || severity < t.SeverityMed:
		return Moderate
	default:
		return Low
	}
}

// Impact is area times the magnitude of severity. A NaN input scores zero.
func Impact(areaHa, severity float64) float64 {
	impact := areaHa * math.Abs(severity)
	if math.IsNaN(impact) {
		return 0
	}
	return impact
}

func AlertFor(level Level) string {
	switch level {
	case High:
		return AlertImmediateInspection
	case Moderate:
		return AlertIncreasedMonitoring
	default:
		return AlertNoAction
	}
}

type Assessment struct {
	RegionID string
	AreaHa   float64
	Severity float64
	Risk     Level
	Impact   float64
	Alert    string
	Rank     int
}

// Assess classifies one region and scores its impact.
func Assess(regionID string, areaHa, severity float64, t Thresholds) Assessment {
	level := Classify(areaHa, severity, t)
	return Assessment{
		RegionID: regionID,
		AreaHa:   areaHa,
		Severity: severity,
		Risk:     level,
		Impact:   Impact(areaHa, severity),
		Alert:    AlertFor(level),
	}
}

// Rank returns the assessments sorted by impact descending with 1-based ranks
// set. Ties keep their input order. The input slice is not modified.
func Rank(assessments []Assessment) []Assessment {
	ranked := make([]Assessment, len(assessments))
	copy(ranked, assessments)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Impact > ranked[j].Impact
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Alerting keeps the assessments that call for action, in rank order.
func Alerting(ranked []Assessment) []Assessment {
	var result []Assessment
	for _, a := range ranked {
		if a.Risk == High || a.Risk == Moderate {
			result = append(result, a)
		}
	}
	return result
}
