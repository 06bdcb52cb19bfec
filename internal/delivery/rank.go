package delivery

import (
	"fmt"

	"github.com/forest-guardian/mine-impact-monitor/internal/final"
	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
)

// RankMetrics classifies and ranks region metrics computed elsewhere and
// writes them as the final table.
func RankMetrics(metricsPath, tablePath string, thresholds risk.Thresholds) ([]risk.Assessment, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}
	rows, err := final.LoadMetrics(metricsPath)
	if err != nil {
		return nil, err
	}

	ranked := final.AssessMetrics(rows, thresholds)
	if err := final.SaveTable(tablePath, ranked); err != nil {
		return nil, fmt.Errorf("failed to save final table: %w", err)
	}
	return ranked, nil
}
