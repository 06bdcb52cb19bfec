package final

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/gocarina/gocsv"
)

const TableFileName = "final_mine_assessment.csv"

// Row is one line of the final assessment table.
type Row struct {
	RegionID string     `csv:"region_id"`
	AreaHa   float64    `csv:"area_ha"`
	Severity float64    `csv:"severity"`
	Risk     risk.Level `csv:"risk"`
	Impact   float64    `csv:"impact"`
	Alert    string     `csv:"alert"`
}

// MetricsRow is the input of a standalone ranking: region metrics computed
// elsewhere.
type MetricsRow struct {
	RegionID string  `csv:"region_id"`
	AreaHa   float64 `csv:"area_ha"`
	Severity float64 `csv:"severity"`
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

func TablePath(outDir string) string {
	return filepath.Join(outDir, TableFileName)
}

func RowsFromAssessments(ranked []risk.Assessment) []Row {
	rows := make([]Row, 0, len(ranked))
	for _, a := range ranked {
		rows = append(rows, Row{
			RegionID: a.RegionID,
			AreaHa:   a.AreaHa,
			Severity: a.Severity,
			Risk:     a.Risk,
			Impact:   a.Impact,
			Alert:    a.Alert,
		})
	}
	return rows
}

// SaveTable writes the assessments, ranked by impact, to filePath.
func SaveTable(filePath string, assessments []risk.Assessment) error {
	if len(assessments) == 0 {
		return fmt.Errorf("no assessments to save")
	}

	rows := RowsFromAssessments(risk.Rank(assessments))
	return saveCSV(filePath, &rows)
}

func GetSavedTable(filePath string) ([]Row, error) {
	var rows []Row
	if err := loadCSV(filePath, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func LoadMetrics(filePath string) ([]MetricsRow, error) {
	var rows []MetricsRow
	if err := loadCSV(filePath, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no metrics found in %s", filePath)
	}
	return rows, nil
}

// AssessMetrics classifies and ranks metrics rows.
func AssessMetrics(rows []MetricsRow, thresholds risk.Thresholds) []risk.Assessment {
	assessments := make([]risk.Assessment, 0, len(rows))
	for _, row := range rows {
		assessments = append(assessments, risk.Assess(row.RegionID, row.AreaHa, row.Severity, thresholds))
	}
	return risk.Rank(assessments)
}

func saveCSV(filePath string, rows any) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filePath, err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	if err := gocsv.MarshalFile(rows, file); err != nil {
		return fmt.Errorf("failed to write CSV using gocsv: %w", err)
	}
	return nil
}

func loadCSV(filePath string, out any) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file not found: %s", filePath)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filePath, err)
	}
	defer file.Close()

	if err := gocsv.UnmarshalFile(file, out); err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return nil
}
