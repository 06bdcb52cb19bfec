package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrNoHistory = errors.New("no history for region")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Run struct {
	ID           string    `db:"id"`
	StartedAt    time.Time `db:"started_at"`
	FinishedAt   time.Time `db:"finished_at"`
	StartDate    time.Time `db:"start_date"`
	EndDate      time.Time `db:"end_date"`
	BaselineMode string    `db:"baseline_mode"`
	Regions      int       `db:"regions"`
	Failed       int       `db:"failed"`
	Rejected     int       `db:"rejected"`
}

// Record is the assessment of one region in one run.
type Record struct {
	RunID      string    `db:"run_id"`
	RegionID   string    `db:"region_id"`
	AreaHa     float64   `db:"area_ha"`
	Severity   float64   `db:"severity"`
	Risk       string    `db:"risk"`
	Impact     float64   `db:"impact"`
	Alert      string    `db:"alert"`
	Rank       int       `db:"rank"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Trend compares the two latest records of a region.
type Trend struct {
	RegionID     string
	Latest       Record
	Previous     *Record
	AreaChange   float64
	ImpactChange float64
	RiskChanged  bool
	Escalated    bool
}

// Store keeps run history in SQLite or Postgres.
type Store struct {
	db *sqlx.DB
}

func Open(driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	if driver == "sqlite" {
		// One connection keeps :memory: databases alive and writes serialized.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error while migrating database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			start_date TIMESTAMP NOT NULL,
			end_date TIMESTAMP NOT NULL,
			baseline_mode TEXT NOT NULL,
			regions INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			rejected INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS region_assessments (
			run_id TEXT NOT NULL REFERENCES runs(id),
			region_id TEXT NOT NULL,
			area_ha DOUBLE PRECISION NOT NULL,
			severity DOUBLE PRECISION NOT NULL,
			risk TEXT NOT NULL,
			impact DOUBLE PRECISION NOT NULL,
			alert TEXT NOT NULL,
			rank INTEGER NOT NULL,
			recorded_at TIMESTAMP NOT NULL,
			PRIMARY KEY (run_id, region_id)
		);

		CREATE INDEX IF NOT EXISTS idx_region_assessments_region ON region_assessments(region_id, recorded_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores a run and its ranked assessments in one transaction. A run
// without an id gets a new UUID, which is returned.
func (s *Store) SaveRun(ctx context.Context, run Run, ranked []risk.Assessment) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.StartedAt = run.StartedAt.UTC()
	run.FinishedAt = run.FinishedAt.UTC()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insertRun = `
		INSERT INTO runs (id, started_at, finished_at, start_date, end_date, baseline_mode, regions, failed, rejected)
		VALUES (:id, :started_at, :finished_at, :start_date, :end_date, :baseline_mode, :regions, :failed, :rejected)`
	if _, err := tx.NamedExecContext(ctx, insertRun, run); err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	const insertRecord = `
		INSERT INTO region_assessments (run_id, region_id, area_ha, severity, risk, impact, alert, rank, recorded_at)
		VALUES (:run_id, :region_id, :area_ha, :severity, :risk, :impact, :alert, :rank, :recorded_at)`
	for _, a := range ranked {
		record := Record{
			RunID:      run.ID,
			RegionID:   a.RegionID,
			AreaHa:     a.AreaHa,
			Severity:   a.Severity,
			Risk:       string(a.Risk),
			Impact:     a.Impact,
			Alert:      a.Alert,
			Rank:       a.Rank,
			RecordedAt: run.FinishedAt,
		}
		if _, err := tx.NamedExecContext(ctx, insertRecord, record); err != nil {
			return "", fmt.Errorf("failed to insert assessment of %s: %w", a.RegionID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return run.ID, nil
}

// Runs lists the latest runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := s.db.Rebind(`SELECT * FROM runs ORDER BY finished_at DESC LIMIT ?`)

	var runs []Run
	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RegionHistory lists the records of a region, newest first.
func (s *Store) RegionHistory(ctx context.Context, regionID string, limit int) ([]Record, error) {
	query := s.db.Rebind(`
		SELECT run_id, region_id, area_ha, severity, risk, impact, alert, rank, recorded_at
		FROM region_assessments
		WHERE region_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?`)

	var records []Record
	if err := s.db.SelectContext(ctx, &records, query, regionID, limit); err != nil {
		return nil, fmt.Errorf("failed to read history of %s: %w", regionID, err)
	}
	return records, nil
}

func (s *Store) Trend(ctx context.Context, regionID string) (Trend, error) {
	records, err := s.RegionHistory(ctx, regionID, 2)
	if err != nil {
		return Trend{}, err
	}
	if len(records) == 0 {
		return Trend{}, fmt.Errorf("%w %s", ErrNoHistory, regionID)
	}
	return trendOf(records), nil
}

func trendOf(records []Record) Trend {
	trend := Trend{RegionID: records[0].RegionID, Latest: records[0]}
	if len(records) < 2 {
		return trend
	}

	previous := records[1]
	trend.Previous = &previous
	trend.AreaChange = trend.Latest.AreaHa - previous.AreaHa
	trend.ImpactChange = trend.Latest.Impact - previous.Impact
	trend.RiskChanged = trend.Latest.Risk != previous.Risk
	trend.Escalated = riskOrder(trend.Latest.Risk) > riskOrder(previous.Risk)
	return trend
}

func riskOrder(level string) int {
	switch risk.Level(level) {
	case risk.High:
		return 2
	case risk.Moderate:
		return 1
	default:
		return 0
	}
}
