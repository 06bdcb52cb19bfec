package properties

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/copernicus"
	"github.com/forest-guardian/mine-impact-monitor/internal/delta"
	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/risk"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"github.com/joho/godotenv"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidSettings = errors.New("invalid settings")
	ErrInvalidProfile  = errors.New("invalid detection profile")
)

// Settings is the configuration of a monitoring run, read from the
// environment.
type Settings struct {
	RootPath string
	LogLevel string
	Workers  int

	StartDate    time.Time
	EndDate      time.Time
	MaxCloud     float64
	MaxRegions   int
	BufferMeters float64
	RegionPrefix string
	RevisitDays  int

	// SceneCacheDays bounds how long download bookkeeping is trusted; zero
	// keeps it forever.
	SceneCacheDays int

	Detection  delta.Config
	Thresholds risk.Thresholds

	Copernicus  copernicus.Config
	OverpassURL string

	HistoryDriver  string
	HistoryDSN     string
	PushgatewayURL string

	DiscordAlertURL string
	DiscordErrorURL string
}

func RootPath() string {
	if root := os.Getenv("ROOT_PATH"); root != "" {
		return root
	}
	return "."
}

// LoadEnv loads the first .env file found next to the binary or up to two
// directories above it. A missing file is not an error.
func LoadEnv() {
	for _, path := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Debug("loaded environment file", "path", path)
			return
		}
	}
}

func Load() (*Settings, error) {
	detection := delta.DefaultConfig()
	detection.DropThreshold = getEnvFloat("DROP_THRESHOLD", detection.DropThreshold)
	detection.MinPersistence = getEnvInt("MIN_PERSISTENCE", detection.MinPersistence)
	detection.MinValidObservations = getEnvInt("MIN_VALID_OBSERVATIONS", detection.MinValidObservations)
	detection.PixelAreaM2 = getEnvFloat("PIXEL_AREA_M2", detection.PixelAreaM2)
	detection.BaselineMode = delta.BaselineMode(getEnv("BASELINE_MODE", string(detection.BaselineMode)))
	if getEnvBool("STRICT_MASK", false) {
		detection.ValidClasses = sentinel.StrictValidClasses
	}

	thresholds := risk.DefaultThresholds()
	thresholds.AreaHigh = getEnvFloat("AREA_HIGH", thresholds.AreaHigh)
	thresholds.AreaMed = getEnvFloat("AREA_MED", thresholds.AreaMed)
	thresholds.SeverityHigh = getEnvFloat("SEVERITY_HIGH", thresholds.SeverityHigh)
	thresholds.SeverityMed = getEnvFloat("SEVERITY_MED", thresholds.SeverityMed)

	startDate, err := getEnvDate("START_DATE", "2022-01-01")
	if err != nil {
		return nil, err
	}
	endDate, err := getEnvDate("END_DATE", "2022-12-31")
	if err != nil {
		return nil, err
	}

	s := &Settings{
		RootPath: RootPath(),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Workers:  getEnvInt("WORKERS", runtime.NumCPU()),

		StartDate:    startDate,
		EndDate:      endDate,
		MaxCloud:     getEnvFloat("MAX_CLOUD", 20),
		MaxRegions:   getEnvInt("MAX_REGIONS", 0),
		BufferMeters: getEnvFloat("BUFFER_METERS", region.DefaultBufferMeters),
		RegionPrefix: getEnv("REGION_PREFIX", region.DefaultPrefix),
		RevisitDays:  getEnvInt("REVISIT_DAYS", 0),

		SceneCacheDays: getEnvInt("SCENE_CACHE_DAYS", 0),

		Detection:  detection,
		Thresholds: thresholds,

		Copernicus: copernicus.Config{
			ClientIDs:     os.Getenv("COPERNICUS_CLIENT_ID"),
			ClientSecrets: os.Getenv("COPERNICUS_CLIENT_SECRET"),
			TokenURL:      getEnv("COPERNICUS_TOKEN_URL", copernicus.DefaultTokenURL),
			ProcessURL:    getEnv("COPERNICUS_PROCESS_URL", copernicus.DefaultProcessURL),
			CatalogURL:    getEnv("COPERNICUS_CATALOG_URL", copernicus.DefaultCatalogURL),
			MaxRetries:    getEnvInt("COPERNICUS_MAX_RETRIES", 5),
		},
		OverpassURL: getEnv("OVERPASS_URL", region.DefaultOverpassURL),

		HistoryDriver:  getEnv("HISTORY_DRIVER", "sqlite"),
		HistoryDSN:     os.Getenv("HISTORY_DSN"),
		PushgatewayURL: os.Getenv("PUSHGATEWAY_URL"),

		DiscordAlertURL: os.Getenv("DISCORD_ALERT_NOTIFICATION_URL"),
		DiscordErrorURL: os.Getenv("DISCORD_ERROR_NOTIFICATION_URL"),
	}

	if s.HistoryDSN == "" && s.HistoryDriver == "sqlite" {
		s.HistoryDSN = filepath.Join(s.RootPath, "data", "history.db")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[s.LogLevel] {
		return fmt.Errorf("%w: invalid log level: %s", ErrInvalidSettings, s.LogLevel)
	}
	if s.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidSettings, s.Workers)
	}
	if !s.StartDate.IsZero() && !s.EndDate.IsZero() && s.EndDate.Before(s.StartDate) {
		return fmt.Errorf("%w: end date %s is before start date %s", ErrInvalidSettings,
			s.EndDate.Format(dateLayout), s.StartDate.Format(dateLayout))
	}
	if s.MaxCloud < 0 || s.MaxCloud > 100 {
		return fmt.Errorf("%w: max cloud must be between 0 and 100, got %.1f", ErrInvalidSettings, s.MaxCloud)
	}
	if s.MaxRegions < 0 {
		return fmt.Errorf("%w: max regions must not be negative", ErrInvalidSettings)
	}
	if s.BufferMeters < 0 {
		return fmt.Errorf("%w: buffer must not be negative", ErrInvalidSettings)
	}
	if s.RevisitDays < 0 {
		return fmt.Errorf("%w: revisit days must not be negative", ErrInvalidSettings)
	}
	if s.SceneCacheDays < 0 {
		return fmt.Errorf("%w: scene cache days must not be negative", ErrInvalidSettings)
	}
	switch s.HistoryDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("%w: unknown history driver %q", ErrInvalidSettings, s.HistoryDriver)
	}
	if err := s.Detection.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := s.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	return nil
}

// Query is the acquisition window of the run.
func (s *Settings) Query() sentinel.Query {
	return sentinel.Query{
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		MaxCloud:  s.MaxCloud,
		Bands:     []string{sentinel.BandRed, sentinel.BandNIR, sentinel.BandSCL},
	}
}

func (s *Settings) VectorsDir() string {
	return filepath.Join(s.RootPath, "data", "vectors")
}

func (s *Settings) ImagesDir() string {
	return filepath.Join(s.RootPath, "data", "images")
}

func (s *Settings) CacheDir() string {
	return filepath.Join(s.RootPath, "data", "cache")
}

func (s *Settings) OutputDir() string {
	return filepath.Join(s.RootPath, "outputs")
}

func (s *Settings) MapsDir() string {
	return filepath.Join(s.OutputDir(), "maps")
}

func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrInvalidSettings, value)
	}
	return date, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		slog.Warn("ignoring invalid integer setting", "key", key, "value", val)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		slog.Warn("ignoring invalid number setting", "key", key, "value", val)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDate(key, fallback string) (time.Time, error) {
	return ParseDate(getEnv(key, fallback))
}
