package delta

import (
	"errors"
	"fmt"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

type BaselineMode string

const (
	BaselineGlobal   BaselineMode = "global"
	BaselineSeasonal BaselineMode = "seasonal"
)

var (
	ErrGridMismatch    = errors.New("image grids are not aligned")
	ErrEmptySeries     = errors.New("empty image series")
	ErrMissingBaseline = errors.New("no baseline for season")
	ErrInvalidConfig   = errors.New("invalid detection config")
)

// Config holds the change detection parameters of one run.
type Config struct {
	DropThreshold        float64
	MinPersistence       int
	MinValidObservations int
	PixelAreaM2          float64
	BaselineMode         BaselineMode
	WetSeasonStart       time.Month
	WetSeasonEnd         time.Month
	ValidClasses         sentinel.ClassSet
}

func DefaultConfig() Config {
	return Config{
		DropThreshold:  -0.2,
		MinPersistence: 3,
		PixelAreaM2:    sentinel.DefaultResolution * sentinel.DefaultResolution,
		BaselineMode:   BaselineGlobal,
		WetSeasonStart: time.May,
		WetSeasonEnd:   time.October,
		ValidClasses:   sentinel.DefaultValidClasses,
	}
}

func (c Config) Validate() error {
	switch c.BaselineMode {
	case BaselineGlobal, BaselineSeasonal:
	default:
		return fmt.Errorf("%w: unknown baseline mode %q", ErrInvalidConfig, c.BaselineMode)
	}
	if c.MinPersistence < 1 {
		return fmt.Errorf("%w: min persistence must be at least 1, got %d", ErrInvalidConfig, c.MinPersistence)
	}
	if c.MinValidObservations < 0 {
		return fmt.Errorf("%w: min valid observations must not be negative", ErrInvalidConfig)
	}
	if c.PixelAreaM2 <= 0 {
		return fmt.Errorf("%w: pixel area must be positive, got %f", ErrInvalidConfig, c.PixelAreaM2)
	}
	if c.WetSeasonStart < time.January || c.WetSeasonStart > time.December ||
		c.WetSeasonEnd < time.January || c.WetSeasonEnd > time.December {
		return fmt.Errorf("%w: wet season months out of range", ErrInvalidConfig)
	}
	return nil
}

func (c Config) seasonOf(date time.Time) sentinel.Season {
	return sentinel.SeasonOf(date, c.WetSeasonStart, c.WetSeasonEnd)
}

func (c Config) validClasses() sentinel.ClassSet {
	if len(c.ValidClasses) == 0 {
		return sentinel.DefaultValidClasses
	}
	return c.ValidClasses
}
