package properties

import (
	"fmt"
	"os"

	"github.com/forest-guardian/mine-impact-monitor/internal/delta"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"gopkg.in/yaml.v3"
)

// Profile is a YAML detection profile. Only the keys present in the file
// override the loaded settings.
type Profile struct {
	Detection struct {
		DropThreshold        *float64 `yaml:"drop_threshold"`
		MinPersistence       *int     `yaml:"min_persistence"`
		MinValidObservations *int     `yaml:"min_valid_observations"`
		PixelAreaM2          *float64 `yaml:"pixel_area_m2"`
		BaselineMode         *string  `yaml:"baseline_mode"`
		StrictMask           *bool    `yaml:"strict_mask"`
	} `yaml:"detection"`
	Thresholds struct {
		AreaHigh     *float64 `yaml:"area_high"`
		AreaMed      *float64 `yaml:"area_med"`
		SeverityHigh *float64 `yaml:"severity_high"`
		SeverityMed  *float64 `yaml:"severity_med"`
	} `yaml:"thresholds"`
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidProfile, path, err)
	}
	return &profile, nil
}

// ApplyProfile overrides detection parameters and risk thresholds with the
// profile at path and validates the result. Settings are left untouched on
// error.
func (s *Settings) ApplyProfile(path string) error {
	profile, err := LoadProfile(path)
	if err != nil {
		return err
	}

	next := *s
	d, t := profile.Detection, profile.Thresholds
	set(&next.Detection.DropThreshold, d.DropThreshold)
	set(&next.Detection.MinPersistence, d.MinPersistence)
	set(&next.Detection.MinValidObservations, d.MinValidObservations)
	set(&next.Detection.PixelAreaM2, d.PixelAreaM2)
	if d.BaselineMode != nil {
		next.Detection.BaselineMode = delta.BaselineMode(*d.BaselineMode)
	}
	if d.StrictMask != nil {
		next.Detection.ValidClasses = sentinel.DefaultValidClasses
		if *d.StrictMask {
			next.Detection.ValidClasses = sentinel.StrictValidClasses
		}
	}
	set(&next.Thresholds.AreaHigh, t.AreaHigh)
	set(&next.Thresholds.AreaMed, t.AreaMed)
	set(&next.Thresholds.SeverityHigh, t.SeverityHigh)
	set(&next.Thresholds.SeverityMed, t.SeverityMed)

	if err := next.Validate(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidProfile, path, err)
	}
	*s = next
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
