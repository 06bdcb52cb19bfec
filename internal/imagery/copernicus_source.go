package imagery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/cache"
	"github.com/forest-guardian/mine-impact-monitor/internal/copernicus"
	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"github.com/forest-guardian/mine-impact-monitor/internal/utils"
	"github.com/paulmach/orb"
)

// SceneClient is the part of the Copernicus client used to fetch scenes.
type SceneClient interface {
	SearchScenes(ctx context.Context, bound orb.Bound, start, end time.Time, maxCloud float64) ([]copernicus.Scene, error)
	RequestImage(ctx context.Context, bound orb.Bound, date time.Time, resolution float64) ([]byte, error)
}

// SceneRecord remembers what a download produced so that empty or cloudy
// days are not requested again.
type SceneRecord struct {
	Path       string  `json:"path"`
	Empty      bool    `json:"empty"`
	CloudCover float64 `json:"cloud_cover"`
}

// CopernicusSource downloads scenes from the Copernicus process API and keeps
// them under Dir with the LocalSource layout. Acquisition dates come from the
// catalog, or from a fixed schedule every RevisitDays days when it is set.
type CopernicusSource struct {
	Client      SceneClient
	Dir         string
	Cache       cache.CacheService[SceneRecord]
	Resolution  float64
	RevisitDays int
}

func NewCopernicusSource(client SceneClient, dir string, sceneCache cache.CacheService[SceneRecord]) *CopernicusSource {
	return &CopernicusSource{
		Client:     client,
		Dir:        dir,
		Cache:      sceneCache,
		Resolution: sentinel.DefaultResolution,
	}
}

func (s *CopernicusSource) Images(ctx context.Context, r region.Region, q sentinel.Query) iter.Seq2[sentinel.Image, error] {
	return func(yield func(sentinel.Image, error) bool) {
		dates, err := s.sceneDates(ctx, r, q)
		if err != nil {
			yield(sentinel.Image{}, err)
			return
		}

		for _, date := range dates {
			if err := ctx.Err(); err != nil {
				yield(sentinel.Image{}, err)
				return
			}
			if !q.Contains(date) {
				continue
			}

			img, ok, err := s.scene(ctx, r, date, q.MaxCloud)
			if err != nil {
				yield(sentinel.Image{}, err)
				return
			}
			if !ok {
				continue
			}
			if !yield(img, nil) {
				return
			}
		}
	}
}

func (s *CopernicusSource) sceneDates(ctx context.Context, r region.Region, q sentinel.Query) ([]time.Time, error) {
	if s.RevisitDays > 0 {
		if q.StartDate.IsZero() || q.EndDate.IsZero() {
			return nil, fmt.Errorf("region %s: a revisit schedule needs both start and end dates", r.ID)
		}
		return utils.DatesBetween(q.StartDate, q.EndDate, s.RevisitDays), nil
	}

	scenes, err := s.Client.SearchScenes(ctx, r.AOI, q.StartDate, q.EndDate, q.MaxCloud)
	if err != nil {
		return nil, fmt.Errorf("region %s: failed to search scenes: %w", r.ID, err)
	}
	dates := make([]time.Time, len(scenes))
	for i, scene := range scenes {
		dates[i] = scene.Date
	}
	return dates, nil
}

// scene returns the image of one day. ok is false when the day has to be
// skipped; err is only set for failures that end the region.
func (s *CopernicusSource) scene(ctx context.Context, r region.Region, date time.Time, maxCloud float64) (sentinel.Image, bool, error) {
	day := date.Format("2006-01-02")
	key := s.Cache.Key(r.ID, day, r.AOI.Min, r.AOI.Max)
	if record, ok := s.Cache.Get(key); ok {
		if record.Empty {
			return sentinel.Image{}, false, nil
		}
		if maxCloud > 0 && record.CloudCover > maxCloud {
			return sentinel.Image{}, false, nil
		}
	}

	path := ScenePath(s.Dir, r.ID, date)
	if !fileExists(path) {
		data, err := s.Client.RequestImage(ctx, r.AOI, date, s.Resolution)
		switch {
		case errors.Is(err, copernicus.ErrUnauthorized), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return sentinel.Image{}, false, fmt.Errorf("region %s: failed to download %s: %w", r.ID, day, err)
		case errors.Is(err, copernicus.ErrNoData):
			s.remember(key, SceneRecord{Empty: true})
			return sentinel.Image{}, false, nil
		case err != nil:
			slog.Warn("skipping scene after failed download", "region", r.ID, "date", day, "error", err)
			return sentinel.Image{}, false, nil
		}

		if err := writeFileAtomic(path, data); err != nil {
			return sentinel.Image{}, false, fmt.Errorf("region %s: %w", r.ID, err)
		}
	}

	img, err := ReadGeoTIFF(path, date, copernicus.BandOrder)
	if err != nil {
		slog.Warn("skipping unreadable scene", "region", r.ID, "date", day, "error", err)
		os.Remove(path)
		return sentinel.Image{}, false, nil
	}

	if !hasData(img) {
		s.remember(key, SceneRecord{Path: path, Empty: true})
		return sentinel.Image{}, false, nil
	}

	cloud, skip := exceedsCloud(img, maxCloud)
	s.remember(key, SceneRecord{Path: path, CloudCover: cloud})
	if skip {
		slog.Debug("skipping cloudy scene", "region", r.ID, "date", day, "cloud", cloud)
		return sentinel.Image{}, false, nil
	}
	return img, true, nil
}

func (s *CopernicusSource) remember(key string, record SceneRecord) {
	if err := s.Cache.Put(key, record); err != nil {
		slog.Warn("failed to cache scene record", "error", err)
	}
}

// hasData reports whether any pixel carries a scene classification.
func hasData(img sentinel.Image) bool {
	for _, v := range img.SCL {
		if v != sentinel.SCLNoData && !math.IsNaN(v) {
			return true
		}
	}
	return false
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write scene: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename scene: %w", err)
	}
	return nil
}
