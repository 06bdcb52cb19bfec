package imagery

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"github.com/forest-guardian/mine-impact-monitor/internal/utils"
)

// LocalSource reads scenes stored as <Dir>/<region id>/<YYYY-MM-DD>.tif.
type LocalSource struct {
	Dir       string
	BandOrder []string
}

func NewLocalSource(dir string) *LocalSource {
	return &LocalSource{Dir: dir, BandOrder: DefaultBandOrder}
}

func (s *LocalSource) listScenes(regionID string) (map[time.Time]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.Dir, regionID, "*.tif"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes of %s: %w", regionID, err)
	}
	scenes := make(map[time.Time]string, len(paths))
	for _, path := range paths {
		if date, ok := sceneDate(path); ok {
			scenes[date] = path
		}
	}
	return scenes, nil
}

func (s *LocalSource) Images(ctx context.Context, r region.Region, q sentinel.Query) iter.Seq2[sentinel.Image, error] {
	return func(yield func(sentinel.Image, error) bool) {
		scenes, err := s.listScenes(r.ID)
		if err != nil {
			yield(sentinel.Image{}, err)
			return
		}
		if len(scenes) == 0 {
			yield(sentinel.Image{}, fmt.Errorf("%w in %s", ErrNoImages, filepath.Join(s.Dir, r.ID)))
			return
		}

		for _, date := range utils.GetSortedKeys(scenes, true) {
			if err := ctx.Err(); err != nil {
				yield(sentinel.Image{}, err)
				return
			}
			if !q.Contains(date) {
				continue
			}

			img, err := ReadGeoTIFF(scenes[date], date, s.BandOrder)
			if err != nil {
				yield(sentinel.Image{}, fmt.Errorf("region %s: %w", r.ID, err))
				return
			}

			if cloud, skip := exceedsCloud(img, q.MaxCloud); skip {
				slog.Debug("skipping cloudy scene", "region", r.ID, "date", date.Format("2006-01-02"), "cloud", cloud)
				continue
			}
			if !yield(img, nil) {
				return
			}
		}
	}
}
