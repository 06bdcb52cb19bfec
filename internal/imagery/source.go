package imagery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/forest-guardian/mine-impact-monitor/internal/region"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
)

var ErrNoImages = errors.New("no images found")

// Source yields the scenes of a region in ascending date order. Iteration
// stops at the first error.
type Source interface {
	Images(ctx context.Context, r region.Region, q sentinel.Query) iter.Seq2[sentinel.Image, error]
}

// Collect drains a source into a slice.
func Collect(ctx context.Context, src Source, r region.Region, q sentinel.Query) ([]sentinel.Image, error) {
	var images []sentinel.Image
	for img, err := range src.Images(ctx, r, q) {
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w for region %s between %s and %s", ErrNoImages, r.ID, q.StartDate.Format("2006-01-02"), q.EndDate.Format("2006-01-02"))
	}
	return images, nil
}

// ScenePath is the storage path of a region scene.
func ScenePath(dir, regionID string, date time.Time) string {
	return filepath.Join(dir, regionID, date.Format("2006-01-02")+".tif")
}

func sceneDate(path string) (time.Time, bool) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	date, err := time.Parse("2006-01-02", name)
	return date, err == nil
}

func fileExists(filename string) bool {
	_, err := os.Stat(filename)
	return !os.IsNotExist(err)
}

// exceedsCloud reports whether a scene is over the cloud ceiling. A ceiling of
// zero or less disables the check.
func exceedsCloud(img sentinel.Image, maxCloud float64) (float64, bool) {
	cloud := sentinel.CloudCoverPercent(img)
	return cloud, maxCloud > 0 && cloud > maxCloud
}
