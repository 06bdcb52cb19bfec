package imagery

import (
	"fmt"
	"math"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/mine-impact-monitor/internal/sentinel"
	"github.com/forest-guardian/mine-impact-monitor/internal/utils"
)

// DefaultBandOrder is the band layout of stored scenes.
var DefaultBandOrder = []string{sentinel.BandRed, sentinel.BandNIR, sentinel.BandSCL}

func init() {
	godal.RegisterAll()
}

// ReadGeoTIFF loads a scene whose bands are laid out as bandOrder. Nodata
// values of reflectance bands become NaN.
func ReadGeoTIFF(path string, date time.Time, bandOrder []string) (sentinel.Image, error) {
	var (
		img     sentinel.Image
		readErr error
	)

	utils.ExecuteWithMutex(func() {
		dataset, err := godal.Open(path)
		if err != nil {
			readErr = fmt.Errorf("failed to open TIFF file: %w", err)
			return
		}
		defer dataset.Close()

		geoTransform, err := dataset.GeoTransform()
		if err != nil {
			readErr = fmt.Errorf("failed to read geotransform of %s: %w", path, err)
			return
		}

		structure := dataset.Structure()
		bands := dataset.Bands()
		if len(bands) < len(bandOrder) {
			readErr = fmt.Errorf("%s has %d bands, expected %d", path, len(bands), len(bandOrder))
			return
		}

		img = sentinel.Image{
			Date: date,
			Grid: sentinel.Grid{
				OriginX:    geoTransform[0],
				OriginY:    geoTransform[3],
				Resolution: geoTransform[1],
				Width:      structure.SizeX,
				Height:     structure.SizeY,
			},
			Bands: make(map[string][]float64, len(bandOrder)),
		}

		for i, name := range bandOrder {
			data := make([]float64, structure.SizeX*structure.SizeY)
			if err := bands[i].Read(0, 0, data, structure.SizeX, structure.SizeY); err != nil {
				readErr = fmt.Errorf("failed to read band %s of %s: %w", name, path, err)
				return
			}

			if name == sentinel.BandSCL {
				img.SCL = data
				continue
			}
			if nodata, ok := bands[i].NoData(); ok {
				for j, v := range data {
					if v == nodata {
						data[j] = math.NaN()
					}
				}
			}
			img.Bands[name] = data
		}
	})
	if readErr != nil {
		return sentinel.Image{}, readErr
	}
	if img.SCL == nil {
		return sentinel.Image{}, fmt.Errorf("%w %s in %s", sentinel.ErrMissingBand, sentinel.BandSCL, path)
	}
	return img, nil
}

// WriteGeoTIFF stores float32 rasters on grid, one band per slice. A zero
// epsg leaves the dataset without a spatial reference.
func WriteGeoTIFF(path string, grid sentinel.Grid, epsg int, bands ...[]float64) error {
	for i, band := range bands {
		if len(band) != grid.Size() {
			return fmt.Errorf("band %d has %d values, grid %s expects %d", i, len(band), grid, grid.Size())
		}
	}

	var writeErr error
	utils.ExecuteWithMutex(func() {
		dataset, err := godal.Create(godal.GTiff, path, len(bands), godal.Float32, grid.Width, grid.Height)
		if err != nil {
			writeErr = fmt.Errorf("failed to create %s: %w", path, err)
			return
		}

		geoTransform := [6]float64{grid.OriginX, grid.Resolution, 0, grid.OriginY, 0, -grid.Resolution}
		if err := dataset.SetGeoTransform(geoTransform); err != nil {
			dataset.Close()
			writeErr = fmt.Errorf("failed to set geotransform: %w", err)
			return
		}

		if epsg != 0 {
			sr, err := godal.NewSpatialRefFromEPSG(epsg)
			if err != nil {
				dataset.Close()
				writeErr = fmt.Errorf("failed to create spatial reference: %w", err)
				return
			}
			defer sr.Close()
			if err := dataset.SetSpatialRef(sr); err != nil {
				dataset.Close()
				writeErr = fmt.Errorf("failed to set spatial reference: %w", err)
				return
			}
		}

		for i, band := range dataset.Bands() {
			if err := band.Write(0, 0, bands[i], grid.Width, grid.Height); err != nil {
				dataset.Close()
				writeErr = fmt.Errorf("failed to write band %d: %w", i, err)
				return
			}
		}

		if err := dataset.Close(); err != nil {
			writeErr = fmt.Errorf("failed to close %s: %w", path, err)
		}
	})
	return writeErr
}
