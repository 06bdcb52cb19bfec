package sentinel

import (
	"fmt"
	"math"
)

// NormalizedDifference computes (a - b) / (a + b) pixel by pixel. NaN inputs
// and a zero denominator give NaN.
func NormalizedDifference(a, b []float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("band length mismatch: %d != %d", len(a), len(b))
	}
	result := make([]float64, len(a))
	for i := range a {
		denominator := a[i] + b[i]
		if math.IsNaN(denominator) || denominator == 0 {
			result[i] = math.NaN()
			continue
		}
		result[i] = (a[i] - b[i]) / denominator
	}
	return result, nil
}

// ComputeNDVI derives the NDVI index image from the B08 and B04 bands of a
// masked image.
func ComputeNDVI(img Image) (IndexImage, error) {
	nir, err := img.Band(BandNIR)
	if err != nil {
		return IndexImage{}, err
	}
	red, err := img.Band(BandRed)
	if err != nil {
		return IndexImage{}, err
	}

	ndvi, err := NormalizedDifference(nir, red)
	if err != nil {
		return IndexImage{}, err
	}

	return IndexImage{
		Date:   img.Date,
		Season: img.Season,
		Grid:   img.Grid,
		Values: ndvi,
	}, nil
}
