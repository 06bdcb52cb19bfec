package delta

import (
	"math"
)

type Metrics struct {
	AreaHa           float64
	Severity         float64
	PersistentPixels int
	ObservedPixels   int
	Images           int
	Detected         bool
}

// Aggregate turns a persistent mask into region metrics. Severity is the mean,
// over persistent pixels, of each pixel's mean delta across every date of the
// series. An empty mask gives zero area and zero severity.
func Aggregate(mask PersistentMask, anomalies []Anomaly, cfg Config) Metrics {
	metrics := Metrics{
		PersistentPixels: mask.PersistentCount(),
		ObservedPixels:   mask.ObservedCount(),
		Images:           len(anomalies),
	}
	metrics.AreaHa = float64(metrics.PersistentPixels) * cfg.PixelAreaM2 / 10000

	var (
		sum    float64
		pixels int
	)
	for i, persistent := range mask.Mask {
		if !persistent {
			continue
		}
		var (
			pixelSum float64
			valid    int
		)
		for _, a := range anomalies {
			if i >= len(a.Delta) {
				continue
			}
			if d := a.Delta[i]; !math.IsNaN(d) {
				pixelSum += d
				valid++
			}
		}
		if valid == 0 {
			continue
		}
		sum += pixelSum / float64(valid)
		pixels++
	}

	if pixels > 0 {
		metrics.Severity = sum / float64(pixels)
		metrics.Detected = true
	}
	return metrics
}
