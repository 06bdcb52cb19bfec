package sentinel

import (
	"math"
)

// Scene classification (SCL) values of Sentinel-2 L2A products.
const (
	SCLNoData       = 0
	SCLSaturated    = 1
	SCLDarkArea     = 2
	SCLCloudShadow  = 3
	SCLVegetation   = 4
	SCLBareSoil     = 5
	SCLWater        = 6
	SCLUnclassified = 7
	SCLCloudMedium  = 8
	SCLCloudHigh    = 9
	SCLThinCirrus   = 10
	SCLSnow         = 11
)

// ClassSet is a set of accepted SCL classes.
type ClassSet map[int]struct{}

func NewClassSet(classes ...int) ClassSet {
	set := make(ClassSet, len(classes))
	for _, c := range classes {
		set[c] = struct{}{}
	}
	return set
}

func (s ClassSet) Contains(value float64) bool {
	if math.IsNaN(value) || value != math.Trunc(value) {
		return false
	}
	_, ok := s[int(value)]
	return ok
}

var (
	// DefaultValidClasses keeps vegetation, bare soil, water and unclassified pixels.
	DefaultValidClasses = NewClassSet(SCLVegetation, SCLBareSoil, SCLWater, SCLUnclassified)
	// StrictValidClasses is the preprocessing variant that also keeps snow.
	StrictValidClasses = NewClassSet(SCLVegetation, SCLBareSoil, SCLWater, SCLUnclassified, SCLSnow)

	cloudyClasses = NewClassSet(SCLCloudShadow, SCLCloudMedium, SCLCloudHigh, SCLThinCirrus)
)

// MaskQuality returns a copy of img with every band set to NaN where the SCL
// class is not accepted. The input image is left untouched.
func MaskQuality(img Image, accepted ClassSet) (Image, error) {
	size := img.Grid.Size()
	if len(img.SCL) != size {
		return Image{}, ErrMissingBand
	}

	masked := Image{
		Date:   img.Date,
		Season: img.Season,
		Grid:   img.Grid,
		Bands:  make(map[string][]float64, len(img.Bands)),
		SCL:    img.SCL,
	}

	for name := range img.Bands {
		values, err := img.Band(name)
		if err != nil {
			return Image{}, err
		}
		out := make([]float64, size)
		for i, v := range values {
			if accepted.Contains(img.SCL[i]) {
				out[i] = v
			} else {
				out[i] = math.NaN()
			}
		}
		masked.Bands[name] = out
	}

	return masked, nil
}

// CloudCoverPercent is the share of pixels classified as cloud, cloud shadow
// or cirrus, over the pixels that carry data.
func CloudCoverPercent(img Image) float64 {
	withData, cloudy := 0, 0
	for _, v := range img.SCL {
		if math.IsNaN(v) || v == SCLNoData {
			continue
		}
		withData++
		if cloudyClasses.Contains(v) {
			cloudy++
		}
	}
	if withData == 0 {
		return 100
	}
	return 100 * float64(cloudy) / float64(withData)
}

// HasValidPixels reports whether at least one pixel survives the mask.
func HasValidPixels(img Image, accepted ClassSet) bool {
	for _, v := range img.SCL {
		if accepted.Contains(v) {
			return true
		}
	}
	return false
}
