package sentinel

import "time"

type Season string

const (
	SeasonWet Season = "wet"
	SeasonDry Season = "dry"
)

// SeasonOf tags a date as wet when its month falls in [wetStart, wetEnd],
// dry otherwise. A range with wetStart > wetEnd wraps around the new year.
func SeasonOf(date time.Time, wetStart, wetEnd time.Month) Season {
	m := date.Month()
	if wetStart <= wetEnd {
		if m >= wetStart && m <= wetEnd {
			return SeasonWet
		}
		return SeasonDry
	}
	if m >= wetStart || m <= wetEnd {
		return SeasonWet
	}
	return SeasonDry
}
