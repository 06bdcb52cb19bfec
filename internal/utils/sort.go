package utils

import (
	"maps"
	"slices"
	"time"
)

// SortDates sorts dates in place, oldest first when asc is set.
func SortDates(dates []time.Time, asc bool) []time.Time {
	slices.SortStableFunc(dates, func(a, b time.Time) int {
		if asc {
			return a.Compare(b)
		}
		return b.Compare(a)
	})
	return dates
}

// GetSortedKeys returns the date keys of m in the requested order.
func GetSortedKeys[T any](m map[time.Time]T, asc bool) []time.Time {
	return SortDates(slices.Collect(maps.Keys(m)), asc)
}

// DatesBetween lists every step days from start up to and including end.
func DatesBetween(start, end time.Time, step int) []time.Time {
	if step <= 0 {
		step = 1
	}
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, step) {
		dates = append(dates, d)
	}
	return dates
}
