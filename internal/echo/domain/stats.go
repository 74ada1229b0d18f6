package domain

import "sort"

// PathCount records how many times a single path has been requested.
type PathCount struct {
	Path  string
	Count uint64
}

// SortByCountDesc orders entries by descending count in place.
// The relative order of equal counts is unspecified.
func SortByCountDesc(entries []PathCount) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
}
