package records

import (
	"sort"
	"time"

	"github.com/antzucaro/matchr"
)

// FilterOffset keeps the first k records when k is positive and the last -k when k is
// negative, zero or an offset past either end keeps everything.
func FilterOffset[T any](records []T, k int) []T {
	switch {
	case k > 0 && k < len(records):
		return records[:k]
	case k < 0 && -k < len(records):
		return records[len(records)+k:]
	}
	return records
}

// Between keeps the records whose time falls in [start, end], a nil bound is open.
func Between[T any](records []T, start, end *time.Time, at func(T) time.Time) []T {
	out := make([]T, 0, len(records))
	for _, r := range records {
		t := at(r)
		if start != nil && t.Before(*start) {
			continue
		}
		if end != nil && t.After(*end) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// SortNewestFirst orders records by descending time, ties keep their order.
func SortNewestFirst[T any](records []T, at func(T) time.Time) {
	sort.SliceStable(records, func(i, j int) bool {
		return at(records[i]).After(at(records[j]))
	})
}

// suggestThreshold is the minimum Jaro-Winkler similarity for a suggestion.
const suggestThreshold = 0.7

// Suggest returns the candidate most similar to query.
func Suggest(query string, candidates []string) (string, bool) {
	best := ""
	bestScore := 0.0
	for _, c := range candidates {
		score := matchr.JaroWinkler(query, c, false)
		if score > bestScore {
			best = c
			bestScore = score
		}
	}
	return best, bestScore >= suggestThreshold
}
