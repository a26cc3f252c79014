package rediskv

import (
	"sort"
	"strings"
)

// PatternStat summarizes one key naming pattern observed in the sample.
type PatternStat struct {
	// Pattern is the key shape with numeric segments generalized,
	// e.g. "user:*:profile".
	Pattern string

	// Count is how many sampled keys matched the pattern.
	Count int

	// Sample is one concrete key matching the pattern, used for TYPE
	// lookups.
	Sample string
}

// KeyPatternStats groups keys by naming pattern. Colon-separated
// segments that are entirely numeric generalize to "*"; everything else
// is kept verbatim. Results are sorted by count descending, pattern
// ascending for stable output.
func KeyPatternStats(keys []string) []PatternStat {
	counts := make(map[string]*PatternStat)

	for _, key := range keys {
		pattern := generalize(key)
		if stat, ok := counts[pattern]; ok {
			stat.Count++
		} else {
			counts[pattern] = &PatternStat{Pattern: pattern, Count: 1, Sample: key}
		}
	}

	stats := make([]PatternStat, 0, len(counts))
	for _, stat := range counts {
		stats = append(stats, *stat)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		return stats[i].Pattern < stats[j].Pattern
	})

	return stats
}

func generalize(key string) string {
	segments := strings.Split(key, ":")
	for i, seg := range segments {
		if isNumeric(seg) {
			segments[i] = "*"
		}
	}
	return strings.Join(segments, ":")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
