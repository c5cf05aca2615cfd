// Package pipeline computes the visible result set for one subcluster:
// frequency threshold, minus-word exclusion, category bucketing, free-text
// narrowing and the aggregate statistics the UI shows next to the tabs.
// Everything here is pure; storage is the caller's problem.
package pipeline

import (
	"sort"
	"strings"

	"github.com/promodesk/slovolov/internal/database"
)

// Category buckets results by frequency. The thresholds are fixed domain
// constants, not configuration.
type Category string

const (
	CategoryAll    Category = "all"
	CategoryHigh   Category = "high"   // count >= 10000
	CategoryMedium Category = "medium" // 2000 <= count < 10000
	CategoryLow    Category = "low"    // count < 2000
)

const (
	highThreshold   = 10000
	mediumThreshold = 2000
)

// ParseCategory maps a string to a Category; empty means all.
func ParseCategory(s string) (Category, bool) {
	switch s {
	case "", "all":
		return CategoryAll, true
	case "high":
		return CategoryHigh, true
	case "medium":
		return CategoryMedium, true
	case "low":
		return CategoryLow, true
	}
	return CategoryAll, false
}

// Options are the ephemeral view settings: the active category tab and the
// free-text search box.
type Options struct {
	Category   Category
	SearchText string
}

// Stats describes the result set sizes.
//
// Total counts the whole corpus; Removed is how many records the frequency
// threshold and the minus-words excluded together. Filtered and
// TotalFrequency are over the final set after category and search narrowing.
type Stats struct {
	Total          int `json:"total"`
	Filtered       int `json:"filtered"`
	Removed        int `json:"removed"`
	TotalFrequency int `json:"totalFrequency"`
}

// CategoryCounts are the per-tab counters. They are computed before the
// active category is applied so switching tabs does not change them, but
// they do follow the free-text search.
type CategoryCounts struct {
	All    int `json:"all"`
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Result is the output of one pipeline run.
type Result struct {
	Items  []database.KeywordRecord `json:"items"`
	Stats  Stats                    `json:"stats"`
	Counts CategoryCounts           `json:"categoryCounts"`
}

// ExclusionUnion builds the single lowercase token set from the selected
// filters. Duplicate tokens across filters collapse; empty tokens are
// dropped. Order of the returned slice is unspecified.
func ExclusionUnion(filters []database.Filter) []string {
	seen := make(map[string]struct{})
	var union []string
	for _, f := range filters {
		for _, item := range f.Items {
			token := strings.ToLower(strings.TrimSpace(item))
			if token == "" {
				continue
			}
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			union = append(union, token)
		}
	}
	return union
}

// Run produces the filtered, sorted, bucketed view of a corpus.
//
// Order of operations: stable sort by count descending (ties keep ingestion
// order), frequency threshold, minus-word exclusion by substring, category
// bucket, free-text substring match. See Stats and CategoryCounts for which
// intermediate set each figure is computed over.
func Run(records []database.KeywordRecord, cfg database.BindingConfig, exclusions []string, opts Options) *Result {
	sorted := make([]database.KeywordRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })

	thresholded := sorted
	if cfg.MinFrequency > 0 {
		thresholded = thresholded[:0:0]
		for _, r := range sorted {
			if r.Count >= cfg.MinFrequency {
				thresholded = append(thresholded, r)
			}
		}
	}

	base := thresholded
	if cfg.ApplyFilters && len(exclusions) > 0 {
		base = base[:0:0]
		for _, r := range thresholded {
			if !excluded(r.Query, exclusions) {
				base = append(base, r)
			}
		}
	}

	searched := base
	if opts.SearchText != "" {
		needle := strings.ToLower(opts.SearchText)
		searched = searched[:0:0]
		for _, r := range base {
			if strings.Contains(strings.ToLower(r.Query), needle) {
				searched = append(searched, r)
			}
		}
	}

	var counts CategoryCounts
	for _, r := range searched {
		counts.All++
		switch bucket(r.Count) {
		case CategoryHigh:
			counts.High++
		case CategoryMedium:
			counts.Medium++
		default:
			counts.Low++
		}
	}

	final := searched
	if opts.Category != "" && opts.Category != CategoryAll {
		final = final[:0:0]
		for _, r := range searched {
			if bucket(r.Count) == opts.Category {
				final = append(final, r)
			}
		}
	}

	stats := Stats{
		Total:    len(sorted),
		Filtered: len(final),
		Removed:  len(sorted) - len(base),
	}
	for _, r := range final {
		stats.TotalFrequency += r.Count
	}

	if final == nil {
		final = []database.KeywordRecord{}
	}
	return &Result{Items: final, Stats: stats, Counts: counts}
}

// excluded reports whether the query contains any exclusion token as a
// substring. Substring containment, not token-boundary match, is the
// defined semantics.
func excluded(query string, exclusions []string) bool {
	q := strings.ToLower(query)
	for _, token := range exclusions {
		if strings.Contains(q, token) {
			return true
		}
	}
	return false
}

func bucket(count int) Category {
	switch {
	case count >= highThreshold:
		return CategoryHigh
	case count >= mediumThreshold:
		return CategoryMedium
	default:
		return CategoryLow
	}
}
