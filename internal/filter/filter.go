package filter

import (
	"go.uber.org/zap"

	"github.com/fieldglass/needlefinder/internal/model"
)

// DefaultMinPopulatedFraction keeps needles with at least half their fields
// populated.
const DefaultMinPopulatedFraction = 0.5

// Stats counts what the filter dropped.
type Stats struct {
	Insufficient int
	Duplicates   int
}

// Sufficient reports whether the needle's populated-field fraction meets the
// minimum. An empty needle is never sufficient.
func Sufficient(n model.Needle, minFraction float64) bool {
	total := len(n)
	if total == 0 {
		return false
	}
	return float64(n.PopulatedCount())/float64(total) >= minFraction
}

// SufficiencyPass removes needles below the minimum populated fraction,
// preserving order.
func SufficiencyPass(needles []model.Needle, minFraction float64) ([]model.Needle, int) {
	kept := make([]model.Needle, 0, len(needles))
	dropped := 0
	for _, n := range needles {
		if Sufficient(n, minFraction) {
			kept = append(kept, n)
		} else {
			dropped++
		}
	}
	return kept, dropped
}

// Deduplicate collapses needles whose normalized field values match, keeping
// the first occurrence in its original position. Applying it twice yields
// the same result as applying it once.
func Deduplicate(needles []model.Needle) ([]model.Needle, int) {
	seen := make(map[string]bool, len(needles))
	kept := make([]model.Needle, 0, len(needles))
	dropped := 0
	for _, n := range needles {
		key := dedupKey(n)
		if seen[key] {
			dropped++
			continue
		}
		seen[key] = true
		kept = append(kept, n)
	}
	return kept, dropped
}

// Apply runs the sufficiency pass then deduplication and returns the
// retained needles in their original order.
func Apply(needles []model.Needle, minFraction float64) ([]model.Needle, Stats) {
	var stats Stats
	sufficient, insufficient := SufficiencyPass(needles, minFraction)
	stats.Insufficient = insufficient

	unique, duplicates := Deduplicate(sufficient)
	stats.Duplicates = duplicates

	if stats.Insufficient > 0 || stats.Duplicates > 0 {
		zap.L().Info("filter: dropped needles",
			zap.Int("insufficient", stats.Insufficient),
			zap.Int("duplicates", stats.Duplicates),
			zap.Int("retained", len(unique)),
		)
	}
	return unique, stats
}
