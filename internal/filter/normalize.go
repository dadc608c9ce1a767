// Package filter drops under-populated needles and collapses near-duplicate
// ones.
package filter

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	"github.com/fieldglass/needlefinder/internal/model"
)

// entitySuffixes strips corporate entity suffixes so "Acme Corp" and
// "Acme Corp." normalize to the same key.
var entitySuffixes = regexp.MustCompile(
	`(?i)\s*,?\s*(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|L\.?P\.?|LLP|L\.?L\.?P\.?|` +
		`PLLC|P\.?L\.?L\.?C\.?|P\.?C\.?|GMBH|AG|SA|DBA|D/B/A)\s*\.?\s*$`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

var upper = cases.Upper(language.Und)

// NormalizeString folds a string value into a canonical comparison form:
// width-folded, uppercased, entity suffixes removed, punctuation and
// whitespace collapsed.
func NormalizeString(s string) string {
	s = width.Fold.String(s)
	s = upper.String(strings.TrimSpace(s))
	s = entitySuffixes.ReplaceAllString(s, "")
	s = multiSpace.ReplaceAllString(s, " ")
	return strings.Trim(s, " .,;:")
}

// fieldSeparator keeps per-field tokens from colliding in the dedup key.
const fieldSeparator = "\x1f"

// dedupKey builds the comparison key for a needle from its normalized field
// values, iterated in sorted field order.
func dedupKey(n model.Needle) string {
	names := n.FieldNames()
	// Sorted order so identical needles agree regardless of map iteration.
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString(fieldSeparator)
		}
		b.WriteString(name)
		b.WriteString("=")
		b.WriteString(normalizeValue(n[name]))
	}
	return b.String()
}

func normalizeValue(v model.Value) string {
	switch v.Kind {
	case model.KindNull:
		return ""
	case model.KindString:
		return NormalizeString(v.Str)
	case model.KindList:
		items := make([]string, len(v.List))
		for i, s := range v.List {
			items[i] = NormalizeString(s)
		}
		return strings.Join(items, ",")
	default:
		return v.Display()
	}
}
