package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldglass/needlefinder/internal/model"
)

func needle(name string, year any) model.Needle {
	n := model.Needle{
		"name":    model.String(name),
		"product": model.Null(),
		"founded": model.Null(),
	}
	if y, ok := year.(int); ok {
		n["founded"] = model.Int(int64(y))
	}
	return n
}

func TestSufficientExactThreshold(t *testing.T) {
	// 2 of 4 populated is exactly 0.5 and must pass.
	atThreshold := model.Needle{
		"a": model.String("x"),
		"b": model.Int(1),
		"c": model.Null(),
		"d": model.Null(),
	}
	assert.True(t, Sufficient(atThreshold, 0.5))

	// 1 of 4 is below.
	below := model.Needle{
		"a": model.String("x"),
		"b": model.Null(),
		"c": model.Null(),
		"d": model.Null(),
	}
	assert.False(t, Sufficient(below, 0.5))

	// A zero threshold admits fully-null needles.
	allNull := model.Needle{"a": model.Null()}
	assert.True(t, Sufficient(allNull, 0))

	// A needle with no fields is never sufficient.
	assert.False(t, Sufficient(model.Needle{}, 0))
}

func TestSufficiencyPassPreservesOrder(t *testing.T) {
	needles := []model.Needle{
		needle("First", 1998),
		needle("Sparse", nil),
		needle("Second", 2001),
	}
	kept, dropped := SufficiencyPass(needles, 0.5)
	require.Len(t, kept, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, model.String("First"), kept[0]["name"])
	assert.Equal(t, model.String("Second"), kept[1]["name"])
}

func TestDeduplicateKeepsFirstOccurrence(t *testing.T) {
	needles := []model.Needle{
		needle("Acme", 1998),
		needle("Globex", 2001),
		needle("Acme", 1998),
	}
	kept, dropped := Deduplicate(needles)
	require.Len(t, kept, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, model.String("Acme"), kept[0]["name"])
	assert.Equal(t, model.String("Globex"), kept[1]["name"])
}

func TestDeduplicateCollapsesNearDuplicates(t *testing.T) {
	needles := []model.Needle{
		needle("Acme Corp", 1998),
		needle("Acme Corp.", 1998),
		needle("ACME CORP", 1998),
	}
	kept, dropped := Deduplicate(needles)
	require.Len(t, kept, 1)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, model.String("Acme Corp"), kept[0]["name"])
}

func TestDeduplicateDistinguishesDifferingFields(t *testing.T) {
	kept, dropped := Deduplicate([]model.Needle{
		needle("Acme Corp", 1998),
		needle("Acme Corp", 2001),
	})
	assert.Len(t, kept, 2)
	assert.Zero(t, dropped)
}

func TestDeduplicateIdempotent(t *testing.T) {
	needles := []model.Needle{
		needle("Acme Corp", 1998),
		needle("Acme, Inc.", 1998),
		needle("Acme Corp.", 1998),
		needle("Globex", 2001),
	}
	once, _ := Deduplicate(needles)
	twice, droppedAgain := Deduplicate(once)
	assert.Equal(t, once, twice)
	assert.Zero(t, droppedAgain)
}

func TestApplyOrderAndStats(t *testing.T) {
	needles := []model.Needle{
		needle("Acme Corp", 1998),
		needle("Sparse", nil),
		needle("Acme Corp.", 1998),
		needle("Globex", 2001),
	}
	kept, stats := Apply(needles, 0.5)
	require.Len(t, kept, 2)
	assert.Equal(t, 1, stats.Insufficient)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, model.String("Acme Corp"), kept[0]["name"])
	assert.Equal(t, model.String("Globex"), kept[1]["name"])
}

func TestNormalizeString(t *testing.T) {
	assert.Equal(t, NormalizeString("Acme Corp"), NormalizeString("Acme Corp."))
	assert.Equal(t, NormalizeString("Acme Corp"), NormalizeString("acme corp"))
	assert.Equal(t, NormalizeString("Acme Corp"), NormalizeString("  Acme   Corp  "))
	assert.Equal(t, NormalizeString("Acme"), NormalizeString("Acme, Inc."))
	assert.NotEqual(t, NormalizeString("Acme"), NormalizeString("Globex"))

	// Width folding: full-width letters compare equal to ASCII.
	assert.Equal(t, NormalizeString("ＡＣＭＥ"), NormalizeString("acme"))
}
