// Package haystack prepares raw input text for extraction: optional dialogue
// removal and paragraph-based chunking under an approximate token budget.
package haystack

import (
	"regexp"
	"strings"
)

// quotedSpan matches a quoted span delimited by straight or curly quotes.
var quotedSpan = regexp.MustCompile(`(?s)["“][^"“”]*?["”]`)

// attributionAfter matches a speech attribution immediately following a
// quoted span, e.g. ` she said.` or `, asked Tom`.
var attributionAfter = regexp.MustCompile(`^[\s,]*(?:(?:he|she|they|I|we|it|[A-Z][a-zA-Z]*)\s+)?(?:said|says|asked|asks|replied|replies|answered|answers|shouted|whispered|muttered|exclaimed|cried|responded|remarked|continued|added)\b`)

// attributionBefore matches a speech attribution ending just before a quoted
// span, e.g. `She said, ` or `Tom asked: `.
var attributionBefore = regexp.MustCompile(`(?:said|says|asked|asks|replied|replies|answered|answers|shouted|whispered|muttered|exclaimed|cried|responded|remarked)[\s,:]*$`)

// contextWindow bounds how far around a quoted span attribution is searched.
const contextWindow = 40

// RemoveDialogue strips dialogue spans from text. A quoted span adjacent to a
// speech attribution ("she said", "asked Tom") is removed entirely, marks and
// all. Quoted spans without an attribution are kept but unquoted, so factual
// content inside incidental quotes survives extraction. Text without quotes
// passes through unchanged.
func RemoveDialogue(text string) string {
	spans := quotedSpan.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, span := range spans {
		start, end := span[0], span[1]
		b.WriteString(text[prev:start])

		if isDialogue(text, start, end) {
			prev = end
			continue
		}

		// Keep content, drop the quote marks themselves.
		inner := text[start:end]
		inner = strings.Trim(inner, `"“”`)
		b.WriteString(inner)
		prev = end
	}
	b.WriteString(text[prev:])
	return b.String()
}

// isDialogue reports whether the quoted span at [start,end) is adjacent to a
// speech attribution.
func isDialogue(text string, start, end int) bool {
	afterEnd := end + contextWindow
	if afterEnd > len(text) {
		afterEnd = len(text)
	}
	if attributionAfter.MatchString(text[end:afterEnd]) {
		return true
	}

	beforeStart := start - contextWindow
	if beforeStart < 0 {
		beforeStart = 0
	}
	return attributionBefore.MatchString(text[beforeStart:start])
}
