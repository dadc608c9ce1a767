package haystack

import "strings"

// DefaultChunkTokens is the approximate token budget per chunk.
const DefaultChunkTokens = 32000

// EstimateTokens approximates the token count of text. English prose averages
// roughly four bytes per token across common BPE vocabularies; that is close
// enough for chunk sizing, which only needs to keep requests under the model
// context window with margin.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Chunk splits text into chunks of at most maxTokens approximate tokens,
// breaking only on paragraph boundaries (blank lines). A single paragraph
// larger than the budget becomes its own chunk rather than being split
// mid-paragraph. Empty input yields no chunks.
func Chunk(text string, maxTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder
	currentTokens := 0

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pTokens := EstimateTokens(p)
		if currentTokens+pTokens > maxTokens && current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
			currentTokens = 0
		}
		current.WriteString(p)
		current.WriteString("\n\n")
		currentTokens += pTokens
	}
	if current.Len() > 0 {
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}
	return chunks
}
