package chunker

import "strings"

// Tokenize splits text into whitespace-delimited tokens. Chunk windowing
// and overlap arithmetic both use this, so slicing and reconstruction stay
// exact. Exact LLM tokenization is not required for chunking.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// CountTokens returns the token count of text under the same scheme.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
