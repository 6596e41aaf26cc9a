package outline

import (
	"strings"
	"unicode/utf8"
)

// SizeFunc measures chunk content for the packing bound.
type SizeFunc func(string) int

// CharCount measures content in runes, the default unit.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// EstimateTokens approximates LLM token counts from words.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 && len(strings.TrimSpace(text)) > 0 {
		return 1
	}
	return tokens
}
