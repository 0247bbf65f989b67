// Package chunker keeps deck text within the LLM input budget.
package chunker

import "strings"

// EstimateTokens gives a rough token count of about 1.33 tokens per word.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
