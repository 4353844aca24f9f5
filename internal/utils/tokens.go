package utils

import "strings"

// Token estimation uses the common ~4 characters per token heuristic; it is
// only used for logging and for bounding prompt sections, never for billing.
const charsPerToken = 4

// CountTokens estimates the number of tokens in the given text.
func CountTokens(text string) int {
	n := len([]rune(text))
	if n == 0 {
		return 0
	}
	return max(1, n/charsPerToken)
}

// TruncateToTokenLimit cuts text to roughly limit tokens, preferring the last
// line break inside the budget so bullet lists are not split mid-line.
func TruncateToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	charLimit := limit * charsPerToken
	if charLimit >= len(runes) {
		return text
	}
	cut := string(runes[:charLimit])
	if i := strings.LastIndexByte(cut, '\n'); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut
}

// TokenBreakdown returns estimated tokens per labeled prompt section.
func TokenBreakdown(sections map[string]string) map[string]int {
	out := make(map[string]int, len(sections))
	for k, v := range sections {
		out[k] = CountTokens(v)
	}
	return out
}
