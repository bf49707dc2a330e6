package memory

import (
	"strings"
	"unicode/utf8"
)

// ─── Token Estimation ───────────────────────────────────────────────────────

// EstimateTokens approximates the token count for a text string using the
// chars/4 heuristic. Returns 0 for empty strings, at least 1 otherwise.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	tokens := n / 4
	if tokens == 0 {
		return 1
	}
	return tokens
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Truncate cuts s to at most max runes. max <= 0 leaves s untouched.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// Ellipsize is Truncate with "..." appended when something was cut.
func Ellipsize(s string, max int) string {
	t := Truncate(s, max)
	if len(t) < len(s) {
		return t + "..."
	}
	return t
}
