package utils

// Truncate cuts s to maxLen runes and marks the cut with "...". Multi-byte
// characters are never split.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
