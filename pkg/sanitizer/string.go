package sanitizer

import "strings"

// TrimBounded trims surrounding whitespace and hard-caps the rune length.
func TrimBounded(value string, max int) string {
	trimmed := strings.TrimSpace(value)
	if max > 0 && len([]rune(trimmed)) > max {
		return string([]rune(trimmed)[:max])
	}
	return trimmed
}
