package utils

import (
	"strings"
	"unicode/utf8"
)

// TruncateForLog keeps at most limit runes of s for a log line.
func TruncateForLog(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + "..."
}

// CeilSeconds converts milliseconds to whole seconds, rounding up.
func CeilSeconds(ms int64) int64 {
	if ms <= 0 {
		return 0
	}
	return (ms + 999) / 1000
}
