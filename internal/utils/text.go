package utils

import (
	"strings"
	"unicode/utf8"
)

// SafeUTF8Truncate truncates s to at most maxBytes bytes without splitting a
// multi-byte character.
//
//	SafeUTF8Truncate("你好世界", 7) // "你好"
func SafeUTF8Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// SanitizeUTF8 drops invalid byte sequences.
func SanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}

// CleanAndFormatContent trims every line, collapses runs of blank lines and
// truncates the result to maxLength bytes (0 means unlimited).
func CleanAndFormatContent(content string, maxLength int) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	cleaned := make([]string, 0, len(lines))
	lastWasEmpty := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !lastWasEmpty {
				cleaned = append(cleaned, "")
			}
			lastWasEmpty = true
			continue
		}
		cleaned = append(cleaned, line)
		lastWasEmpty = false
	}

	result := SanitizeUTF8(strings.Join(cleaned, "\n"))
	if maxLength > 0 && len(result) > maxLength {
		result = SafeUTF8Truncate(result, maxLength) + "..."
	}
	return result
}
