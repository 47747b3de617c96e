package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims and collapses internal whitespace, then truncates to
// maxRunes without splitting a UTF-8 sequence. maxRunes <= 0 disables the cap.
func SanitizeString(input string, maxRunes int) string {
	s := strings.Join(strings.Fields(input), " ")
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i]
		}
		n++
	}
	return s
}
