package taskqueue

import "unicode/utf8"

// truncateError renders err for the last_error column, cut at a rune boundary
// to at most maxBytes.
func truncateError(err error, maxBytes int) string {
	if err == nil {
		return ""
	}
	return truncateString(err.Error(), maxBytes)
}

func truncateString(s string, maxBytes int) string {
	switch {
	case maxBytes <= 0:
		return ""
	case len(s) <= maxBytes:
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
