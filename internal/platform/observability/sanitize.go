package observability

import (
	"strings"
	"unicode"
)

// sanitizeString strips control characters (tabs survive) and caps value at limit runes so client
// supplied text cannot forge log lines.
func sanitizeString(value string, limit int) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) && r != '\t' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeFingerprint bounds a visitor fingerprint. Generated ones are well under 48 runes.
func SanitizeFingerprint(fp string) string {
	return sanitizeString(fp, 48)
}
