package guard

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MarkupPattern is one entry of the unsafe-markup denylist.
type MarkupPattern struct {
	Name string
	Expr *regexp.Regexp
}

// UnsafeMarkupPatterns lists the markup that is never stored. It is a denylist backing up
// Sanitize, not a parser, so it can miss obfuscated input.
var UnsafeMarkupPatterns = []MarkupPattern{
	{Name: "script_tag", Expr: regexp.MustCompile(`(?i)<\s*/?\s*script\b`)},
	{Name: "event_handler", Expr: regexp.MustCompile(`(?i)<[^>]*[\s/"']on[a-z]+\s*=`)},
	{Name: "javascript_uri", Expr: regexp.MustCompile(`(?i)javascript\s*:`)},
	{Name: "vbscript_uri", Expr: regexp.MustCompile(`(?i)vbscript\s*:`)},
	{Name: "embedded_frame", Expr: regexp.MustCompile(`(?i)<\s*(iframe|object|embed)\b`)},
	{Name: "css_expression", Expr: regexp.MustCompile(`(?i)expression\s*\(`)},
	{Name: "html_data_uri", Expr: regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
}

// ContainsUnsafeMarkup reports whether text matches any UnsafeMarkupPatterns entry.
func ContainsUnsafeMarkup(text string) bool {
	return MatchUnsafeMarkup(text) != ""
}

// MatchUnsafeMarkup returns the name of the first matching pattern, or "".
func MatchUnsafeMarkup(text string) string {
	if text == "" {
		return ""
	}
	for _, p := range UnsafeMarkupPatterns {
		if p.Expr.MatchString(text) {
			return p.Name
		}
	}
	return ""
}

// Sanitizer reduces user text to a minimal inline-formatting subset of HTML.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer allows p, br, strong, em and u, with every attribute stripped.
func NewSanitizer() *Sanitizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("p", "br", "strong", "em", "u")
	return &Sanitizer{policy: policy}
}

var defaultSanitizer = NewSanitizer()

// Sanitize runs text through the default Sanitizer.
func Sanitize(text string) string {
	return defaultSanitizer.Sanitize(text)
}

// Sanitize returns text with every disallowed element and attribute removed. The output never
// matches UnsafeMarkupPatterns and Sanitize(Sanitize(x)) == Sanitize(x).
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil || s.policy == nil {
		return ""
	}
	text = stripControl(text)
	if text == "" {
		return ""
	}
	out := s.policy.Sanitize(text)
	// Text nodes survive the policy verbatim, so scheme-like payloads are scrubbed until none
	// remain. Each pass shortens the string.
	for {
		scrubbed := out
		for _, p := range UnsafeMarkupPatterns {
			scrubbed = p.Expr.ReplaceAllString(scrubbed, "")
		}
		if scrubbed == out {
			return out
		}
		out = scrubbed
	}
}

// stripControl drops invalid UTF-8 and control characters other than tab and newline.
func stripControl(text string) string {
	text = strings.ToValidUTF8(text, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, text)
}
