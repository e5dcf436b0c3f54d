package handlers

import (
	"net/http"
	"strings"
	"unicode"

	"github.com/Piyushhbhutoria/memory-wall/internal/guard"
	"github.com/Piyushhbhutoria/memory-wall/internal/platform/requestctx"
)

const maxFingerprintLength = 128

// resolveFingerprint picks the visitor token for r: the X-Wall-Fingerprint header, then the
// value posted in the body, then a token derived from the request headers.
func resolveFingerprint(r *http.Request, posted string, identities *guard.IdentityGenerator) string {
	fp := cleanFingerprint(r.Header.Get(requestctx.FingerprintHeader))
	if fp == "" {
		fp = cleanFingerprint(posted)
	}
	if fp == "" && identities != nil {
		fp = identities.Generate(guard.EnvironmentFromRequest(r))
	}
	requestctx.Annotate(r.Context(), "fingerprint", fp)
	return fp
}

// cleanFingerprint trims raw to at most maxFingerprintLength bytes of valid UTF-8 without
// control characters. A rune split by the cut is dropped whole.
func cleanFingerprint(raw string) string {
	fp := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.ToValidUTF8(raw, ""))
	fp = strings.TrimSpace(fp)
	if len(fp) > maxFingerprintLength {
		fp = strings.TrimSpace(strings.ToValidUTF8(fp[:maxFingerprintLength], ""))
	}
	return fp
}
