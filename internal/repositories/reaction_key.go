package repositories

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ReactionID derives the document id of the single reaction a fingerprint may leave with an
// emoji on a memory. Equal inputs always map to the same id.
func ReactionID(memoryID, emoji, fingerprint string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(memoryID),
		strings.TrimSpace(emoji),
		strings.TrimSpace(fingerprint),
	}, "\x00")))
	return "rct_" + hex.EncodeToString(sum[:16])
}
