package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
)

// loadFallbackFile reads a dotenv file for local development. Keys are secret names in env form, so
// secret://discord-webhook is served by DISCORD_WEBHOOK. A missing file yields an empty set.
func loadFallbackFile(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return map[string]string{}, fmt.Errorf("secrets: read fallback file %s: %w", path, err)
	}
	return values, nil
}

// envKey maps a secret name onto the dotenv key that holds its local value.
func envKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
