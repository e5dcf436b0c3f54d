package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MediaPathParams identify one uploaded media object.
type MediaPathParams struct {
	WallID    string
	UploadAt  time.Time
	ObjectID  uuid.UUID
	Extension string
}

// BuildMediaPath composes "<wallId>/<unixMillis>-<uuid>.<ext>". A zero ObjectID gets a fresh
// random UUID.
func BuildMediaPath(params MediaPathParams) (string, error) {
	wallID, err := validateSegment("wallID", params.WallID)
	if err != nil {
		return "", err
	}
	ext := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(params.Extension)), ".")
	if ext == "" {
		return "", fmt.Errorf("storage: extension is required")
	}
	if _, err := validateSegment("extension", ext); err != nil {
		return "", err
	}
	if params.UploadAt.IsZero() {
		return "", fmt.Errorf("storage: upload time is required")
	}
	id := params.ObjectID
	if id == uuid.Nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s/%d-%s.%s", wallID, params.UploadAt.UnixMilli(), id.String(), ext), nil
}

// WallPrefix is the object prefix holding every media file of a wall.
func WallPrefix(wallID string) (string, error) {
	wallID, err := validateSegment("wallID", wallID)
	if err != nil {
		return "", err
	}
	return wallID + "/", nil
}

// PublicURL joins base, bucket, and object path. Path segments are escaped individually.
func PublicURL(base, bucket, objectPath string) string {
	segments := strings.Split(objectPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + bucket + "/" + strings.Join(segments, "/")
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
