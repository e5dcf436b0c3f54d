package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

const mediaCacheControl = "public, max-age=31536000, immutable"

// StoredObject describes an uploaded media file.
type StoredObject struct {
	Bucket string
	Path   string
	URL    string
	Size   int64
}

// MediaStore writes wall media to a Cloud Storage bucket and returns public URLs.
type MediaStore struct {
	client  *gcs.Client
	bucket  string
	baseURL string
}

// NewMediaStore binds a store to bucket. baseURL prefixes public object URLs.
func NewMediaStore(client *gcs.Client, bucket, baseURL string) (*MediaStore, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &MediaStore{client: client, bucket: bucket, baseURL: baseURL}, nil
}

// Put streams body to objectPath with contentType. The object is immutable once written, so a
// precondition rejects overwrites.
func (s *MediaStore) Put(ctx context.Context, objectPath, contentType string, body io.Reader) (StoredObject, error) {
	if strings.TrimSpace(objectPath) == "" {
		return StoredObject{}, errors.New("storage: object path is required")
	}
	obj := s.client.Bucket(s.bucket).Object(objectPath).If(gcs.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = mediaCacheControl

	written, err := io.Copy(w, body)
	if err != nil {
		_ = w.Close()
		return StoredObject{}, fmt.Errorf("storage: write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return StoredObject{}, fmt.Errorf("storage: finalize %s: %w", objectPath, err)
	}
	return StoredObject{
		Bucket: s.bucket,
		Path:   objectPath,
		URL:    PublicURL(s.baseURL, s.bucket, objectPath),
		Size:   written,
	}, nil
}

// DeletePrefix removes every object under prefix and returns how many were deleted.
func (s *MediaStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	bucket := s.client.Bucket(s.bucket)
	it := bucket.Objects(ctx, &gcs.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return deleted, nil
		}
		if err != nil {
			return deleted, fmt.Errorf("storage: list %s: %w", prefix, err)
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return deleted, fmt.Errorf("storage: delete %s: %w", attrs.Name, err)
		}
		deleted++
	}
}

// Bucket returns the bucket name.
func (s *MediaStore) Bucket() string { return s.bucket }
