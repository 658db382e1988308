package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS is a Blob stored as a single Cloud Storage object. Object writes are
// atomic: readers see either the old or the new document.
type GCS struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCS creates a storage client and returns the blob at uri
// (gs://bucket/path/to/object.json).
// It assumes Application Default Credentials unless opts say otherwise.
func NewGCS(ctx context.Context, uri string, opts ...option.ClientOption) (*GCS, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCS: create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket, object: object}, nil
}

// NewGCSWithClient returns the blob at uri using an existing client.
func NewGCSWithClient(client *storage.Client, uri string) (*GCS, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	return &GCS{client: client, bucket: bucket, object: object}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Load downloads the object.
func (g *GCS) Load(ctx context.Context) ([]byte, error) {
	rc, err := g.client.Bucket(g.bucket).Object(g.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("GCS.Load: gs://%s/%s: %w", g.bucket, g.object, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GCS.Load: reading object %s/%s: %w", g.bucket, g.object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCS.Load: reading bytes: %w", err)
	}
	return data, nil
}

// Save uploads data, replacing the object.
func (g *GCS) Save(ctx context.Context, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(g.object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("GCS.Save: writing object: %w", err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCS.Save: finalize upload: %w", err)
	}
	return nil
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}
