// Package objectstore persists small JSON documents (the credential record,
// the account snapshot) on a swappable medium: a local file or a GCS object.
package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Load when nothing has been saved yet.
var ErrNotFound = errors.New("object not found")

// Blob is a single named document that is always read and written whole.
type Blob interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// Open returns the blob for a backend name ("file" or "gcs") and location.
func Open(ctx context.Context, backend, location string) (Blob, error) {
	switch strings.ToLower(backend) {
	case "", "file":
		return NewFile(location), nil
	case "gcs":
		return NewGCS(ctx, location)
	default:
		return nil, fmt.Errorf("objectstore.Open: unknown backend %q", backend)
	}
}

// LoadJSON decodes the blob into v.
func LoadJSON(ctx context.Context, b Blob, v any) error {
	data, err := b.Load(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("LoadJSON: decoding: %w", err)
	}
	return nil
}

// SaveJSON encodes v and overwrites the blob with it.
func SaveJSON(ctx context.Context, b Blob, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("SaveJSON: encoding: %w", err)
	}
	return b.Save(ctx, data)
}
