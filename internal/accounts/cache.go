package accounts

import (
	"context"
	"fmt"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/objectstore"
)

// Cache holds the last fetched account snapshot. The per-account fan-out
// reads its account ids from here.
type Cache interface {
	Load(ctx context.Context) ([]domain.Account, error)
	Save(ctx context.Context, accounts []domain.Account) error
}

// BlobCache keeps the snapshot as a JSON array in an objectstore.Blob.
type BlobCache struct {
	blob objectstore.Blob
}

// NewBlobCache returns a Cache backed by blob.
func NewBlobCache(blob objectstore.Blob) *BlobCache {
	return &BlobCache{blob: blob}
}

// Load returns the cached accounts. A cache that was never written yields
// an error wrapping objectstore.ErrNotFound.
func (c *BlobCache) Load(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := objectstore.LoadJSON(ctx, c.blob, &accounts); err != nil {
		return nil, fmt.Errorf("BlobCache.Load: %w", err)
	}
	return accounts, nil
}

// Save overwrites the snapshot.
func (c *BlobCache) Save(ctx context.Context, accounts []domain.Account) error {
	if accounts == nil {
		accounts = []domain.Account{}
	}
	if err := objectstore.SaveJSON(ctx, c.blob, accounts); err != nil {
		return fmt.Errorf("BlobCache.Save: %w", err)
	}
	return nil
}

var _ Cache = (*BlobCache)(nil)
