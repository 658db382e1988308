package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/objectstore"
)

// CredentialStore holds the single live credential.
type CredentialStore interface {
	// Load returns the stored credential, or an error wrapping
	// objectstore.ErrNotFound when none has been saved.
	Load(ctx context.Context) (*domain.Credential, error)

	// Save overwrites the stored credential as one unit.
	Save(ctx context.Context, cred *domain.Credential) error
}

// BlobCredentialStore keeps the credential as a JSON document in a Blob.
type BlobCredentialStore struct {
	blob objectstore.Blob
}

// NewBlobCredentialStore returns a credential store over blob.
func NewBlobCredentialStore(blob objectstore.Blob) *BlobCredentialStore {
	return &BlobCredentialStore{blob: blob}
}

// Load implements CredentialStore.
func (s *BlobCredentialStore) Load(ctx context.Context) (*domain.Credential, error) {
	var cred domain.Credential
	if err := objectstore.LoadJSON(ctx, s.blob, &cred); err != nil {
		return nil, fmt.Errorf("BlobCredentialStore.Load: %w", err)
	}
	if cred.AccessToken == "" || cred.RefreshToken == "" {
		return nil, errors.New("BlobCredentialStore.Load: credential record is incomplete")
	}
	return &cred, nil
}

// Save implements CredentialStore.
func (s *BlobCredentialStore) Save(ctx context.Context, cred *domain.Credential) error {
	if err := objectstore.SaveJSON(ctx, s.blob, cred); err != nil {
		return fmt.Errorf("BlobCredentialStore.Save: %w", err)
	}
	return nil
}

var _ CredentialStore = (*BlobCredentialStore)(nil)
