package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/objectstore"
	"github.com/dvloznov/bank-sync/internal/retry"
)

// Manager hands out a usable access token, refreshing the stored
// credential when it has gone stale.
type Manager struct {
	store     CredentialStore
	exchanger TokenExchanger
	policy    retry.Policy
	now       func() time.Time
	log       zerolog.Logger
}

// ManagerOption customises a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithRetryPolicy overrides the refresh retry policy.
func WithRetryPolicy(p retry.Policy) ManagerOption {
	return func(m *Manager) { m.policy = p }
}

// NewManager returns a token manager. Refresh is retried 3 times, 2s apart,
// unless overridden.
func NewManager(store CredentialStore, exchanger TokenExchanger, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		exchanger: exchanger,
		policy:    retry.Fixed(3, 2*time.Second),
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetValidToken returns the stored access token while it is fresh and
// refreshes it once now is past its expiry. If the refreshed credential
// cannot be stored, the new token is still returned, together with an
// error wrapping domain.ErrPersistence.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	cred, err := m.store.Load(ctx)
	if errors.Is(err, objectstore.ErrNotFound) {
		return "", fmt.Errorf("GetValidToken: %w: %v", domain.ErrAuthRequired, err)
	}
	if err != nil {
		return "", fmt.Errorf("GetValidToken: loading credential: %w: %w", domain.ErrPersistence, err)
	}

	if !cred.Expired(m.now()) {
		return cred.AccessToken, nil
	}

	m.log.Info().Time("expires_at", cred.ExpiresAt).Msg("Access token expired, refreshing")
	fresh, err := m.Refresh(ctx, cred)
	if fresh == nil {
		return "", err
	}
	return fresh.AccessToken, err
}

// Refresh exchanges cred's refresh token and persists the new pair.
// On failure the stored credential is left as it was. When only the save
// fails, the fresh credential is returned along with an error wrapping
// domain.ErrPersistence: it is good for this run, but a rotated refresh
// token is lost and the next run will need a new bootstrap.
func (m *Manager) Refresh(ctx context.Context, cred *domain.Credential) (*domain.Credential, error) {
	var fresh *domain.Credential
	attempts, err := m.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		c, err := m.exchanger.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			m.log.Warn().Err(err).Int("attempt", attempt).Msg("Token refresh failed")
			return err
		}
		fresh = c
		return nil
	}, isRetryableRefresh)
	if err != nil {
		return nil, fmt.Errorf("Refresh: after %d attempt(s): %w: %v", attempts, domain.ErrAuthExpired, err)
	}

	if err := m.store.Save(ctx, fresh); err != nil {
		m.log.Error().Err(err).Msg("Failed to persist refreshed credential")
		return fresh, fmt.Errorf("Refresh: saving credential: %w: %w", domain.ErrPersistence, err)
	}

	m.log.Info().Time("expires_at", fresh.ExpiresAt).Msg("Access token refreshed")
	return fresh, nil
}

// Bootstrap performs the one-time authorization code exchange and stores
// the resulting credential.
func (m *Manager) Bootstrap(ctx context.Context, code string) (*domain.Credential, error) {
	if code == "" {
		return nil, errors.New("Bootstrap: authorization code is required")
	}
	cred, err := m.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("Bootstrap: exchanging code: %w", err)
	}
	if err := m.store.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("Bootstrap: saving credential: %w", err)
	}
	m.log.Info().Time("expires_at", cred.ExpiresAt).Msg("Stored initial credential")
	return cred, nil
}

func isRetryableRefresh(err error) bool {
	if isPermanentTokenError(err) {
		return false
	}
	return retry.IsTransient(err)
}
