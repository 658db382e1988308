// Package accounts fetches linked accounts and fans per-account reads out
// over the cached account list.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/objectstore"
	"github.com/dvloznov/bank-sync/internal/truelayer"
)

// API is the part of the open-banking client the service needs.
type API interface {
	Accounts(ctx context.Context, token string) ([]truelayer.Account, error)
	Balance(ctx context.Context, token, accountID string) (*truelayer.Balance, error)
	Transactions(ctx context.Context, token, accountID string) ([]truelayer.Transaction, error)
	PendingTransactions(ctx context.Context, token, accountID string) ([]truelayer.Transaction, error)
	DirectDebits(ctx context.Context, token, accountID string) ([]truelayer.DirectDebit, error)
}

// Fetched is the result of a per-account fan-out. An account appears in
// exactly one of the two maps.
type Fetched[T any] struct {
	ByAccount map[string]T
	Failed    map[string]error
}

// Service is the Account Service.
type Service struct {
	api         API
	cache       Cache
	concurrency int
	log         zerolog.Logger
}

// NewService returns a Service. concurrency bounds how many accounts are
// fetched at once; values below 1 mean one at a time.
func NewService(api API, cache Cache, concurrency int, log zerolog.Logger) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Service{api: api, cache: cache, concurrency: concurrency, log: log}
}

// FetchAccounts lists the linked accounts and replaces the cached snapshot.
func (s *Service) FetchAccounts(ctx context.Context, token string) ([]domain.Account, error) {
	remote, err := s.api.Accounts(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("FetchAccounts: %w", err)
	}

	accounts := make([]domain.Account, 0, len(remote))
	for _, a := range remote {
		if a.AccountID == "" {
			s.log.Warn().Str("display_name", a.DisplayName).Msg("Skipping account without id")
			continue
		}
		accounts = append(accounts, domain.Account{
			AccountID:   a.AccountID,
			DisplayName: a.DisplayName,
			AccountType: a.AccountType,
			Currency:    a.Currency,
		})
	}

	if err := s.cache.Save(ctx, accounts); err != nil {
		return nil, fmt.Errorf("FetchAccounts: saving account cache: %w", err)
	}
	s.log.Info().Int("accounts", len(accounts)).Msg("Fetched accounts")
	return accounts, nil
}

// Accounts returns the cached account snapshot.
func (s *Service) Accounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := s.cache.Load(ctx)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Accounts: %w", err)
	}
	return accounts, nil
}

// Project returns one field of every cached account.
func (s *Service) Project(ctx context.Context, p Projection) ([]string, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	return p.Apply(accounts)
}

// AccountIDByName looks up a cached account by display name.
func (s *Service) AccountIDByName(ctx context.Context, name string) (string, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return "", err
	}
	for _, a := range accounts {
		if a.DisplayName == name {
			return a.AccountID, nil
		}
	}
	return "", fmt.Errorf("AccountIDByName: no account named %q", name)
}

// FetchAllTransactions fetches settled transactions of every cached account.
func (s *Service) FetchAllTransactions(ctx context.Context, token string) (*Fetched[[]truelayer.Transaction], error) {
	return fanOut(ctx, s, "transactions", func(ctx context.Context, id string) ([]truelayer.Transaction, error) {
		return s.api.Transactions(ctx, token, id)
	})
}

// FetchAllBalances fetches the current balance of every cached account.
func (s *Service) FetchAllBalances(ctx context.Context, token string) (*Fetched[*truelayer.Balance], error) {
	return fanOut(ctx, s, "balances", func(ctx context.Context, id string) (*truelayer.Balance, error) {
		return s.api.Balance(ctx, token, id)
	})
}

// FetchAllPendingTransactions fetches pending transactions of every cached account.
func (s *Service) FetchAllPendingTransactions(ctx context.Context, token string) (*Fetched[[]truelayer.Transaction], error) {
	return fanOut(ctx, s, "pending transactions", func(ctx context.Context, id string) ([]truelayer.Transaction, error) {
		return s.api.PendingTransactions(ctx, token, id)
	})
}

// FetchAllDirectDebits fetches direct debit mandates of every cached account.
func (s *Service) FetchAllDirectDebits(ctx context.Context, token string) (*Fetched[[]truelayer.DirectDebit], error) {
	return fanOut(ctx, s, "direct debits", func(ctx context.Context, id string) ([]truelayer.DirectDebit, error) {
		return s.api.DirectDebits(ctx, token, id)
	})
}

// fanOut runs fetch for each cached account. One account failing never
// stops the others; only a fan-out where every account failed is an error.
func fanOut[T any](ctx context.Context, s *Service, what string, fetch func(ctx context.Context, accountID string) (T, error)) (*Fetched[T], error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: reading account cache: %w", what, err)
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("fetching %s: %w", what, domain.ErrNoAccounts)
	}

	out := &Fetched[T]{
		ByAccount: make(map[string]T, len(accounts)),
		Failed:    make(map[string]error),
	}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, a := range accounts {
		id := a.AccountID
		g.Go(func() error {
			v, err := fetch(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Error().Err(err).Str("account_id", id).Msgf("Failed to fetch %s", what)
				out.Failed[id] = err
				return nil
			}
			out.ByAccount[id] = v
			return nil
		})
	}
	_ = g.Wait()

	if len(out.ByAccount) == 0 {
		return out, fmt.Errorf("fetching %s for %d account(s): %w", what, len(accounts), domain.ErrAllFetchesFailed)
	}
	s.log.Info().
		Int("succeeded", len(out.ByAccount)).
		Int("failed", len(out.Failed)).
		Msgf("Fetched %s", what)
	return out, nil
}
