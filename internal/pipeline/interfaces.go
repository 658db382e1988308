package pipeline

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/bank-sync/internal/accounts"
	"github.com/dvloznov/bank-sync/internal/categorize"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ingest"
	"github.com/dvloznov/bank-sync/internal/truelayer"
)

// TokenSource hands out a bearer token that is valid right now.
// *auth.Manager implements it.
type TokenSource interface {
	GetValidToken(ctx context.Context) (string, error)
}

// AccountFetcher is the part of *accounts.Service the run needs.
type AccountFetcher interface {
	FetchAccounts(ctx context.Context, token string) ([]domain.Account, error)
	FetchAllTransactions(ctx context.Context, token string) (*accounts.Fetched[[]truelayer.Transaction], error)
	FetchAllBalances(ctx context.Context, token string) (*accounts.Fetched[*truelayer.Balance], error)
	FetchAllPendingTransactions(ctx context.Context, token string) (*accounts.Fetched[[]truelayer.Transaction], error)
	FetchAllDirectDebits(ctx context.Context, token string) (*accounts.Fetched[[]truelayer.DirectDebit], error)
}

// Ingester persists fetched payloads. *ingest.Engine implements it.
type Ingester interface {
	Today() civil.Date
	PersistAccounts(ctx context.Context, accounts []domain.Account) error
	PersistAllTransactions(ctx context.Context, byAccount map[string][]truelayer.Transaction) ingest.Outcome
	PersistBalanceSnapshot(ctx context.Context, balances map[string]*truelayer.Balance, date civil.Date) ingest.SnapshotResult
}

// Categorizer fills in missing categories. *categorize.Engine implements it.
type Categorizer interface {
	Run(ctx context.Context) (categorize.Outcome, error)
}

// Deps are the components a sync run is assembled from. Only the
// components the chosen Mode uses need to be set.
type Deps struct {
	Tokens     TokenSource
	Accounts   AccountFetcher
	Ingest     Ingester
	Categorize Categorizer
}
