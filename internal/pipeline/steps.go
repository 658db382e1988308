package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/logger"
)

// PipelineStep represents a single step of a sync run.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// AuthenticateStep obtains a valid bearer token. Without one nothing else
// can run, so its failure aborts the run. A refreshed token that could not
// be stored is still used and the run is marked degraded.
type AuthenticateStep struct {
	Tokens TokenSource
}

func (s *AuthenticateStep) Name() string { return "authenticate" }

func (s *AuthenticateStep) Execute(ctx context.Context, state *PipelineState) error {
	token, err := s.Tokens.GetValidToken(ctx)
	if err != nil && (token == "" || !errors.Is(err, domain.ErrPersistence)) {
		return err
	}
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("Refreshed credential was not stored, next run may need a new authorization")
		state.Summary.recordFailure("persist credential", err)
	}
	state.Token = token
	return nil
}

// FetchAccountsStep refreshes the account list, which replaces both the
// account cache and the accounts table. An empty list aborts the run.
type FetchAccountsStep struct {
	Accounts AccountFetcher
	Ingest   Ingester
}

func (s *FetchAccountsStep) Name() string { return "fetch accounts" }

func (s *FetchAccountsStep) Execute(ctx context.Context, state *PipelineState) error {
	accounts, err := s.Accounts.FetchAccounts(ctx, state.Token)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		return domain.ErrNoAccounts
	}
	state.Accounts = accounts
	state.Summary.Accounts = len(accounts)

	if err := s.Ingest.PersistAccounts(ctx, accounts); err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("Failed to persist accounts snapshot")
		state.Summary.recordFailure("persist accounts", err)
	}
	return nil
}

// IngestTransactionsStep fetches settled transactions of every account and
// stores the ones not seen before.
type IngestTransactionsStep struct {
	Accounts AccountFetcher
	Ingest   Ingester
}

func (s *IngestTransactionsStep) Name() string { return "ingest transactions" }

func (s *IngestTransactionsStep) Execute(ctx context.Context, state *PipelineState) error {
	fetched, err := s.Accounts.FetchAllTransactions(ctx, state.Token)
	if fetched != nil {
		state.Summary.TransactionFetchFailures = failedIDs(fetched.Failed)
	}
	if err := isolate(state, "fetch transactions", err); err != nil {
		return err
	}
	if fetched == nil {
		return nil
	}

	outcome := s.Ingest.PersistAllTransactions(ctx, fetched.ByAccount)
	state.Summary.Transactions = &outcome
	return nil
}

// ReportPendingStep fetches pending transactions and direct debits. They
// are counted for the summary and not persisted.
type ReportPendingStep struct {
	Accounts AccountFetcher
}

func (s *ReportPendingStep) Name() string { return "report pending" }

func (s *ReportPendingStep) Execute(ctx context.Context, state *PipelineState) error {
	pending, err := s.Accounts.FetchAllPendingTransactions(ctx, state.Token)
	if err := isolate(state, "fetch pending transactions", err); err != nil {
		return err
	}
	if pending != nil {
		for _, txs := range pending.ByAccount {
			state.Summary.PendingTransactions += len(txs)
		}
	}

	debits, err := s.Accounts.FetchAllDirectDebits(ctx, state.Token)
	if err := isolate(state, "fetch direct debits", err); err != nil {
		return err
	}
	if debits != nil {
		for _, dds := range debits.ByAccount {
			state.Summary.DirectDebits += len(dds)
		}
	}
	return nil
}

// SnapshotBalancesStep records today's balance of every account. Running
// it twice on the same day is a no-op.
type SnapshotBalancesStep struct {
	Accounts AccountFetcher
	Ingest   Ingester
}

func (s *SnapshotBalancesStep) Name() string { return "snapshot balances" }

func (s *SnapshotBalancesStep) Execute(ctx context.Context, state *PipelineState) error {
	fetched, err := s.Accounts.FetchAllBalances(ctx, state.Token)
	if fetched != nil {
		state.Summary.BalanceFetchFailures = failedIDs(fetched.Failed)
	}
	if err := isolate(state, "fetch balances", err); err != nil {
		return err
	}
	if fetched == nil {
		return nil
	}

	result := s.Ingest.PersistBalanceSnapshot(ctx, fetched.ByAccount, s.Ingest.Today())
	state.Summary.Snapshot = &result
	return nil
}

// CategorizeStep labels every transaction that has no category yet.
type CategorizeStep struct {
	Categorize Categorizer
}

func (s *CategorizeStep) Name() string { return "categorize" }

func (s *CategorizeStep) Execute(ctx context.Context, state *PipelineState) error {
	outcome, err := s.Categorize.Run(ctx)
	if err != nil {
		logger.FromContext(ctx).Error().Err(err).Msg("Categorization run failed")
		state.Summary.recordFailure("categorize", err)
		return nil
	}
	state.Summary.Categorize = &outcome
	return nil
}

// isolate decides whether a fan-out error ends the run. A missing account
// list is a precondition failure; every account failing is reported and
// the run moves on to its next step.
func isolate(state *PipelineState, what string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrAllFetchesFailed):
		state.Summary.recordFailure(what, err)
		return nil
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

func failedIDs(failed map[string]error) []string {
	if len(failed) == 0 {
		return nil
	}
	ids := make([]string, 0, len(failed))
	for id := range failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
