// Package ingest persists fetched accounts, transactions and balance
// snapshots. Every write is insert-if-absent, so a run can be repeated
// without duplicating rows.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/truelayer"
)

// Writer is the subset of the store the engine writes to.
type Writer interface {
	ReplaceAccounts(ctx context.Context, accounts []domain.Account) error
	InsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error)
	InsertBalanceSnapshot(ctx context.Context, snap *domain.BalanceSnapshot) (bool, error)
}

// TransactionResult summarises persisting one account's transactions.
type TransactionResult struct {
	AccountID  string
	Fetched    int
	Inserted   int
	Duplicates int
	Failed     []string
}

// Outcome summarises a whole ingestion run.
type Outcome struct {
	Accounts   int
	Fetched    int
	Inserted   int
	Duplicates int
	Failed     []string
}

// Add folds r into o.
func (o *Outcome) Add(r TransactionResult) {
	o.Accounts++
	o.Fetched += r.Fetched
	o.Inserted += r.Inserted
	o.Duplicates += r.Duplicates
	o.Failed = append(o.Failed, r.Failed...)
}

// SnapshotResult summarises one balance snapshot pass.
type SnapshotResult struct {
	Date     civil.Date
	Inserted int
	Skipped  int
	Failed   []string
}

// Engine is the Ingestion Engine.
type Engine struct {
	w   Writer
	now func() time.Time
	log zerolog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for created_at and Today.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an Engine writing to w.
func NewEngine(w Writer, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{w: w, now: time.Now, log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Today is the snapshot date for a run started now, in local time.
func (e *Engine) Today() civil.Date {
	return civil.DateOf(e.now())
}

// PersistAccounts replaces the stored account snapshot.
func (e *Engine) PersistAccounts(ctx context.Context, accounts []domain.Account) error {
	if err := e.w.ReplaceAccounts(ctx, accounts); err != nil {
		return fmt.Errorf("PersistAccounts: %w: %v", domain.ErrPersistence, err)
	}
	e.log.Info().Int("accounts", len(accounts)).Msg("Stored account snapshot")
	return nil
}

// PersistTransactions writes one account's transactions. A row that cannot
// be converted or written is recorded in Failed and the rest continue.
func (e *Engine) PersistTransactions(ctx context.Context, accountID string, txs []truelayer.Transaction) TransactionResult {
	res := TransactionResult{AccountID: accountID, Fetched: len(txs)}

	for i := range txs {
		tx, err := toDomain(accountID, &txs[i])
		if err == nil {
			var inserted bool
			inserted, err = e.w.InsertTransaction(ctx, tx)
			if err == nil {
				if inserted {
					res.Inserted++
				} else {
					res.Duplicates++
				}
				continue
			}
			err = fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}

		id := txs[i].TransactionID
		if id == "" {
			id = fmt.Sprintf("%s#%d", accountID, i)
		}
		e.log.Error().Err(err).
			Str("account_id", accountID).
			Str("transaction_id", id).
			Msg("Failed to persist transaction")
		res.Failed = append(res.Failed, id)
	}

	e.log.Info().
		Str("account_id", accountID).
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("duplicates", res.Duplicates).
		Int("failed", len(res.Failed)).
		Msg("Persisted transactions")
	return res
}

// PersistAllTransactions persists every account's transactions, accounts
// in id order.
func (e *Engine) PersistAllTransactions(ctx context.Context, byAccount map[string][]truelayer.Transaction) Outcome {
	var out Outcome
	for _, id := range sortedKeys(byAccount) {
		out.Add(e.PersistTransactions(ctx, id, byAccount[id]))
	}
	return out
}

// PersistBalanceSnapshot writes one snapshot per account for date. A
// second call for the same date writes nothing.
func (e *Engine) PersistBalanceSnapshot(ctx context.Context, balances map[string]*truelayer.Balance, date civil.Date) SnapshotResult {
	res := SnapshotResult{Date: date}
	created := e.now()

	for _, id := range sortedKeys(balances) {
		b := balances[id]
		if b == nil {
			e.log.Warn().Str("account_id", id).Msg("No balance to snapshot")
			res.Failed = append(res.Failed, id)
			continue
		}

		inserted, err := e.w.InsertBalanceSnapshot(ctx, &domain.BalanceSnapshot{
			AccountID:        id,
			SnapshotDate:     date,
			CurrentBalance:   b.Current,
			AvailableBalance: b.Available,
			OverdraftLimit:   b.Overdraft,
			CreatedAt:        created,
		})
		if err != nil {
			e.log.Error().Err(fmt.Errorf("%w: %v", domain.ErrPersistence, err)).
				Str("account_id", id).
				Str("snapshot_date", date.String()).
				Msg("Failed to persist balance snapshot")
			res.Failed = append(res.Failed, id)
			continue
		}
		if inserted {
			res.Inserted++
		} else {
			res.Skipped++
		}
	}

	e.log.Info().
		Str("snapshot_date", date.String()).
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Failed)).
		Msg("Persisted balance snapshot")
	return res
}

var errMissingID = errors.New("transaction has no id")

// toDomain maps a provider transaction onto the stored shape. The date is
// the date part of the provider timestamp, as the provider reported it.
// Category and merchant name start out empty.
func toDomain(accountID string, t *truelayer.Transaction) (*domain.Transaction, error) {
	if strings.TrimSpace(t.TransactionID) == "" {
		return nil, errMissingID
	}
	date, err := transactionDate(t.Timestamp)
	if err != nil {
		return nil, err
	}

	var running *decimal.Decimal
	if t.RunningBalance != nil {
		rb := t.RunningBalance.Amount
		running = &rb
	}

	return &domain.Transaction{
		TransactionID:   t.TransactionID,
		AccountID:       accountID,
		Amount:          t.Amount,
		Currency:        t.Currency,
		Description:     t.Description,
		TransactionDate: date,
		Timestamp:       t.Timestamp,
		TransactionType: t.TransactionType,
		RunningBalance:  running,
	}, nil
}

func transactionDate(timestamp string) (civil.Date, error) {
	if len(timestamp) < 10 {
		return civil.Date{}, fmt.Errorf("timestamp %q has no date part", timestamp)
	}
	d, err := civil.ParseDate(timestamp[:10])
	if err != nil {
		return civil.Date{}, fmt.Errorf("timestamp %q: %w", timestamp, err)
	}
	return d, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
