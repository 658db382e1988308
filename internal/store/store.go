// Package store defines the persistence contract shared by the SQLite and
// BigQuery backends.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
)

// Uncategorized is a transaction still waiting for a category.
type Uncategorized struct {
	TransactionID string
	Description   string
}

// CategoryAssignment moves one transaction's category from NULL to Category.
type CategoryAssignment struct {
	TransactionID string
	Category      string
}

// UsageRecord is one classification call's token usage and cost.
type UsageRecord struct {
	ID           string
	Model        string
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	Cost         decimal.Decimal
	CreatedAt    time.Time
}

// AccountStore holds the latest account snapshot.
type AccountStore interface {
	// ReplaceAccounts swaps the whole snapshot in one unit.
	ReplaceAccounts(ctx context.Context, accounts []domain.Account) error
}

// TransactionStore persists transactions. Rows are write-once except for
// the category column, which moves from NULL to a label exactly once.
type TransactionStore interface {
	// InsertTransaction writes tx unless a row with its id exists.
	// inserted is false for that no-op.
	InsertTransaction(ctx context.Context, tx *domain.Transaction) (inserted bool, err error)

	// ListUncategorized returns every transaction whose category is NULL,
	// in a stable order.
	ListUncategorized(ctx context.Context) ([]Uncategorized, error)

	// ApplyCategories commits one batch of assignments atomically. Rows
	// that already carry a category are left alone. It returns how many
	// rows changed.
	ApplyCategories(ctx context.Context, assignments []CategoryAssignment) (int64, error)

	// CountUncategorized returns the number of rows with a NULL category.
	CountUncategorized(ctx context.Context) (int64, error)
}

// BalanceStore persists daily balance snapshots.
type BalanceStore interface {
	// InsertBalanceSnapshot writes snap unless one exists for the same
	// account and day.
	InsertBalanceSnapshot(ctx context.Context, snap *domain.BalanceSnapshot) (inserted bool, err error)
}

// UsageStore records classification cost for auditing.
type UsageStore interface {
	InsertUsage(ctx context.Context, rec *UsageRecord) error
}

// Store is everything a sync run writes to.
type Store interface {
	AccountStore
	TransactionStore
	BalanceStore
	UsageStore
	Close() error
}
