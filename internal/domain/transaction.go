package domain

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Transaction is one settled transaction as mirrored locally.
// Once persisted it is immutable except for the single write that moves
// Category from nil to a label of the closed category set.
type Transaction struct {
	TransactionID   string
	AccountID       string
	Amount          decimal.Decimal // signed, negative = debit
	Currency        string
	Description     string
	TransactionDate civil.Date // date component of Timestamp
	Timestamp       string     // as returned by the provider
	TransactionType string
	Category        *string
	MerchantName    *string
	RunningBalance  *decimal.Decimal
}

// Account is a linked bank account. The local copy is snapshot-replaced on
// every successful fetch.
type Account struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	AccountType string `json:"account_type"`
	Currency    string `json:"currency,omitempty"`
}

// BalanceSnapshot is the balance of one account on one calendar day.
// (AccountID, SnapshotDate) is its natural key.
type BalanceSnapshot struct {
	AccountID        string
	SnapshotDate     civil.Date
	CurrentBalance   decimal.NullDecimal
	AvailableBalance decimal.NullDecimal
	OverdraftLimit   decimal.NullDecimal
	CreatedAt        time.Time
}

// Credential is the single live access/refresh token pair. It is always
// replaced wholesale, never partially updated.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the access token is stale at now.
// A token is still usable at exactly ExpiresAt.
func (c *Credential) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
