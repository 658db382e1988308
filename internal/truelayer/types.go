package truelayer

import (
	"github.com/shopspring/decimal"
)

// Account is an entry of GET /data/v1/accounts.
type Account struct {
	AccountID       string `json:"account_id"`
	AccountType     string `json:"account_type"`
	DisplayName     string `json:"display_name"`
	Currency        string `json:"currency"`
	UpdateTimestamp string `json:"update_timestamp"`
	Provider        struct {
		DisplayName string `json:"display_name"`
		ProviderID  string `json:"provider_id"`
	} `json:"provider"`
}

// Balance is the first result of GET /data/v1/accounts/{id}/balance.
// Any of the amounts may be missing for a given provider.
type Balance struct {
	Currency        string              `json:"currency"`
	Current         decimal.NullDecimal `json:"current"`
	Available       decimal.NullDecimal `json:"available"`
	Overdraft       decimal.NullDecimal `json:"overdraft"`
	UpdateTimestamp string              `json:"update_timestamp"`
}

// RunningBalance is the account balance right after a transaction.
type RunningBalance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Transaction is a settled or pending transaction. Amount is negative
// for debits.
type Transaction struct {
	TransactionID       string          `json:"transaction_id"`
	Timestamp           string          `json:"timestamp"`
	Description         string          `json:"description"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	TransactionType     string          `json:"transaction_type"`
	TransactionCategory string          `json:"transaction_category"`
	MerchantName        *string         `json:"merchant_name,omitempty"`
	RunningBalance      *RunningBalance `json:"running_balance,omitempty"`
}

// DirectDebit is a mandate listed by GET /data/v1/accounts/{id}/direct_debits.
type DirectDebit struct {
	DirectDebitID            string              `json:"direct_debit_id"`
	Timestamp                string              `json:"timestamp"`
	Name                     string              `json:"name"`
	Status                   string              `json:"status"`
	PreviousPaymentTimestamp string              `json:"previous_payment_timestamp"`
	PreviousPaymentAmount    decimal.NullDecimal `json:"previous_payment_amount"`
	Currency                 string              `json:"currency"`
}

// envelope is the wrapper every Data API list response uses.
type envelope[T any] struct {
	Results []T    `json:"results"`
	Status  string `json:"status"`
}
