package bigquery

import (
	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/store"
)

// uncategorizedRow is read back by ListUncategorized.
type uncategorizedRow struct {
	TransactionID string `bigquery:"transaction_id"`
	Description   string `bigquery:"description"`
}

// assignmentParam is one element of the ARRAY<STRUCT> passed to
// ApplyCategories.
type assignmentParam struct {
	TransactionID string `bigquery:"transaction_id"`
	Category      string `bigquery:"category"`
}

// accountParam is one element of the ARRAY<STRUCT> passed to
// ReplaceAccounts.
type accountParam struct {
	AccountID   string `bigquery:"account_id"`
	DisplayName string `bigquery:"display_name"`
	AccountType string `bigquery:"account_type"`
	Currency    string `bigquery:"currency"`
}

// nullNumeric carries an optional decimal as a STRING parameter; the SQL
// side casts it to NUMERIC.
func nullNumeric(d decimal.NullDecimal) bigquery.NullString {
	if !d.Valid {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: d.Decimal.String(), Valid: true}
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

func transactionParams(tx *domain.Transaction) []bigquery.QueryParameter {
	var running decimal.NullDecimal
	if tx.RunningBalance != nil {
		running = decimal.NewNullDecimal(*tx.RunningBalance)
	}
	return []bigquery.QueryParameter{
		{Name: "transaction_id", Value: tx.TransactionID},
		{Name: "account_id", Value: tx.AccountID},
		{Name: "amount", Value: tx.Amount.String()},
		{Name: "currency", Value: tx.Currency},
		{Name: "description", Value: tx.Description},
		{Name: "transaction_date", Value: tx.TransactionDate},
		{Name: "timestamp", Value: tx.Timestamp},
		{Name: "transaction_type", Value: tx.TransactionType},
		{Name: "merchant_name", Value: nullString(tx.MerchantName)},
		{Name: "running_balance", Value: nullNumeric(running)},
	}
}

func balanceParams(snap *domain.BalanceSnapshot) []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "account_id", Value: snap.AccountID},
		{Name: "snapshot_date", Value: snap.SnapshotDate},
		{Name: "current_balance", Value: nullNumeric(snap.CurrentBalance)},
		{Name: "available_balance", Value: nullNumeric(snap.AvailableBalance)},
		{Name: "overdraft_limit", Value: nullNumeric(snap.OverdraftLimit)},
		{Name: "created_ts", Value: snap.CreatedAt},
	}
}

func toAssignmentParams(in []store.CategoryAssignment) []assignmentParam {
	out := make([]assignmentParam, 0, len(in))
	for _, a := range in {
		out = append(out, assignmentParam(a))
	}
	return out
}

func toAccountParams(accounts []domain.Account) []accountParam {
	out := make([]accountParam, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountParam{
			AccountID:   a.AccountID,
			DisplayName: a.DisplayName,
			AccountType: a.AccountType,
			Currency:    a.Currency,
		})
	}
	return out
}
