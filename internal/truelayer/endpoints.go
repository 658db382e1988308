package truelayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/dvloznov/bank-sync/internal/domain"
)

const dataPath = "/data/v1"

// Accounts lists every account the token grants access to.
func (c *Client) Accounts(ctx context.Context, token string) ([]Account, error) {
	return getResults[Account](ctx, c, c.baseURL+dataPath+"/accounts", token)
}

// Balance returns the current balance of one account.
func (c *Client) Balance(ctx context.Context, token, accountID string) (*Balance, error) {
	u := c.accountURL(accountID, "balance")
	results, err := getResults[Balance](ctx, c, u, token)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, &APIError{URL: u, Attempts: 1, Kind: domain.ErrPermanentAPI, Err: errors.New("balance response has no results")}
	}
	return &results[0], nil
}

// Transactions lists settled transactions of one account.
func (c *Client) Transactions(ctx context.Context, token, accountID string) ([]Transaction, error) {
	return getResults[Transaction](ctx, c, c.accountURL(accountID, "transactions"), token)
}

// PendingTransactions lists transactions that have not settled yet.
func (c *Client) PendingTransactions(ctx context.Context, token, accountID string) ([]Transaction, error) {
	return getResults[Transaction](ctx, c, c.accountURL(accountID, "transactions/pending"), token)
}

// DirectDebits lists the direct debit mandates of one account.
func (c *Client) DirectDebits(ctx context.Context, token, accountID string) ([]DirectDebit, error) {
	return getResults[DirectDebit](ctx, c, c.accountURL(accountID, "direct_debits"), token)
}

func (c *Client) accountURL(accountID, resource string) string {
	return c.baseURL + dataPath + "/accounts/" + url.PathEscape(accountID) + "/" + resource
}

func getResults[T any](ctx context.Context, c *Client, u, token string) ([]T, error) {
	raw, err := c.Get(ctx, u, token)
	if err != nil {
		return nil, err
	}
	var env envelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &APIError{URL: u, Attempts: 1, Kind: domain.ErrPermanentAPI, Err: fmt.Errorf("decoding results: %w", err)}
	}
	return env.Results, nil
}
