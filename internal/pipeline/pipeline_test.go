package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-sync/internal/accounts"
	"github.com/dvloznov/bank-sync/internal/categorize"
	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/ingest"
	"github.com/dvloznov/bank-sync/internal/truelayer"
)

type fakeTokens struct {
	token string
	err   error
}

func (f *fakeTokens) GetValidToken(ctx context.Context) (string, error) {
	return f.token, f.err
}

type mockFetcher struct {
	calls []string

	FetchAccountsFunc       func(ctx context.Context, token string) ([]domain.Account, error)
	FetchAllTransactionsErr error
	FetchAllBalancesErr     error
}

func (m *mockFetcher) FetchAccounts(ctx context.Context, token string) ([]domain.Account, error) {
	m.calls = append(m.calls, "accounts:"+token)
	if m.FetchAccountsFunc != nil {
		return m.FetchAccountsFunc(ctx, token)
	}
	return []domain.Account{{AccountID: "acc_1"}, {AccountID: "acc_2"}}, nil
}

func (m *mockFetcher) FetchAllTransactions(ctx context.Context, token string) (*accounts.Fetched[[]truelayer.Transaction], error) {
	m.calls = append(m.calls, "transactions:"+token)
	if m.FetchAllTransactionsErr != nil {
		return nil, m.FetchAllTransactionsErr
	}
	return &accounts.Fetched[[]truelayer.Transaction]{
		ByAccount: map[string][]truelayer.Transaction{"acc_1": {{TransactionID: "t1"}}},
		Failed:    map[string]error{"acc_2": errors.New("boom")},
	}, nil
}

func (m *mockFetcher) FetchAllBalances(ctx context.Context, token string) (*accounts.Fetched[*truelayer.Balance], error) {
	m.calls = append(m.calls, "balances:"+token)
	if m.FetchAllBalancesErr != nil {
		return &accounts.Fetched[*truelayer.Balance]{
			ByAccount: map[string]*truelayer.Balance{},
			Failed:    map[string]error{"acc_1": errors.New("boom"), "acc_2": errors.New("boom")},
		}, m.FetchAllBalancesErr
	}
	return &accounts.Fetched[*truelayer.Balance]{
		ByAccount: map[string]*truelayer.Balance{"acc_1": {}, "acc_2": {}},
		Failed:    map[string]error{},
	}, nil
}

func (m *mockFetcher) FetchAllPendingTransactions(ctx context.Context, token string) (*accounts.Fetched[[]truelayer.Transaction], error) {
	m.calls = append(m.calls, "pending:"+token)
	return &accounts.Fetched[[]truelayer.Transaction]{
		ByAccount: map[string][]truelayer.Transaction{"acc_1": {{}, {}}, "acc_2": {{}}},
	}, nil
}

func (m *mockFetcher) FetchAllDirectDebits(ctx context.Context, token string) (*accounts.Fetched[[]truelayer.DirectDebit], error) {
	m.calls = append(m.calls, "direct_debits:"+token)
	return &accounts.Fetched[[]truelayer.DirectDebit]{
		ByAccount: map[string][]truelayer.DirectDebit{"acc_1": {{}}},
	}, nil
}

type mockIngester struct {
	calls       []string
	accountsErr error
	snapshotDay civil.Date
}

func (m *mockIngester) Today() civil.Date {
	return civil.Date{Year: 2025, Month: 3, Day: 14}
}

func (m *mockIngester) PersistAccounts(ctx context.Context, accounts []domain.Account) error {
	m.calls = append(m.calls, fmt.Sprintf("accounts:%d", len(accounts)))
	return m.accountsErr
}

func (m *mockIngester) PersistAllTransactions(ctx context.Context, byAccount map[string][]truelayer.Transaction) ingest.Outcome {
	m.calls = append(m.calls, fmt.Sprintf("transactions:%d", len(byAccount)))
	return ingest.Outcome{Accounts: len(byAccount), Fetched: 1, Inserted: 1}
}

func (m *mockIngester) PersistBalanceSnapshot(ctx context.Context, balances map[string]*truelayer.Balance, date civil.Date) ingest.SnapshotResult {
	m.calls = append(m.calls, fmt.Sprintf("snapshot:%d", len(balances)))
	m.snapshotDay = date
	return ingest.SnapshotResult{Date: date, Inserted: len(balances)}
}

type fakeCategorizer struct {
	runs    int
	outcome categorize.Outcome
	err     error
}

func (f *fakeCategorizer) Run(ctx context.Context) (categorize.Outcome, error) {
	f.runs++
	return f.outcome, f.err
}

type fixture struct {
	tokens  *fakeTokens
	fetcher *mockFetcher
	ingest  *mockIngester
	cat     *fakeCategorizer
}

func newFixture() *fixture {
	return &fixture{
		tokens:  &fakeTokens{token: "tok"},
		fetcher: &mockFetcher{},
		ingest:  &mockIngester{},
		cat:     &fakeCategorizer{outcome: categorize.Outcome{Selected: 3, Categorized: 3}},
	}
}

func (f *fixture) deps() Deps {
	return Deps{Tokens: f.tokens, Accounts: f.fetcher, Ingest: f.ingest, Categorize: f.cat}
}

func (f *fixture) run(t *testing.T, mode Mode) (*PipelineState, error) {
	t.Helper()
	p, err := NewSyncPipeline(mode, f.deps(), zerolog.Nop())
	require.NoError(t, err)
	state := NewState(mode)
	return state, p.Execute(context.Background(), state)
}

func TestNewSyncPipeline_Modes(t *testing.T) {
	tests := []struct {
		mode Mode
		want []string
	}{
		{ModeFull, []string{"authenticate", "fetch accounts", "ingest transactions", "report pending", "snapshot balances", "categorize"}},
		{ModeTransactions, []string{"authenticate", "fetch accounts", "ingest transactions"}},
		{ModeSnapshot, []string{"authenticate", "fetch accounts", "snapshot balances"}},
		{ModeCategorize, []string{"categorize"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := NewSyncPipeline(tt.mode, newFixture().deps(), zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Steps())
		})
	}
}

func TestNewSyncPipeline_MissingDeps(t *testing.T) {
	_, err := NewSyncPipeline(ModeFull, Deps{}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token source, account fetcher, ingester, categorizer")

	// categorize-only needs nothing but the categorizer
	_, err = NewSyncPipeline(ModeCategorize, Deps{Categorize: &fakeCategorizer{}}, zerolog.Nop())
	assert.NoError(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("snapshot")
	require.NoError(t, err)
	assert.Equal(t, ModeSnapshot, m)

	_, err = ParseMode("everything")
	assert.Error(t, err)
}

func TestExecute_FullRun(t *testing.T) {
	f := newFixture()
	state, err := f.run(t, ModeFull)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"accounts:tok", "transactions:tok", "pending:tok", "direct_debits:tok", "balances:tok",
	}, f.fetcher.calls)
	assert.Equal(t, []string{"accounts:2", "transactions:1", "snapshot:2"}, f.ingest.calls)
	assert.Equal(t, civil.Date{Year: 2025, Month: 3, Day: 14}, f.ingest.snapshotDay)
	assert.Equal(t, 1, f.cat.runs)

	s := state.Summary
	assert.Equal(t, 2, s.Accounts)
	require.NotNil(t, s.Transactions)
	assert.Equal(t, 1, s.Transactions.Inserted)
	assert.Equal(t, []string{"acc_2"}, s.TransactionFetchFailures)
	assert.Equal(t, 3, s.PendingTransactions)
	assert.Equal(t, 1, s.DirectDebits)
	require.NotNil(t, s.Snapshot)
	assert.Equal(t, 2, s.Snapshot.Inserted)
	require.NotNil(t, s.Categorize)
	assert.Equal(t, int64(3), s.Categorize.Categorized)
	assert.True(t, s.Degraded(), "one account failed to fetch")
	assert.NotEmpty(t, state.RunID)
}

func TestExecute_AuthFailureAborts(t *testing.T) {
	for _, sentinel := range []error{domain.ErrAuthRequired, domain.ErrAuthExpired} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			f := newFixture()
			f.tokens.err = fmt.Errorf("GetValidToken: %w", sentinel)

			_, err := f.run(t, ModeFull)
			require.Error(t, err)
			assert.ErrorIs(t, err, sentinel)
			assert.Empty(t, f.fetcher.calls)
			assert.Empty(t, f.ingest.calls)
			assert.Zero(t, f.cat.runs)
		})
	}
}

func TestExecute_NoAccountsAborts(t *testing.T) {
	f := newFixture()
	f.fetcher.FetchAccountsFunc = func(ctx context.Context, token string) ([]domain.Account, error) {
		return nil, nil
	}

	_, err := f.run(t, ModeFull)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoAccounts)
	assert.Equal(t, []string{"accounts:tok"}, f.fetcher.calls)
	assert.Zero(t, f.cat.runs)
}

func TestExecute_AccountFetchFailureAborts(t *testing.T) {
	f := newFixture()
	f.fetcher.FetchAccountsFunc = func(ctx context.Context, token string) ([]domain.Account, error) {
		return nil, fmt.Errorf("Accounts: %w", domain.ErrPermanentAPI)
	}

	_, err := f.run(t, ModeSnapshot)
	assert.ErrorIs(t, err, domain.ErrPermanentAPI)
	assert.Empty(t, f.ingest.calls)
}

func TestExecute_AllFetchesFailedIsIsolated(t *testing.T) {
	f := newFixture()
	f.fetcher.FetchAllTransactionsErr = fmt.Errorf("fetching transactions: %w", domain.ErrAllFetchesFailed)
	f.fetcher.FetchAllBalancesErr = fmt.Errorf("fetching balances: %w", domain.ErrAllFetchesFailed)

	state, err := f.run(t, ModeFull)
	require.NoError(t, err)

	assert.Nil(t, state.Summary.Transactions)
	assert.Nil(t, state.Summary.Snapshot)
	assert.ElementsMatch(t, []string{"acc_1", "acc_2"}, state.Summary.BalanceFetchFailures)
	require.Len(t, state.Summary.Failures, 2)
	assert.Equal(t, "fetch transactions", state.Summary.Failures[0].Step)
	assert.Equal(t, "fetch balances", state.Summary.Failures[1].Step)
	assert.Equal(t, 1, f.cat.runs, "categorization still runs")
	assert.True(t, state.Summary.Degraded())
}

func TestExecute_NoAccountsDuringFanOutAborts(t *testing.T) {
	f := newFixture()
	f.fetcher.FetchAllTransactionsErr = fmt.Errorf("fetching transactions: %w", domain.ErrNoAccounts)

	_, err := f.run(t, ModeTransactions)
	assert.ErrorIs(t, err, domain.ErrNoAccounts)
}

func TestExecute_PersistAccountsFailureIsIsolated(t *testing.T) {
	f := newFixture()
	f.ingest.accountsErr = fmt.Errorf("ReplaceAccounts: %w", domain.ErrPersistence)

	state, err := f.run(t, ModeTransactions)
	require.NoError(t, err)
	require.Len(t, state.Summary.Failures, 1)
	assert.ErrorIs(t, state.Summary.Failures[0].Err, domain.ErrPersistence)
	assert.NotNil(t, state.Summary.Transactions)
}

func TestExecute_CategorizeFailureIsReported(t *testing.T) {
	f := newFixture()
	f.cat.err = errors.New("ListUncategorized: database is locked")

	state, err := f.run(t, ModeCategorize)
	require.NoError(t, err)
	assert.Nil(t, state.Summary.Categorize)
	require.Len(t, state.Summary.Failures, 1)
	assert.Equal(t, "categorize", state.Summary.Failures[0].Step)
}

func TestExecute_CleanRunIsNotDegraded(t *testing.T) {
	f := newFixture()
	state, err := f.run(t, ModeSnapshot)
	require.NoError(t, err)
	assert.False(t, state.Summary.Degraded())
}

func TestExecute_CancelledContext(t *testing.T) {
	f := newFixture()
	p, err := NewSyncPipeline(ModeFull, f.deps(), zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = p.Execute(ctx, NewState(ModeFull))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.fetcher.calls)
}

func TestExecute_UnsavedCredentialIsDegraded(t *testing.T) {
	f := newFixture()
	f.tokens.token = "fresh"
	f.tokens.err = fmt.Errorf("Refresh: saving credential: %w: disk full", domain.ErrPersistence)

	state, err := f.run(t, ModeSnapshot)
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts:fresh", "balances:fresh"}, f.fetcher.calls)
	require.Len(t, state.Summary.Failures, 1)
	assert.Equal(t, "persist credential", state.Summary.Failures[0].Step)
	assert.ErrorIs(t, state.Summary.Failures[0].Err, domain.ErrPersistence)
	assert.True(t, state.Summary.Degraded())
}

func TestExecute_UnreadableCredentialAborts(t *testing.T) {
	f := newFixture()
	f.tokens.token = ""
	f.tokens.err = fmt.Errorf("GetValidToken: loading credential: %w: unexpected EOF", domain.ErrPersistence)

	_, err := f.run(t, ModeSnapshot)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Empty(t, f.fetcher.calls)
}

func TestSummary_Degraded(t *testing.T) {
	tests := []struct {
		name string
		s    Summary
		want bool
	}{
		{"empty", Summary{}, false},
		{"clean categorization", Summary{Categorize: &categorize.Outcome{Selected: 4, Categorized: 4}}, false},
		{"failed batch", Summary{Categorize: &categorize.Outcome{FailedBatches: 1}}, true},
		{"contract violation", Summary{Categorize: &categorize.Outcome{Selected: 4, Categorized: 4, Fallback: 4, ContractViolations: 1}}, true},
		{"failed row", Summary{Transactions: &ingest.Outcome{Failed: []string{"t1"}}}, true},
		{"failed snapshot", Summary{Snapshot: &ingest.SnapshotResult{Failed: []string{"acc_1"}}}, true},
		{"unfetched account", Summary{BalanceFetchFailures: []string{"acc_2"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.s.Degraded())
		})
	}
}
