package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-sync/internal/accounts"
	"github.com/dvloznov/bank-sync/internal/domain"
)

func newAccountsCommand(root *RootOptions) *cobra.Command {
	var (
		field   string
		refresh bool
	)

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the linked accounts",
		Long: `List the linked accounts from the account cache, one per line.
With --refresh the list is fetched from the bank first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Log)

			if refresh {
				token, err := a.Tokens.GetValidToken(ctx)
				if err != nil && (token == "" || !errors.Is(err, domain.ErrPersistence)) {
					return err
				}
				if err != nil {
					a.Log.Error().Err(err).Msg("Refreshed credential was not stored")
				}
				fetched, err := a.Accounts.FetchAccounts(ctx, token)
				if err != nil {
					return err
				}
				if err := a.Ingest.PersistAccounts(ctx, fetched); err != nil {
					return err
				}
			}

			if field == "" {
				list, err := a.Accounts.Accounts(ctx)
				if err != nil {
					return err
				}
				for _, acc := range list {
					printf(cmd, "%s\t%s\t%s\t%s\n", acc.AccountID, acc.DisplayName, acc.AccountType, acc.Currency)
				}
				return nil
			}

			p, err := accounts.ParseProjection(field)
			if err != nil {
				return err
			}
			values, err := a.Accounts.Project(ctx, p)
			if err != nil {
				return err
			}
			for _, v := range values {
				printf(cmd, "%s\n", v)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&field, "field", "", "print a single field (id|name|type)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "fetch the account list from the bank first")

	return cmd
}
