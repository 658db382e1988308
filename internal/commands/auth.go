package commands

import (
	"time"

	"github.com/spf13/cobra"
)

func newAuthCommand(root *RootOptions) *cobra.Command {
	var code string

	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Exchange a one-time authorization code for a stored credential",
		Long: `Exchange the authorization code returned to the redirect URL after the
bank consent flow. The resulting access/refresh token pair is stored and
refreshed automatically by every later run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, err := root.build(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, a.Log)

			cred, err := a.Tokens.Bootstrap(ctx, code)
			if err != nil {
				return err
			}
			printf(cmd, "credential stored, access token valid until %s\n", cred.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "authorization code (required)")
	_ = cmd.MarkFlagRequired("code")

	return cmd
}
