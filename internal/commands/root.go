// Package commands implements the banksync command line.
package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/bank-sync/internal/app"
	"github.com/dvloznov/bank-sync/internal/config"
	"github.com/dvloznov/bank-sync/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "banksync",
		Short: "Mirror open-banking accounts into a local store and categorize spending",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to banksync.yaml (defaults and environment only when empty)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "override logging.format (console|json)")

	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newModeCommand(opts, "snapshot", "Record today's balance of every account"))
	cmd.AddCommand(newModeCommand(opts, "categorize", "Categorize every transaction without a category"))
	cmd.AddCommand(newAuthCommand(opts))
	cmd.AddCommand(newAccountsCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newConfigCommand())

	return cmd
}

// loadConfig reads the config file and applies the log flags over it.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Logging.Format = o.LogFormat
	}
	return cfg, nil
}

// build loads the config and wires the application. The caller closes it.
func (o *RootOptions) build(cmd *cobra.Command) (context.Context, *app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.NewFromConfig(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	ctx := logger.WithContext(cmd.Context(), log)

	a, err := app.Build(ctx, *cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return ctx, a, nil
}

func closeApp(a *app.App, log zerolog.Logger) {
	if err := a.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close")
	}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
