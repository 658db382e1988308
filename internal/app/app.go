// Package app builds the sync components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-sync/internal/accounts"
	"github.com/dvloznov/bank-sync/internal/auth"
	"github.com/dvloznov/bank-sync/internal/categorize"
	"github.com/dvloznov/bank-sync/internal/config"
	bq "github.com/dvloznov/bank-sync/internal/infra/bigquery"
	"github.com/dvloznov/bank-sync/internal/infra/sqlite"
	"github.com/dvloznov/bank-sync/internal/ingest"
	"github.com/dvloznov/bank-sync/internal/logger"
	"github.com/dvloznov/bank-sync/internal/objectstore"
	"github.com/dvloznov/bank-sync/internal/pipeline"
	"github.com/dvloznov/bank-sync/internal/retry"
	"github.com/dvloznov/bank-sync/internal/store"
	"github.com/dvloznov/bank-sync/internal/truelayer"
)

// App holds every long-lived component of one process.
type App struct {
	Config   config.Config
	Log      zerolog.Logger
	Store    store.Store
	Tokens   *auth.Manager
	API      *truelayer.Client
	Accounts *accounts.Service
	Ingest   *ingest.Engine

	closers []io.Closer
}

// Build validates cfg and wires the components. The classifier is not
// built here; see Categorizer.
func Build(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Build: invalid config: %w", err)
	}
	a := &App{Config: cfg, Log: log}

	credBlob, err := a.openBlob(ctx, cfg.Credentials)
	if err != nil {
		return nil, a.fail(fmt.Errorf("Build: opening credential store: %w", err))
	}
	cacheBlob, err := a.openBlob(ctx, cfg.AccountCache)
	if err != nil {
		return nil, a.fail(fmt.Errorf("Build: opening account cache: %w", err))
	}

	policy := retry.Fixed(cfg.TrueLayer.MaxAttempts, cfg.TrueLayer.RetryDelay)
	httpClient := &http.Client{Timeout: cfg.TrueLayer.Timeout}

	exchanger := auth.NewOAuthExchanger(
		cfg.TrueLayer.TokenURL,
		cfg.TrueLayer.ClientID,
		cfg.TrueLayer.ClientSecret,
		cfg.TrueLayer.RedirectURL,
		httpClient,
	)
	a.Tokens = auth.NewManager(
		auth.NewBlobCredentialStore(credBlob),
		exchanger,
		component(log, "auth"),
		auth.WithRetryPolicy(policy),
	)

	a.API = truelayer.NewClient(
		cfg.TrueLayer.BaseURL,
		component(log, "truelayer"),
		truelayer.WithHTTPClient(httpClient),
		truelayer.WithRetryPolicy(policy),
	)
	a.Accounts = accounts.NewService(
		a.API,
		accounts.NewBlobCache(cacheBlob),
		cfg.TrueLayer.Concurrency,
		component(log, "accounts"),
	)

	st, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, a.fail(err)
	}
	a.Store = st
	a.closers = append(a.closers, st)

	a.Ingest = ingest.NewEngine(st, component(log, "ingest"))
	return a, nil
}

// OpenStore opens the configured persistent store.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "sqlite":
		st, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return st, nil
	case "bigquery":
		st, err := bq.New(ctx, cfg.Project, cfg.Dataset)
		if err != nil {
			return nil, fmt.Errorf("OpenStore: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("OpenStore: unknown driver %q", cfg.Driver)
	}
}

// Categorizer builds the categorization engine backed by Gemini.
func (a *App) Categorizer(ctx context.Context) (*categorize.Engine, error) {
	cc := a.Config.Categorizer
	pricing, err := categorize.ParsePricing(cc.InputCostPerMillion, cc.OutputCostPerMillion)
	if err != nil {
		return nil, fmt.Errorf("Categorizer: invalid categorizer cost: %w", err)
	}
	classifier, err := categorize.NewGeminiClassifier(ctx, cc.APIKey, cc.Model)
	if err != nil {
		return nil, fmt.Errorf("Categorizer: %w", err)
	}
	return categorize.NewEngine(
		a.Store,
		classifier,
		component(a.Log, "categorize"),
		categorize.WithBatchSize(cc.BatchSize),
		categorize.WithPricing(pricing),
	), nil
}

// Pipeline assembles the sync pipeline for mode.
func (a *App) Pipeline(ctx context.Context, mode pipeline.Mode) (*pipeline.Pipeline, error) {
	deps := pipeline.Deps{Tokens: a.Tokens, Accounts: a.Accounts, Ingest: a.Ingest}
	if mode == pipeline.ModeFull || mode == pipeline.ModeCategorize {
		engine, err := a.Categorizer(ctx)
		if err != nil {
			return nil, err
		}
		deps.Categorize = engine
	}
	return pipeline.NewSyncPipeline(mode, deps, a.Log)
}

// Close releases the store and any storage clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) openBlob(ctx context.Context, b config.BlobConfig) (objectstore.Blob, error) {
	blob, err := objectstore.Open(ctx, b.Backend, b.Path)
	if err != nil {
		return nil, err
	}
	if c, ok := blob.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	return blob, nil
}

func (a *App) fail(err error) error {
	if cerr := a.Close(); cerr != nil {
		a.Log.Warn().Err(cerr).Msg("Failed to release resources after build error")
	}
	return err
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return logger.WithFields(log, map[string]interface{}{"component": name})
}
