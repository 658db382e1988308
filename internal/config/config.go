package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the single configuration value built at process start and
// handed to every component constructor.
type Config struct {
	TrueLayer    TrueLayerConfig   `yaml:"truelayer"`
	Credentials  BlobConfig        `yaml:"credentials"`
	AccountCache BlobConfig        `yaml:"account_cache"`
	Store        StoreConfig       `yaml:"store"`
	Categorizer  CategorizerConfig `yaml:"categorizer"`
	Logging      LoggingConfig     `yaml:"logging"`
}

// TrueLayerConfig describes the open-banking provider.
type TrueLayerConfig struct {
	BaseURL      string        `yaml:"base_url"`
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	RedirectURL  string        `yaml:"redirect_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	Concurrency  int           `yaml:"concurrency"`
}

// BlobConfig locates a small JSON document: a local file path or a gs:// URI.
type BlobConfig struct {
	Backend string `yaml:"backend"` // file|gcs
	Path    string `yaml:"path"`
}

// StoreConfig selects the relational store.
type StoreConfig struct {
	Driver  string `yaml:"driver"` // sqlite|bigquery
	Path    string `yaml:"path"`
	Project string `yaml:"project"`
	Dataset string `yaml:"dataset"`
}

// CategorizerConfig controls the batch classification calls.
type CategorizerConfig struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BatchSize int    `yaml:"batch_size"`
	// Cost per million tokens, as decimal strings.
	InputCostPerMillion  string `yaml:"input_cost_per_million"`
	OutputCostPerMillion string `yaml:"output_cost_per_million"`
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console|json
}

const (
	defaultBaseURL      = "https://api.truelayer.com"
	defaultTokenURL     = "https://auth.truelayer.com/connect/token"
	defaultRedirectURL  = "https://console.truelayer.com/redirect-page"
	defaultTimeout      = 30 * time.Second
	defaultMaxAttempts  = 3
	defaultRetryDelay   = 2 * time.Second
	defaultModel        = "gemini-2.5-flash"
	defaultBatchSize    = 50
	defaultDBPath       = "spending.db"
	defaultDataset      = "finance"
	defaultTokensPath   = "tokens.json"
	defaultAccountsPath = "accounts.json"
)

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		TrueLayer: TrueLayerConfig{
			BaseURL:     defaultBaseURL,
			TokenURL:    defaultTokenURL,
			RedirectURL: defaultRedirectURL,
			Timeout:     defaultTimeout,
			MaxAttempts: defaultMaxAttempts,
			RetryDelay:  defaultRetryDelay,
			Concurrency: 1,
		},
		Credentials:  BlobConfig{Backend: "file", Path: defaultTokensPath},
		AccountCache: BlobConfig{Backend: "file", Path: defaultAccountsPath},
		Store: StoreConfig{
			Driver:  "sqlite",
			Path:    defaultDBPath,
			Dataset: defaultDataset,
		},
		Categorizer: CategorizerConfig{
			Model:                defaultModel,
			BatchSize:            defaultBatchSize,
			InputCostPerMillion:  "0.30",
			OutputCostPerMillion: "2.50",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.TrueLayer.ClientID, "TL_CLIENT_ID")
	setString(&cfg.TrueLayer.ClientSecret, "TL_CLIENT_SECRET")
	setString(&cfg.TrueLayer.BaseURL, "TL_API_BASE_URL")
	setString(&cfg.TrueLayer.TokenURL, "TL_AUTH_URL")
	setString(&cfg.TrueLayer.RedirectURL, "TL_REDIRECT_URL")
	setString(&cfg.Categorizer.APIKey, "GEMINI_API_KEY")
	setString(&cfg.Store.Path, "BANKSYNC_DB_PATH")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	if v := os.Getenv("TL_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid TL_MAX_ATTEMPTS value %q: %w", v, err)
		}
		cfg.TrueLayer.MaxAttempts = n
	}
	if v := os.Getenv("TL_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid TL_RETRY_DELAY: %w", err)
		}
		cfg.TrueLayer.RetryDelay = d
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the values every run needs. Provider credentials are
// checked by the components that use them.
func (c *Config) Validate() error {
	var errs []error
	if c.TrueLayer.BaseURL == "" {
		errs = append(errs, errors.New("truelayer.base_url is required"))
	}
	if c.TrueLayer.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("truelayer.max_attempts must be >= 1, got %d", c.TrueLayer.MaxAttempts))
	}
	if c.TrueLayer.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("truelayer.concurrency must be >= 1, got %d", c.TrueLayer.Concurrency))
	}
	if c.Categorizer.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("categorizer.batch_size must be >= 1, got %d", c.Categorizer.BatchSize))
	}
	for name, b := range map[string]BlobConfig{"credentials": c.Credentials, "account_cache": c.AccountCache} {
		switch strings.ToLower(b.Backend) {
		case "file":
		case "gcs":
			if !strings.HasPrefix(b.Path, "gs://") {
				errs = append(errs, fmt.Errorf("%s.path must be a gs:// URI for the gcs backend", name))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.backend must be file or gcs, got %q", name, b.Backend))
		}
		if b.Path == "" {
			errs = append(errs, fmt.Errorf("%s.path is required", name))
		}
	}
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case "bigquery":
		if c.Store.Project == "" || c.Store.Dataset == "" {
			errs = append(errs, errors.New("store.project and store.dataset are required for bigquery"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or bigquery, got %q", c.Store.Driver))
	}
	return errors.Join(errs...)
}
