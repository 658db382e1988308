// Package truelayer is a read-only client for the TrueLayer Data API.
// Every call goes through Client.Get, which retries connection-level
// failures under a bounded policy and reports everything else at once.
package truelayer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-sync/internal/domain"
	"github.com/dvloznov/bank-sync/internal/retry"
)

const maxErrorBody = 512

// APIError describes a failed Get. Kind is domain.ErrTransientNetwork or
// domain.ErrPermanentAPI, so callers can match it with errors.Is.
type APIError struct {
	URL        string
	StatusCode int
	Attempts   int
	Kind       error
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s: %v", e.URL, e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Is matches the error's Kind.
func (e *APIError) Is(target error) bool {
	return target == e.Kind
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Client issues authenticated GETs against the Data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	policy     retry.Policy
	log        zerolog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryPolicy replaces the default policy of 3 attempts, 2s apart.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// NewClient returns a client rooted at baseURL, e.g. https://api.truelayer.com.
func NewClient(baseURL string, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		policy:     retry.Fixed(3, 2*time.Second),
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// attemptError is the outcome of one failed round trip.
type attemptError struct {
	kind   error
	status int
	err    error
}

func (e *attemptError) Error() string { return e.err.Error() }
func (e *attemptError) Unwrap() error { return e.err }

// Get fetches url with a bearer token and returns the raw JSON body.
// The returned error, if any, is always an *APIError.
func (c *Client) Get(ctx context.Context, url, token string) (json.RawMessage, error) {
	var body json.RawMessage
	attempts, err := c.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		b, err := c.do(ctx, url, token)
		if err != nil {
			c.log.Warn().Err(err).Str("url", url).Int("attempt", attempt).Msg("API request failed")
			return err
		}
		body = b
		return nil
	}, retryable)
	if err == nil {
		return body, nil
	}

	apiErr := &APIError{URL: url, Attempts: attempts, Kind: domain.ErrTransientNetwork, Err: err}
	var ae *attemptError
	if errors.As(err, &ae) {
		apiErr.Kind = ae.kind
		apiErr.StatusCode = ae.status
		apiErr.Err = ae.err
	}
	return nil, apiErr
}

func (c *Client) do(ctx context.Context, url, token string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &attemptError{kind: domain.ErrPermanentAPI, err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &attemptError{kind: transportKind(err), err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &attemptError{kind: transportKind(err), status: resp.StatusCode, err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &attemptError{
			kind:   domain.ErrPermanentAPI,
			status: resp.StatusCode,
			err:    fmt.Errorf("unexpected status: %s", truncate(string(data), maxErrorBody)),
		}
	}

	if !json.Valid(data) {
		return nil, &attemptError{
			kind:   domain.ErrPermanentAPI,
			status: resp.StatusCode,
			err:    fmt.Errorf("malformed JSON payload: %s", truncate(string(data), maxErrorBody)),
		}
	}
	return json.RawMessage(data), nil
}

// transportKind classifies a failure below HTTP. Only connection-level
// failures are transient; TLS errors and cancellation are not.
func transportKind(err error) error {
	if retry.IsTransient(err) {
		return domain.ErrTransientNetwork
	}
	return domain.ErrPermanentAPI
}

// retryable allows another attempt only for connection-level failures.
func retryable(err error) bool {
	var ae *attemptError
	if !errors.As(err, &ae) || ae.kind != domain.ErrTransientNetwork {
		return false
	}
	return retry.IsTransient(ae.err)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
