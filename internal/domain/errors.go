package domain

import "errors"

var (
	// ErrAuthRequired means no credential is stored. The one-time
	// authorization exchange has to run before anything else.
	ErrAuthRequired = errors.New("authorization required")

	// ErrAuthExpired means the access token is stale and refreshing it failed.
	ErrAuthExpired = errors.New("authorization expired")

	// ErrTransientNetwork is returned once retries on a connection-level
	// failure are exhausted.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrPermanentAPI covers non-2xx responses and malformed payloads.
	ErrPermanentAPI = errors.New("permanent api failure")

	// ErrPersistence wraps a failed write of a single record.
	ErrPersistence = errors.New("persistence failure")

	// ErrClassificationContract means the classifier answered with a label
	// list that cannot be paired with its input.
	ErrClassificationContract = errors.New("classification contract violation")

	// ErrNoAccounts means there is no cached account list to fan out over.
	ErrNoAccounts = errors.New("no accounts configured")

	// ErrAllFetchesFailed means every per-account fetch failed.
	ErrAllFetchesFailed = errors.New("all account fetches failed")
)
