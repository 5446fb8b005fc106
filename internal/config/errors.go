package config

import "errors"

// Validation errors returned by Config.Validate. Callers match them with
// errors.Is; the messages are written for the terminal.
var (
	// ErrNoTarget is returned when no start URL was given.
	ErrNoTarget = errors.New("no target specified: provide at least one start URL")

	// ErrInvalidTarget is returned when a start URL is not an absolute http(s) URL.
	ErrInvalidTarget = errors.New("invalid target: must be an absolute http or https URL")

	// ErrInvalidConcurrency is returned when the concurrency limit is below 1.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be at least 1")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxPages is returned when the page limit is negative.
	ErrInvalidMaxPages = errors.New("invalid max pages: must be non-negative")

	// ErrInvalidRateLimit is returned when the per-host rate is negative.
	ErrInvalidRateLimit = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidJitterMultiplier is returned when the jitter multiplier is negative.
	ErrInvalidJitterMultiplier = errors.New("invalid jitter multiplier: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrConflictingReportFormats is returned when more than one of --json,
	// --markdown and --xlsx is set.
	ErrConflictingReportFormats = errors.New("conflicting report formats: choose one of --json, --markdown, --xlsx")

	// ErrXLSXNeedsOutput is returned when an XLSX report would go to a terminal.
	ErrXLSXNeedsOutput = errors.New("xlsx report requires --output")

	// ErrConflictingProxy is returned when both --proxy and --tor are set.
	ErrConflictingProxy = errors.New("conflicting transports: --proxy and --tor cannot be used together")

	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidEnv is returned when an environment override cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment override")
)
