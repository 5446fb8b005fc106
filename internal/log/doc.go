// Package log builds the slog loggers used by linkprobe.
//
// Every logger returned from this package is wrapped in a SecureHandler.
// Crawling authenticated sites means cookies, bearer tokens and signed URLs
// flow through the request path, and any of them may end up as a log
// attribute. SecureHandler masks:
//   - attributes whose key names a credential (cookie, authorization, token)
//   - string values that look like credentials (JWT, bearer, basic auth)
//   - sensitive query parameters inside URL-valued attributes, so that
//     "https://example.com/a?token=abc&page=2" is logged as
//     "https://example.com/a?token=***REDACTED***&page=2"
//
// # Usage
//
//	logger := log.New(os.Stderr, log.FormatText, verbose)
//	slog.SetDefault(logger)
//
// FormatPretty renders through charmbracelet/log for interactive terminals.
package log
