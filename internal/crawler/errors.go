package crawler

import "errors"

var (
	// ErrAlreadyRunning is returned when Crawl is called on a running Driver.
	ErrAlreadyRunning = errors.New("crawl already running")

	// ErrInvalidStartURL is returned when the start link is not an absolute
	// http or https URL.
	ErrInvalidStartURL = errors.New("invalid start URL")

	// ErrDisallowedByRobots is reported for links robots.txt forbids.
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

	// ErrBrokenLink is reported for links the broken-link predicate flags.
	ErrBrokenLink = errors.New("broken link")

	// ErrUnknownPolicy is returned by ParseBrokenPolicy for unknown names.
	ErrUnknownPolicy = errors.New("unknown broken-link policy")
)
